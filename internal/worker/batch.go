package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/birthplace/internal/pipeline"
	"go.uber.org/zap"
)

// PageCorrector corrects a single page by URL
type PageCorrector interface {
	CorrectURL(ctx context.Context, rawURL string) (*pipeline.Result, error)
}

// PageResult is the outcome for one URL of a batch
type PageResult struct {
	URL      string
	Result   *pipeline.Result
	Err      error
	Duration time.Duration
}

// Replacements returns the number of replacements made on the page
func (r *PageResult) Replacements() int {
	if r.Result == nil || r.Result.Report == nil {
		return 0
	}
	return r.Result.Report.Replacements
}

// BatchOptions configures a BatchProcessor
type BatchOptions struct {
	Workers           int
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger

	// OnResult is called from the worker goroutine as each page finishes
	OnResult func(*PageResult)
}

// BatchProcessor corrects many pages concurrently with per-host spacing
type BatchProcessor struct {
	corrector PageCorrector
	limiter   *Limiter
	workers   int
	logger    *zap.Logger
	onResult  func(*PageResult)
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(corrector PageCorrector, opts BatchOptions) *BatchProcessor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		corrector: corrector,
		limiter:   NewLimiter(opts.RequestsPerSecond, opts.Burst),
		workers:   opts.Workers,
		logger:    logger,
		onResult:  opts.OnResult,
	}
}

// ProcessURLs corrects every URL and returns the results in input order
func (b *BatchProcessor) ProcessURLs(ctx context.Context, urls []string) []*PageResult {
	if len(urls) == 0 {
		return []*PageResult{}
	}

	pool := NewPool[*PageResult](ctx, b.workers)
	for _, u := range urls {
		u := u
		pool.Submit(func(ctx context.Context) *PageResult {
			return b.process(ctx, u)
		})
	}

	results := pool.Wait()
	for i, r := range results {
		if r == nil {
			results[i] = &PageResult{URL: urls[i], Err: fmt.Errorf("not processed: %w", context.Cause(ctx))}
		}
	}
	return results
}

func (b *BatchProcessor) process(ctx context.Context, rawURL string) *PageResult {
	start := time.Now()
	res := &PageResult{URL: rawURL}

	if err := b.limiter.Wait(ctx, rawURL); err != nil {
		res.Err = fmt.Errorf("rate limit: %w", err)
	} else {
		res.Result, res.Err = b.corrector.CorrectURL(ctx, rawURL)
	}
	res.Duration = time.Since(start)

	if res.Err != nil {
		b.logger.Warn("page failed", zap.String("url", rawURL), zap.Error(res.Err))
	} else {
		b.logger.Debug("page corrected", zap.String("url", rawURL), zap.Int("replacements", res.Replacements()))
	}

	if b.onResult != nil {
		b.onResult(res)
	}
	return res
}

// ProcessFile reads URLs from a file and corrects them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*PageResult, error) {
	urls, err := ReadURLsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read URLs: %w", err)
	}
	return b.ProcessURLs(ctx, urls), nil
}

// ReadURLsFromFile reads one URL per line. Blank lines and lines starting
// with # are skipped, duplicates are dropped.
func ReadURLsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return urls, nil
}
