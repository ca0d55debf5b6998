package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ppiankov/birthplace/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Correct many pages listed in a file",
	Long: `Batch reads article URLs from a file (one per line, # for comments),
corrects them concurrently with per-host rate limiting, and writes the
corrected page plus JSON and Markdown reports for each into the output
directory.

Example:
  birthplace batch urls.txt
  birthplace batch urls.txt --concurrency 8 --output-dir ./corrected`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (default from config)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for the batch")
	batchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not update the replacement tally")
	addFetchFlags(batchCmd)

	_ = viper.BindPFlag("concurrency.workers", batchCmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("output.dir", batchCmd.Flags().Lookup("output-dir"))
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	bindFetchFlags(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Concurrency.Workers <= 0 {
		cfg.Concurrency.Workers = 1
	}

	p, cleanup, err := buildPipeline(cmd, dryRun, false)
	if err != nil {
		return err
	}
	defer cleanup()

	dir := cfg.Output.Dir
	workers := cfg.Concurrency.Workers

	fmt.Fprintf(os.Stderr, "\n%s\n  Birthplace Batch\n%s\n\n", banner, banner)
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Rate limit:   %.1f req/s per host\n", cfg.RateLimiting.RequestsPerSecond)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", dir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n\n", batchTimeout)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	renderer := p.Renderer()
	var (
		mu           sync.Mutex
		succeeded    int
		failed       int
		replacements int
	)

	processor := worker.NewBatchProcessor(p, worker.BatchOptions{
		Workers:           workers,
		RequestsPerSecond: cfg.RateLimiting.RequestsPerSecond,
		Burst:             cfg.RateLimiting.BurstSize,
		OnResult: func(r *worker.PageResult) {
			mu.Lock()
			defer mu.Unlock()

			if r.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.URL, r.Err)
				return
			}

			report := r.Result.Report
			base := filepath.Join(dir, sanitizeFilename(report.Subject))
			if err := renderer.RenderJSON(report, base+".json"); err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "✗ %s: write JSON: %v\n", r.URL, err)
				return
			}
			if err := renderer.RenderMarkdown(report, base+".md"); err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "✗ %s: write Markdown: %v\n", r.URL, err)
				return
			}
			if err := renderer.RenderHTML(r.Result.HTML, base+".html"); err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "✗ %s: write page: %v\n", r.URL, err)
				return
			}

			succeeded++
			replacements += report.Replacements
			fmt.Fprintf(os.Stderr, "✓ %s (%d replacements, %s)\n", report.Subject, report.Replacements, r.Duration.Round(time.Millisecond))
		},
	})

	urls, err := worker.ReadURLsFromFile(file)
	if err != nil {
		return fmt.Errorf("read URLs: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d URLs\n\n", len(urls))

	results := processor.ProcessURLs(ctx, urls)

	// pages cut off by the timeout never reach OnResult
	if missing := len(results) - succeeded - failed; missing > 0 {
		failed += missing
		fmt.Fprintf(os.Stderr, "✗ %d pages not processed before the timeout\n", missing)
	}

	fmt.Fprint(os.Stderr, renderer.BatchSummary(len(results), succeeded, failed, replacements, dir))
	if failed > 0 && succeeded == 0 {
		return fmt.Errorf("all %d pages failed", failed)
	}
	return nil
}
