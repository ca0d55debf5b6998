package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/birthplace/internal/correct"
	"github.com/ppiankov/birthplace/internal/lookup"
	"github.com/ppiankov/birthplace/internal/model"
	"go.uber.org/zap"
)

// Options wires a Pipeline to its collaborators
type Options struct {
	Logger *zap.Logger

	// Tally receives replacement counts. Nil leaves the tally alone, as in a
	// dry run.
	Tally correct.TallySink

	// Enabled is consulted before each page. Nil means always enabled.
	Enabled correct.EnabledSource

	// Fetcher overrides the one built from the config
	Fetcher *Fetcher

	TableSource string
}

// Pipeline fetches pages and corrects them
type Pipeline struct {
	fetcher  *Fetcher
	matcher  *lookup.Matcher
	renderer *Renderer
	config   *model.Config
	logger   *zap.Logger
	tally    correct.TallySink
	enabled  correct.EnabledSource
	table    model.TableInfo
}

// NewPipeline creates a pipeline. matcher may be nil, in which case every
// page is reported with a config_missing status.
func NewPipeline(cfg *model.Config, matcher *lookup.Matcher, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewFetcherFromConfig(cfg)
	}

	table := model.TableInfo{Source: opts.TableSource}
	if table.Source == "" {
		table.Source = "bundled"
	}
	if matcher != nil {
		table.Variants = len(matcher.Variants())
		table.Mappings = matcher.MappingCount()
	}

	return &Pipeline{
		fetcher:  fetcher,
		matcher:  matcher,
		renderer: NewRenderer(cfg.Output.IncludeFooter),
		config:   cfg,
		logger:   logger,
		tally:    opts.Tally,
		enabled:  opts.Enabled,
		table:    table,
	}
}

// NewFetcherFromConfig builds a fetcher with the configured proxy, robots
// policy and page cache
func NewFetcherFromConfig(cfg *model.Config) *Fetcher {
	f := NewFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes,
		cfg.HTTP.InsecureTLS, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
	if cfg.HTTP.RespectRobots {
		f.WithRobots()
	}
	if cfg.Cache.Enabled {
		f.WithCache(newPageCache(cfg.Cache), cfg.Cache.DiskTTL)
	}
	return f
}

// Result is a corrected page
type Result struct {
	Report *model.Report
	HTML   string
}

// CorrectURL fetches a page and corrects it
func (p *Pipeline) CorrectURL(ctx context.Context, rawURL string) (*Result, error) {
	fetched, err := p.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	result, err := p.correct(ctx, fetched.HTML)
	if err != nil {
		return nil, err
	}

	result.Report.Subject = fetched.Subject
	result.Report.SourceURL = fetched.FinalURL
	result.Report.FetchMeta = fetched.Meta
	result.Report.FromCache = fetched.FromCache
	return result, nil
}

// CorrectHTML corrects a page that is already in memory. source names it in
// the report (a file path or URL).
func (p *Pipeline) CorrectHTML(ctx context.Context, source, content string) (*Result, error) {
	result, err := p.correct(ctx, content)
	if err != nil {
		return nil, err
	}

	result.Report.SourceURL = source
	result.Report.Subject = subjectFromSource(source)
	return result, nil
}

func (p *Pipeline) correct(ctx context.Context, content string) (*Result, error) {
	doc, err := correct.ParseDocument(content)
	if err != nil {
		return nil, err
	}

	corrector := correct.New(p.matcher, correct.Options{
		Logger:           p.logger,
		Tally:            p.tally,
		DisableIndicator: !p.config.Correction.Indicator,
	})
	ctl := correct.NewController(corrector, doc, correct.ControllerOptions{
		Logger:   p.logger,
		Debounce: p.config.Correction.Debounce,
	})
	defer ctl.Stop()

	pass := ctl.Start(ctx, p.enabled)

	out, err := doc.Render()
	if err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}

	report := buildReport(pass)
	report.Table = p.table
	if pass.Err != nil {
		report.Warnings = append(report.Warnings, pass.Err.Error())
	}

	p.logger.Info("page corrected",
		zap.String("run", pass.ID),
		zap.String("status", string(pass.Status)),
		zap.Int("replacements", pass.Replacements),
		zap.Int("failed", pass.Failed))

	return &Result{Report: report, HTML: out}, nil
}

// RenderReport writes the requested outputs and prints a summary
func (p *Pipeline) RenderReport(result *Result, jsonPath, mdPath, htmlPath string, verbose bool) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(result.Report, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Printf("✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(result.Report, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Printf("✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	if htmlPath != "" {
		if err := p.renderer.RenderHTML(result.HTML, htmlPath); err != nil {
			return fmt.Errorf("render HTML: %w", err)
		}
		if verbose {
			fmt.Printf("✓ Wrote corrected page: %s\n", htmlPath)
		}
	}

	p.renderer.RenderSummary(result.Report)
	return nil
}

// Renderer returns the pipeline's renderer
func (p *Pipeline) Renderer() *Renderer {
	return p.renderer
}

func buildReport(pass correct.PassResult) *model.Report {
	report := &model.Report{
		RunID:        pass.ID,
		FetchedAt:    time.Now().UTC(),
		Status:       string(pass.Status),
		Changes:      changeCounts(pass.Changes),
		Replacements: pass.Replacements,
		Failed:       pass.Failed,
		Duration:     pass.Duration.String(),
		Regions:      make([]model.Region, 0, len(pass.Regions)),
	}

	for _, rr := range pass.Regions {
		region := model.Region{
			Label:   rr.Label,
			Before:  rr.Before,
			After:   rr.After,
			Changes: changeCounts(rr.Changes),
		}
		if rr.Err != nil {
			region.Error = rr.Err.Error()
		}
		report.Regions = append(report.Regions, region)
	}
	return report
}

func changeCounts(c correct.Changes) model.ChangeCounts {
	return model.ChangeCounts{
		TextSubstitutions: c.TextSubstitutions,
		TargetRewrites:    c.TargetRewrites,
		LabelRewrites:     c.LabelRewrites,
		LinkRemovals:      c.LinkRemovals,
		Separators:        c.Separators,
	}
}

func subjectFromSource(source string) string {
	if strings.Contains(source, "://") {
		return extractSubject(source)
	}
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, "_", " ")
}
