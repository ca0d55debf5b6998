package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/birthplace/internal/correct"
	"github.com/ppiankov/birthplace/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	outHTML     string
	outJSON     string
	outMD       string
	timeout     time.Duration
	dryRun      bool
	force       bool
	noCache     bool
	noFooter    bool
	noIndicator bool
	insecureTLS bool
	httpProxy   string
	httpsProxy  string
)

var correctCmd = &cobra.Command{
	Use:   "correct <url|file>",
	Short: "Correct the infobox birthplaces of one page",
	Long: `Correct fetches an article (or reads a saved HTML file), rewrites
Soviet-era birthplace designations in its infobox to the modern country,
and writes the corrected page and a change report.

The replacement tally is updated unless --dry-run is given. When correction
is disabled (birthplace state disable) the page is left as it is unless
--force is given.

Example:
  birthplace correct https://en.wikipedia.org/wiki/Mark_Rothko --out rothko.html
  birthplace correct saved/Sergei_Bubka.html --json report.json --md report.md
  birthplace correct https://en.wikipedia.org/wiki/Garry_Kasparov --out - --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runCorrect,
}

func init() {
	rootCmd.AddCommand(correctCmd)

	correctCmd.Flags().StringVar(&outHTML, "out", "", "write the corrected page here (- for stdout)")
	correctCmd.Flags().StringVar(&outJSON, "json", "", "output JSON report path")
	correctCmd.Flags().StringVar(&outMD, "md", "", "output Markdown report path")
	correctCmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not update the replacement tally")
	correctCmd.Flags().BoolVar(&force, "force", false, "correct even when correction is disabled")
	correctCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	addFetchFlags(correctCmd)
}

// addFetchFlags registers the fetch and output flags shared by correct and
// batch
func addFetchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&noCache, "no-cache", false, "disable page cache (force fresh fetch)")
	flags.BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	flags.BoolVar(&noIndicator, "no-indicator", false, "do not mark corrected regions visually")
	flags.BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")
	flags.StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	flags.StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	flags.String("ua", "", "HTTP User-Agent")
}

// bindFetchFlags points the shared config keys at the flags of the command
// that is actually running
func bindFetchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	_ = viper.BindPFlag("http.user_agent", flags.Lookup("ua"))
	_ = viper.BindPFlag("http.insecure_tls", flags.Lookup("insecure"))
	_ = viper.BindPFlag("http.http_proxy", flags.Lookup("http-proxy"))
	_ = viper.BindPFlag("http.https_proxy", flags.Lookup("https-proxy"))
}

func runCorrect(cmd *cobra.Command, args []string) error {
	target := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	p, cleanup, err := buildPipeline(cmd, dryRun, force)
	if err != nil {
		return err
	}
	defer cleanup()

	if verbose {
		fmt.Fprintf(os.Stderr, "Correcting: %s\n", target)
		fmt.Fprintf(os.Stderr, "Dry run: %v\n\n", dryRun)
	}

	var result *pipeline.Result
	if isURL(target) {
		result, err = p.CorrectURL(ctx, target)
	} else {
		var content []byte
		content, err = os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("read page: %w", err)
		}
		result, err = p.CorrectHTML(ctx, target, string(content))
	}
	if err != nil {
		return fmt.Errorf("correct failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ %d regions, %d replacements\n\n", len(result.Report.Regions), result.Report.Replacements)
	}

	if outHTML == "-" {
		if err := p.RenderReport(result, outJSON, outMD, "", false); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Print(result.HTML)
		return nil
	}

	if err := p.RenderReport(result, outJSON, outMD, outHTML, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if result.Report.Status == string(correct.StatusDisabled) {
		fmt.Fprintf(os.Stderr, "Correction is disabled. Run 'birthplace state enable' or pass --force.\n")
	}
	return nil
}

// buildPipeline wires config, logger, matcher and state into a pipeline.
// noTally leaves the replacement tally alone; ignoreEnabled corrects even
// when correction is switched off.
func buildPipeline(cmd *cobra.Command, noTally, ignoreEnabled bool) (*pipeline.Pipeline, func(), error) {
	bindFetchFlags(cmd)
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if cmd.Flags().Changed("no-footer") {
		cfg.Output.IncludeFooter = !noFooter
	}
	if cmd.Flags().Changed("no-indicator") {
		cfg.Correction.Indicator = !noIndicator
	}

	logger := newLogger(cfg)
	matcher, source, err := loadMatcher(cfg)
	if err != nil {
		// the corrector reports config_missing for every page
		fmt.Fprintf(os.Stderr, "✗ Mapping table unavailable: %v\n", err)
	}

	host := openHost(cfg, logger)
	opts := pipeline.Options{Logger: logger, TableSource: source}
	if !noTally {
		opts.Tally = host
	}
	if !ignoreEnabled {
		opts.Enabled = host
	}

	cleanup := func() {
		_ = host.Close()
		_ = logger.Sync()
	}
	return pipeline.NewPipeline(cfg, matcher, opts), cleanup, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
