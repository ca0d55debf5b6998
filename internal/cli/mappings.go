package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ppiankov/birthplace/internal/lookup"
	"github.com/ppiankov/birthplace/internal/validate"
	"github.com/spf13/cobra"
)

var verifyBase string

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Inspect the replacement name table",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List obsolete names and their modern replacements",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		table, err := lookup.Resolve(cfg.Mappings.File)
		if err != nil {
			return err
		}
		if _, err := lookup.Build(table); err != nil {
			return fmt.Errorf("invalid mapping table: %w", err)
		}

		source := "bundled"
		if cfg.Mappings.File != "" {
			source = cfg.Mappings.File
		}
		fmt.Fprintf(os.Stderr, "Table: %s (%d mappings, %d names)\n\n", source, len(table.Mappings), table.VariantCount())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODERN\tPATH\tOBSOLETE NAMES")
		for _, mapping := range table.Mappings {
			fmt.Fprintf(w, "%s\t%s\t%s\n", mapping.ModernName, mapping.CanonicalPath, strings.Join(mapping.ObsoleteNames, "; "))
		}
		if len(table.TermsToRemove) > 0 {
			fmt.Fprintf(w, "\nRemoved terms:\t%s\n", strings.Join(table.TermsToRemove, "; "))
		}
		return w.Flush()
	},
}

var mappingsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every modern article path resolves on the wiki",
	Long: `Verify requests every canonical path of the table from the wiki
(HEAD, falling back to GET) and reports the ones that do not resolve.

Example:
  birthplace mappings verify
  birthplace mappings verify --base https://en.m.wikipedia.org`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, _, err := loadMatcher(cfg)
		if err != nil {
			return err
		}

		base := verifyBase
		if base == "" {
			base = cfg.Server.Upstream
		}

		v := validate.NewVerifier(cfg.HTTP.Timeout, cfg.Concurrency.VerifyWorkers, cfg.HTTP.UserAgent,
			cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		fmt.Fprintf(os.Stderr, "⚙️  Verifying %d paths against %s...\n\n", m.MappingCount(), base)
		results, err := v.Verify(ctx, base, m)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}

		for _, r := range results {
			switch {
			case !r.Reachable && r.Error != "":
				fmt.Fprintf(os.Stderr, "✗ %s %s: %s\n", r.ModernName, r.Path, r.Error)
			case !r.Reachable:
				fmt.Fprintf(os.Stderr, "✗ %s %s: HTTP %d\n", r.ModernName, r.Path, r.StatusCode)
			case r.RedirectURL != "":
				fmt.Fprintf(os.Stderr, "✓ %s %s (redirects to %s)\n", r.ModernName, r.Path, r.RedirectURL)
			default:
				fmt.Fprintf(os.Stderr, "✓ %s %s\n", r.ModernName, r.Path)
			}
		}

		if bad := validate.Unreachable(results); len(bad) > 0 {
			return fmt.Errorf("%d of %d paths did not resolve", len(bad), len(results))
		}
		fmt.Fprintf(os.Stderr, "\n✓ All %d paths resolve\n", len(results))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mappingsCmd)
	mappingsCmd.AddCommand(mappingsListCmd, mappingsVerifyCmd)
	mappingsVerifyCmd.Flags().StringVar(&verifyBase, "base", "", "wiki base URL (default: server.upstream)")
}
