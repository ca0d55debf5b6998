package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/birthplace/internal/model"
	"github.com/ppiankov/birthplace/internal/state"
)

// Renderer writes reports and corrected pages
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes a human-readable report
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	return writeFile(path, []byte(r.Markdown(report)))
}

// RenderHTML writes the corrected page
func (r *Renderer) RenderHTML(content, path string) error {
	return writeFile(path, []byte(content))
}

// Markdown formats a report
func (r *Renderer) Markdown(report *model.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Birthplace corrections: %s\n\n", report.Subject)
	fmt.Fprintf(&b, "- Source: %s\n", report.SourceURL)
	fmt.Fprintf(&b, "- Run: `%s`\n", report.RunID)
	fmt.Fprintf(&b, "- Fetched: %s\n", report.FetchedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- Status: %s\n", report.Status)
	fmt.Fprintf(&b, "- Replacements: %d\n", report.Replacements)
	if report.Failed > 0 {
		fmt.Fprintf(&b, "- Failed regions: %d\n", report.Failed)
	}
	fmt.Fprintf(&b, "- Name table: %s (%d mappings, %d variants)\n\n",
		report.Table.Source, report.Table.Mappings, report.Table.Variants)

	c := report.Changes
	b.WriteString("## Changes\n\n")
	b.WriteString("| Kind | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Text substitutions | %d |\n", c.TextSubstitutions)
	fmt.Fprintf(&b, "| Link targets rewritten | %d |\n", c.TargetRewrites)
	fmt.Fprintf(&b, "| Link labels rewritten | %d |\n", c.LabelRewrites)
	fmt.Fprintf(&b, "| Links removed | %d |\n", c.LinkRemovals)
	fmt.Fprintf(&b, "| Separators repaired | %d |\n\n", c.Separators)

	if len(report.Regions) > 0 {
		b.WriteString("## Regions\n\n")
		for _, region := range report.Regions {
			fmt.Fprintf(&b, "### %s\n\n", region.Label)
			if region.Error != "" {
				fmt.Fprintf(&b, "✗ Left unchanged: %s\n\n", region.Error)
				continue
			}
			fmt.Fprintf(&b, "- Before: %s\n", region.Before)
			fmt.Fprintf(&b, "- After: %s\n\n", region.After)
		}
	}

	if len(report.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("_Generated by birthplace. Soviet-era administrative names are rewritten to the modern state; nothing else on the page is changed._\n")
	}

	return b.String()
}

// RenderSummary prints a short summary to stdout
func (r *Renderer) RenderSummary(report *model.Report) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", report.Subject)
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Printf("  Status:        %s\n", report.Status)
	fmt.Printf("  Replacements:  %d\n", report.Replacements)
	if report.Failed > 0 {
		fmt.Printf("  Failed:        %d\n", report.Failed)
	}
	for _, region := range report.Regions {
		if region.Error != "" {
			fmt.Printf("  ✗ %s\n", region.Label)
			continue
		}
		fmt.Printf("  ✓ %s: %s\n", region.Label, region.After)
	}
	fmt.Println()
}

// BatchSummary is shown at the end of a batch run
func (r *Renderer) BatchSummary(total, succeeded, failed, replacements int, outputDir string) string {
	var b strings.Builder
	b.WriteString("\n═══════════════════════════════════════════════════════════\n")
	b.WriteString("  Batch Complete\n")
	b.WriteString("═══════════════════════════════════════════════════════════\n\n")
	fmt.Fprintf(&b, "  Total:         %d URLs\n", total)
	fmt.Fprintf(&b, "  Success:       %d\n", succeeded)
	fmt.Fprintf(&b, "  Failures:      %d\n", failed)
	fmt.Fprintf(&b, "  Replacements:  %d (%s)\n", replacements, badgeOrZero(int64(replacements)))
	fmt.Fprintf(&b, "  Output:        %s\n\n", outputDir)
	return b.String()
}

func badgeOrZero(n int64) string {
	if s := state.FormatCount(n); s != "" {
		return s
	}
	return "0"
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
