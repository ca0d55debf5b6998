package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/birthplace/internal/lookup"
	"github.com/ppiankov/birthplace/internal/model"
)

const rothkoPage = `<html><body>
<table class="infobox"><tbody>
<tr><th>Born</th><td>Marcus Rothkowitz<br/>September 25, 1903<br/>Dvinsk, Vitebsk Governorate, <a href="/wiki/Latvian_SSR">Latvian SSR</a>, <a href="/wiki/Soviet_Union">Soviet Union</a></td></tr>
<tr><th>Died</th><td>New York City</td></tr>
</tbody></table>
</body></html>`

type countingSink struct {
	mu    sync.Mutex
	total int
}

func (s *countingSink) AddReplacements(_ context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += n
	return nil
}

type fixedEnabled bool

func (f fixedEnabled) Enabled(context.Context) (bool, error) { return bool(f), nil }

func testPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()

	table, err := lookup.DefaultTable()
	if err != nil {
		t.Fatalf("DefaultTable: %v", err)
	}
	m, err := lookup.Build(table)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cfg := model.DefaultConfig()
	cfg.HTTP.RespectRobots = false
	cfg.Cache.Enabled = false
	cfg.Output.IncludeFooter = false
	return NewPipeline(cfg, m, opts)
}

func TestCorrectHTML(t *testing.T) {
	sink := &countingSink{}
	p := testPipeline(t, Options{Tally: sink})

	result, err := p.CorrectHTML(context.Background(), "testdata/Mark_Rothko.html", rothkoPage)
	if err != nil {
		t.Fatalf("CorrectHTML: %v", err)
	}

	report := result.Report
	if report.Subject != "Mark Rothko" {
		t.Errorf("Expected subject from file name, got %q", report.Subject)
	}
	if report.Status != "completed" {
		t.Errorf("Expected completed, got %s", report.Status)
	}
	// label + target + removed union link
	if report.Replacements != 3 || sink.total != 3 {
		t.Errorf("Expected 3 replacements, got %d (tally %d)", report.Replacements, sink.total)
	}
	if len(report.Regions) != 1 || report.Regions[0].Label != "td[Born]" {
		t.Errorf("Unexpected regions %+v", report.Regions)
	}
	if report.Table.Mappings != 15 || report.Table.Source != "bundled" {
		t.Errorf("Unexpected table info %+v", report.Table)
	}

	if !strings.Contains(result.HTML, `<a href="/wiki/Latvia">Latvia</a>`) {
		t.Errorf("Expected corrected link in output")
	}
	if strings.Contains(result.HTML, "Soviet_Union") {
		t.Errorf("Expected union link removed")
	}
}

func TestCorrectHTML_Disabled(t *testing.T) {
	sink := &countingSink{}
	p := testPipeline(t, Options{Tally: sink, Enabled: fixedEnabled(false)})

	result, err := p.CorrectHTML(context.Background(), "page.html", rothkoPage)
	if err != nil {
		t.Fatalf("CorrectHTML: %v", err)
	}
	if result.Report.Status != "disabled" || result.Report.Replacements != 0 || sink.total != 0 {
		t.Errorf("Expected untouched page, got %+v", result.Report)
	}
	if !strings.Contains(result.HTML, "Latvian SSR") {
		t.Error("Expected original text kept")
	}
}

func TestCorrectHTML_MissingTable(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = false
	p := NewPipeline(cfg, nil, Options{})

	result, err := p.CorrectHTML(context.Background(), "page.html", rothkoPage)
	if err != nil {
		t.Fatalf("Expected report rather than error, got %v", err)
	}
	if result.Report.Status != "config_missing" || len(result.Report.Warnings) != 1 {
		t.Errorf("Expected config_missing with a warning, got %+v", result.Report)
	}
}

func TestCorrectURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(rothkoPage))
	}))
	defer server.Close()

	p := testPipeline(t, Options{
		Fetcher: NewFetcher(5*time.Second, "test-agent", 1<<20, false, "", "", ""),
	})

	result, err := p.CorrectURL(context.Background(), server.URL+"/wiki/Mark_Rothko")
	if err != nil {
		t.Fatalf("CorrectURL: %v", err)
	}
	if result.Report.Subject != "Mark Rothko" || result.Report.FetchMeta.StatusCode != 200 {
		t.Errorf("Unexpected report header %+v", result.Report)
	}
	if result.Report.Replacements != 3 {
		t.Errorf("Expected 3 replacements, got %d", result.Report.Replacements)
	}
}

func TestRenderReport(t *testing.T) {
	p := testPipeline(t, Options{})
	result, err := p.CorrectHTML(context.Background(), "Mark_Rothko.html", rothkoPage)
	if err != nil {
		t.Fatalf("CorrectHTML: %v", err)
	}

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out", "report.json")
	mdPath := filepath.Join(dir, "out", "report.md")
	htmlPath := filepath.Join(dir, "out", "page.html")

	if err := p.RenderReport(result, jsonPath, mdPath, htmlPath, false); err != nil {
		t.Fatalf("RenderReport: %v", err)
	}

	for _, path := range []string{jsonPath, mdPath, htmlPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected %s written: %v", path, err)
		}
	}

	md, _ := os.ReadFile(mdPath)
	if !strings.Contains(string(md), "| Links removed | 1 |") {
		t.Errorf("Expected change table in markdown:\n%s", md)
	}
	if strings.Contains(string(md), "Generated by birthplace") {
		t.Error("Expected footer omitted")
	}
}
