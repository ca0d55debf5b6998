package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/birthplace/internal/model"
	"github.com/ppiankov/birthplace/internal/pipeline"
)

type fakeCorrector struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeCorrector) CorrectURL(_ context.Context, rawURL string) (*pipeline.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()

	if f.fail[rawURL] {
		return nil, errors.New("fetch: unexpected status: 404 Not Found")
	}
	return &pipeline.Result{
		Report: &model.Report{SourceURL: rawURL, Replacements: 2},
		HTML:   "<html></html>",
	}, nil
}

func writeURLFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_ProcessURLs(t *testing.T) {
	fake := &fakeCorrector{fail: map[string]bool{"https://en.wikipedia.org/wiki/Nowhere": true}}

	var mu sync.Mutex
	seen := 0
	processor := NewBatchProcessor(fake, BatchOptions{
		Workers: 2,
		OnResult: func(*PageResult) {
			mu.Lock()
			seen++
			mu.Unlock()
		},
	})

	urls := []string{
		"https://en.wikipedia.org/wiki/Mark_Rothko",
		"https://en.wikipedia.org/wiki/Nowhere",
		"https://en.wikipedia.org/wiki/Sergei_Bubka",
	}
	results := processor.ProcessURLs(context.Background(), urls)

	if len(results) != 3 || seen != 3 {
		t.Fatalf("Expected 3 results and callbacks, got %d and %d", len(results), seen)
	}
	for i, r := range results {
		if r.URL != urls[i] {
			t.Errorf("Expected result %d for %s, got %s", i, urls[i], r.URL)
		}
	}
	if results[1].Err == nil || results[1].Replacements() != 0 {
		t.Errorf("Expected failed page, got %+v", results[1])
	}
	if results[0].Err != nil || results[0].Replacements() != 2 {
		t.Errorf("Expected corrected page, got %+v", results[0])
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(&fakeCorrector{}, BatchOptions{Workers: 2})
	if results := processor.ProcessURLs(context.Background(), nil); len(results) != 0 {
		t.Errorf("Expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewBatchProcessor(&fakeCorrector{}, BatchOptions{Workers: 1})
	results := processor.ProcessURLs(ctx, []string{"https://en.wikipedia.org/wiki/Riga"})

	if len(results) != 1 || results[0].Err == nil {
		t.Errorf("Expected an error result for a cancelled batch, got %+v", results)
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := writeURLFile(t, "https://en.wikipedia.org/wiki/Riga\n# comment\n\nhttps://en.wikipedia.org/wiki/Tallinn\n")
	fake := &fakeCorrector{}
	processor := NewBatchProcessor(fake, BatchOptions{Workers: 2})

	results, err := processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(results) != 2 || len(fake.calls) != 2 {
		t.Errorf("Expected 2 pages processed, got %d", len(results))
	}

	if _, err := processor.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestReadURLsFromFile(t *testing.T) {
	path := writeURLFile(t, strings.Join([]string{
		"https://en.wikipedia.org/wiki/Riga",
		"  # indented comment",
		"   ",
		"https://en.wikipedia.org/wiki/Tallinn   ",
		"https://en.wikipedia.org/wiki/Riga",
	}, "\n"))

	urls, err := ReadURLsFromFile(path)
	if err != nil {
		t.Fatalf("ReadURLsFromFile: %v", err)
	}

	expected := []string{"https://en.wikipedia.org/wiki/Riga", "https://en.wikipedia.org/wiki/Tallinn"}
	if len(urls) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, urls)
	}
	for i := range expected {
		if urls[i] != expected[i] {
			t.Errorf("Expected %s at %d, got %s", expected[i], i, urls[i])
		}
	}
}
