package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPageKey(t *testing.T) {
	a := PageKey("https://en.wikipedia.org/wiki/Mark_Rothko")
	b := PageKey("https://en.wikipedia.org/wiki/Mark_Rothko#Early_life")
	if a != b {
		t.Error("Expected fragment to be ignored")
	}
	if !strings.HasPrefix(a, "birthplace:v1:") {
		t.Errorf("Unexpected key %s", a)
	}
	if a == PageKey("https://en.wikipedia.org/wiki/Riga") {
		t.Error("Expected distinct keys for distinct pages")
	}
}

func TestDiskCache_SetGetExpire(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := PageKey("https://example.org/a")

	if err := c.Set(key, []byte("<html>a</html>"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != "<html>a</html>" {
		t.Fatalf("Expected cached page, got %q %v", got, ok)
	}

	if err := c.Set(key, []byte("old"), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("Expected expired entry to miss")
	}

	if err := c.Delete(key); err != nil {
		t.Errorf("Expected deleting a missing entry to succeed, got %v", err)
	}
}

func TestDiskCache_Prune(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	_ = c.Set(PageKey("fresh"), []byte("x"), 0)
	_ = c.Set(PageKey("stale"), []byte("y"), time.Nanosecond)
	corrupt := filepath.Join(dir, "zz", "broken.cache")
	_ = os.MkdirAll(filepath.Dir(corrupt), 0o755)
	_ = os.WriteFile(corrupt, []byte("not json"), 0o644)
	time.Sleep(5 * time.Millisecond)

	removed, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 entries pruned, got %d", removed)
	}
	if _, ok := c.Get(PageKey("fresh")); !ok {
		t.Error("Expected fresh entry kept")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	key := PageKey("https://example.org/b")

	writer := NewLayeredCache(time.Minute, dir, time.Hour)
	if err := writer.Set(key, []byte("page"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A fresh instance only has the disk layer populated
	reader := NewLayeredCache(time.Minute, dir, time.Hour)
	if _, ok := reader.Get(key); !ok {
		t.Fatal("Expected disk hit")
	}
	if reader.memory.Len() != 1 {
		t.Error("Expected disk hit promoted to memory")
	}
	if _, ok := reader.Get(PageKey("missing")); ok {
		t.Error("Expected miss")
	}

	if s := reader.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Unexpected stats %+v", s)
	}

	if err := reader.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := reader.Get(key); ok {
		t.Error("Expected empty cache after Clear")
	}
}
