package state

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "nested", "state.db")})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_Defaults(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			enabled, err := s.Enabled(ctx)
			if err != nil || !enabled {
				t.Errorf("Expected enabled by default, got %v (%v)", enabled, err)
			}
			tally, err := s.Tally(ctx)
			if err != nil || tally != 0 {
				t.Errorf("Expected zero tally, got %d (%v)", tally, err)
			}
		})
	}
}

func TestStore_EnabledRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.SetEnabled(ctx, false); err != nil {
				t.Fatalf("SetEnabled: %v", err)
			}
			if v, _ := s.Enabled(ctx); v {
				t.Error("Expected disabled")
			}
			if err := s.SetEnabled(ctx, true); err != nil {
				t.Fatalf("SetEnabled: %v", err)
			}
			if v, _ := s.Enabled(ctx); !v {
				t.Error("Expected enabled")
			}
		})
	}
}

func TestStore_TallyAccumulates(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.AddTally(ctx, 3); err != nil {
						t.Errorf("AddTally: %v", err)
					}
				}()
			}
			wg.Wait()

			if got, _ := s.Tally(ctx); got != 30 {
				t.Errorf("Expected 30, got %d", got)
			}

			total, err := s.AddTally(ctx, -5)
			if err != nil || total != 30 {
				t.Errorf("Expected negative increments ignored, got %d (%v)", total, err)
			}

			if err := s.ResetTally(ctx); err != nil {
				t.Fatalf("ResetTally: %v", err)
			}
			if got, _ := s.Tally(ctx); got != 0 {
				t.Errorf("Expected 0 after reset, got %d", got)
			}
		})
	}
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if _, err := s.AddTally(ctx, 1); !errors.Is(err, ErrClosed) {
				t.Errorf("Expected ErrClosed, got %v", err)
			}
			if err := s.SetEnabled(ctx, false); !errors.Is(err, ErrClosed) {
				t.Errorf("Expected ErrClosed, got %v", err)
			}
		})
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := first.AddTally(ctx, 7); err != nil {
		t.Fatalf("AddTally: %v", err)
	}
	if err := first.SetEnabled(ctx, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	first.Close()

	second, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	if got, _ := second.Tally(ctx); got != 7 {
		t.Errorf("Expected tally 7 after reopen, got %d", got)
	}
	if v, _ := second.Enabled(ctx); v {
		t.Error("Expected disabled flag to persist")
	}
}

func TestDefaultSQLiteConfig_Env(t *testing.T) {
	t.Setenv(EnvStatePath, "/tmp/custom.db")
	if got := DefaultSQLiteConfig().Path; got != "/tmp/custom.db" {
		t.Errorf("Expected env override, got %s", got)
	}
}
