package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// EnvStatePath overrides the default database location
const EnvStatePath = "BIRTHPLACE_STATE_PATH"

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteConfig locates the state database
type SQLiteConfig struct {
	Path string
}

// DefaultSQLiteConfig returns ~/.birthplace/state.db unless the environment
// says otherwise
func DefaultSQLiteConfig() SQLiteConfig {
	if p := os.Getenv(EnvStatePath); p != "" {
		return SQLiteConfig{Path: p}
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return SQLiteConfig{Path: filepath.Join(home, ".birthplace", "state.db")}
}

// SQLiteStore keeps state in a small key/value table
type SQLiteStore struct {
	db *sql.DB

	mu     sync.RWMutex
	closed bool
}

// OpenSQLite opens (and creates when needed) the state database
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg = DefaultSQLiteConfig()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps increments serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Enabled(ctx context.Context) (bool, error) {
	raw, ok, err := s.get(ctx, keyEnabled)
	if err != nil || !ok {
		return DefaultEnabled, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return DefaultEnabled, fmt.Errorf("parse enabled flag %q: %w", raw, err)
	}
	return v, nil
}

func (s *SQLiteStore) SetEnabled(ctx context.Context, enabled bool) error {
	return s.put(ctx, keyEnabled, strconv.FormatBool(enabled))
}

func (s *SQLiteStore) Tally(ctx context.Context) (int64, error) {
	raw, ok, err := s.get(ctx, keyTally)
	if err != nil || !ok {
		return DefaultTally, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return DefaultTally, fmt.Errorf("parse tally %q: %w", raw, err)
	}
	return v, nil
}

func (s *SQLiteStore) AddTally(ctx context.Context, n int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tally update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, keyTally).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("read tally: %w", err)
	default:
		if current, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, fmt.Errorf("parse tally %q: %w", raw, err)
		}
	}

	if n > 0 {
		current += n
	}

	if _, err := tx.ExecContext(ctx, upsert, keyTally, strconv.FormatInt(current, 10)); err != nil {
		return 0, fmt.Errorf("write tally: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tally: %w", err)
	}
	return current, nil
}

func (s *SQLiteStore) ResetTally(ctx context.Context) error {
	return s.put(ctx, keyTally, "0")
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

const upsert = `
INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (s *SQLiteStore) get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) put(ctx context.Context, key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	if _, err := s.db.ExecContext(ctx, upsert, key, value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
