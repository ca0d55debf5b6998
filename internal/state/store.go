// Package state persists the two values the corrector shares with its hosts:
// whether correction is enabled and how many replacements have been made.
package state

import (
	"context"
	"errors"
)

// ErrClosed is returned by a store used after Close
var ErrClosed = errors.New("state store closed")

// Defaults applied when nothing has been stored yet
const (
	DefaultEnabled       = true
	DefaultTally   int64 = 0
)

const (
	keyEnabled = "enabled"
	keyTally   = "replacement_count"
)

// Store is the persisted enabled flag and replacement tally
type Store interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
	Tally(ctx context.Context) (int64, error)
	// AddTally increments the tally and returns the new value
	AddTally(ctx context.Context, n int64) (int64, error)
	ResetTally(ctx context.Context) error
	Close() error
}

// Snapshot is the state as shown to clients
type Snapshot struct {
	Enabled bool   `json:"enabled"`
	Tally   int64  `json:"tally"`
	Badge   string `json:"badge"`
}
