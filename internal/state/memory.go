package state

import (
	"context"
	"sync"
)

// MemoryStore keeps state for the life of the process
type MemoryStore struct {
	mu      sync.Mutex
	enabled bool
	tally   int64
	closed  bool
}

// NewMemoryStore creates a store holding the defaults
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{enabled: DefaultEnabled, tally: DefaultTally}
}

func (m *MemoryStore) Enabled(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return DefaultEnabled, ErrClosed
	}
	return m.enabled, ctx.Err()
}

func (m *MemoryStore) SetEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.enabled = enabled
	return nil
}

func (m *MemoryStore) Tally(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return DefaultTally, ErrClosed
	}
	return m.tally, ctx.Err()
}

func (m *MemoryStore) AddTally(ctx context.Context, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return m.tally, err
	}
	if n > 0 {
		m.tally += n
	}
	return m.tally, nil
}

func (m *MemoryStore) ResetTally(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.tally = 0
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
