package state

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventType names a state change
type EventType string

const (
	EventState EventType = "state"
	EventTally EventType = "tally"
)

// Event is sent to subscribers after every change
type Event struct {
	Type EventType `json:"type"`
	Snapshot
}

// Host sits between a Store and the corrector. Reads fall back to the last
// value seen (or the defaults) when the store fails, so a broken store only
// costs persistence.
type Host struct {
	store  Store
	logger *zap.Logger

	mu      sync.RWMutex
	enabled bool
	tally   int64

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// NewHost wraps store. A nil store behaves like an empty MemoryStore.
func NewHost(store Store, logger *zap.Logger) *Host {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		store:   store,
		logger:  logger,
		enabled: DefaultEnabled,
		tally:   DefaultTally,
		subs:    make(map[int]func(Event)),
	}
}

// Enabled returns the persisted flag, or the last known one if the store
// cannot be read. It never returns an error.
func (h *Host) Enabled(ctx context.Context) (bool, error) {
	v, err := h.store.Enabled(ctx)
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.logger.Warn("enabled flag unavailable, using last known value", zap.Bool("enabled", h.enabled), zap.Error(err))
		return h.enabled, nil
	}
	h.enabled = v
	return v, nil
}

// SetEnabled persists the flag and notifies subscribers. The cached value
// changes even when persisting fails.
func (h *Host) SetEnabled(ctx context.Context, enabled bool) error {
	err := h.store.SetEnabled(ctx, enabled)

	h.mu.Lock()
	h.enabled = enabled
	h.mu.Unlock()

	h.publish(EventState)
	return err
}

// Tally returns the persisted tally, or the last known one
func (h *Host) Tally(ctx context.Context) int64 {
	v, err := h.store.Tally(ctx)
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.logger.Warn("tally unavailable, using last known value", zap.Int64("tally", h.tally), zap.Error(err))
		return h.tally
	}
	h.tally = v
	return v
}

// AddReplacements adds n to the tally
func (h *Host) AddReplacements(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	total, err := h.store.AddTally(ctx, int64(n))

	h.mu.Lock()
	if err != nil {
		h.tally += int64(n)
	} else {
		h.tally = total
	}
	h.mu.Unlock()

	h.publish(EventTally)
	return err
}

// ResetTally sets the tally back to zero
func (h *Host) ResetTally(ctx context.Context) error {
	err := h.store.ResetTally(ctx)

	h.mu.Lock()
	h.tally = 0
	h.mu.Unlock()

	h.publish(EventTally)
	return err
}

// Snapshot returns the current values with the badge text
func (h *Host) Snapshot(ctx context.Context) Snapshot {
	enabled, _ := h.Enabled(ctx)
	tally := h.Tally(ctx)
	return Snapshot{Enabled: enabled, Tally: tally, Badge: FormatCount(tally)}
}

// Subscribe registers fn for change events and returns a function that
// removes it
func (h *Host) Subscribe(fn func(Event)) func() {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	id := h.nextID
	h.nextID++
	h.subs[id] = fn

	return func() {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		delete(h.subs, id)
	}
}

// Close closes the underlying store
func (h *Host) Close() error {
	return h.store.Close()
}

func (h *Host) cached() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{Enabled: h.enabled, Tally: h.tally, Badge: FormatCount(h.tally)}
}

func (h *Host) publish(t EventType) {
	ev := Event{Type: t, Snapshot: h.cached()}

	h.subMu.Lock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
