package correct

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/ppiankov/birthplace/internal/dom"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DefaultDebounce is the quiet period after the last qualifying structural
// change before a pass is requested
const DefaultDebounce = 500 * time.Millisecond

// EnabledSource is the persisted enabled flag as seen from a document
type EnabledSource interface {
	Enabled(ctx context.Context) (bool, error)
}

// ControllerOptions configures a Controller
type ControllerOptions struct {
	Logger   *zap.Logger
	Debounce time.Duration

	// OnPass is called after every pass the controller requests, including
	// passes that were dropped by a gate
	OnPass func(PassResult)
}

// Controller connects the three pass triggers of a document (initial load,
// enabled toggle, late structural changes) to a single Corrector
type Controller struct {
	corrector *Corrector
	doc       *Document
	logger    *zap.Logger
	onPass    func(PassResult)
	debounced func(func())

	mu          sync.Mutex
	unsubscribe func()
	stopped     bool
}

// NewController creates a controller for doc. Nothing runs until Start.
func NewController(c *Corrector, doc *Document, opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := opts.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}

	return &Controller{
		corrector: c,
		doc:       doc,
		logger:    logger,
		onPass:    opts.OnPass,
		debounced: debounce.New(delay),
	}
}

// Start reads the enabled flag, runs the initial pass and begins observing
// the document. A failing source counts as enabled.
func (ct *Controller) Start(ctx context.Context, src EnabledSource) PassResult {
	enabled := true
	if src != nil {
		v, err := src.Enabled(ctx)
		if err != nil {
			ct.logger.Warn("enabled flag unavailable, assuming enabled", zap.Error(err))
		} else {
			enabled = v
		}
	}
	ct.corrector.SetEnabled(enabled)

	ct.mu.Lock()
	if ct.unsubscribe == nil && !ct.stopped {
		ct.unsubscribe = ct.doc.Subscribe(ct.Observe)
	}
	ct.mu.Unlock()

	return ct.RunPass()
}

// Toggle applies an enabled-state notification. Enabling runs a pass at once;
// disabling leaves corrected regions as they are.
func (ct *Controller) Toggle(enabled bool) PassResult {
	ct.corrector.SetEnabled(enabled)
	if !enabled {
		return PassResult{Status: StatusDisabled}
	}
	return ct.RunPass()
}

// Observe inspects a structural change and schedules a debounced pass when
// it brings in an uncorrected infobox
func (ct *Controller) Observe(ev MutationEvent) {
	if !ct.corrector.Enabled() || ct.corrector.Processing() {
		return
	}
	if !qualifies(ev) {
		return
	}

	ct.mu.Lock()
	stopped := ct.stopped
	ct.mu.Unlock()
	if stopped {
		return
	}

	ct.logger.Debug("structural change observed, pass scheduled", zap.Int("added", len(ev.Added)))
	ct.debounced(func() {
		ct.mu.Lock()
		stopped := ct.stopped
		ct.mu.Unlock()
		if !stopped {
			ct.RunPass()
		}
	})
}

// RunPass requests one pass over the document
func (ct *Controller) RunPass() PassResult {
	result := ct.doc.Correct(ct.corrector)
	if ct.onPass != nil {
		ct.onPass(result)
	}
	return result
}

// Stop detaches from the document. A pass already scheduled is discarded.
func (ct *Controller) Stop() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.stopped = true
	if ct.unsubscribe != nil {
		ct.unsubscribe()
		ct.unsubscribe = nil
	}
}

// qualifies reports whether a change adds an infobox that still needs work.
// Changes under a corrected region and the checkmarks a pass adds are ignored.
func qualifies(ev MutationEvent) bool {
	if ev.Target != nil && (isMarked(ev.Target) || IsIndicator(ev.Target)) {
		return false
	}

	for _, n := range ev.Added {
		if n.Type != html.ElementNode || dom.HasClass(n, CheckmarkClass) {
			continue
		}
		if dom.HasClass(n, "infobox") {
			return true
		}
		for _, box := range dom.Select(n, infoboxSelector) {
			if !dom.HasAttr(box, MarkerAttr) {
				return true
			}
		}
	}
	return false
}
