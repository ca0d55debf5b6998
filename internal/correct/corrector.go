// Package correct rewrites obsolete Soviet-era birthplace designations inside
// a parsed article tree.
//
// A Corrector owns its enabled and in-progress flags. Every trigger (initial
// load, a toggle, a structural change) goes through RunPass, which enforces
// both gates, so callers need no coordination of their own.
package correct

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/birthplace/internal/dom"
	"github.com/ppiankov/birthplace/internal/lookup"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// MarkerAttr is set on a region once it has been corrected. It is never cleared.
const MarkerAttr = "data-birthplace-corrected"

// ErrConfigMissing is reported when a pass starts without a matcher
var ErrConfigMissing = errors.New("name table not loaded")

// ErrUnexpectedStructure is wrapped by region failures caused by tree shapes
// the corrector does not handle
var ErrUnexpectedStructure = errors.New("unexpected document structure")

// tallyTimeout bounds how long a pass waits on the tally sink
const tallyTimeout = 2 * time.Second

// TallySink receives the number of atomic corrections applied in a pass
type TallySink interface {
	AddReplacements(ctx context.Context, n int) error
}

// PassStatus describes how a pass ended
type PassStatus string

const (
	StatusCompleted     PassStatus = "completed"
	StatusDisabled      PassStatus = "disabled"
	StatusBusy          PassStatus = "busy"
	StatusConfigMissing PassStatus = "config_missing"
)

// Changes counts what a region correction did
type Changes struct {
	TextSubstitutions int `json:"text_substitutions"`
	TargetRewrites    int `json:"target_rewrites"`
	LabelRewrites     int `json:"label_rewrites"`
	LinkRemovals      int `json:"link_removals"`

	// Separators are punctuation repairs. They mark a region as changed but
	// are not part of the replacement tally.
	Separators int `json:"separators"`
}

// Total is the number of atomic corrections that count towards the tally
func (c Changes) Total() int {
	return c.TextSubstitutions + c.TargetRewrites + c.LabelRewrites + c.LinkRemovals
}

// Any reports whether anything in the region was modified
func (c Changes) Any() bool {
	return c.Total() > 0 || c.Separators > 0
}

func (c *Changes) add(o Changes) {
	c.TextSubstitutions += o.TextSubstitutions
	c.TargetRewrites += o.TargetRewrites
	c.LabelRewrites += o.LabelRewrites
	c.LinkRemovals += o.LinkRemovals
	c.Separators += o.Separators
}

// RegionResult is the outcome of correcting one region
type RegionResult struct {
	Label   string  `json:"label"`
	Before  string  `json:"before"`
	After   string  `json:"after,omitempty"`
	Changes Changes `json:"changes"`
	Err     error   `json:"-"`
}

// RegionError isolates a failure to the region it happened in
type RegionError struct {
	Region string
	Err    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("correct region %s: %v", e.Region, e.Err)
}

func (e *RegionError) Unwrap() error {
	return e.Err
}

// PassResult summarises a single pass
type PassResult struct {
	ID           string         `json:"id"`
	Status       PassStatus     `json:"status"`
	Regions      []RegionResult `json:"regions,omitempty"`
	Changes      Changes        `json:"changes"`
	Replacements int            `json:"replacements"`
	Failed       int            `json:"failed"`
	Duration     time.Duration  `json:"duration"`
	Err          error          `json:"-"`
}

// Options configures a Corrector
type Options struct {
	Logger *zap.Logger
	Tally  TallySink

	// DisableIndicator skips the border, tooltip and checkmark added to
	// corrected regions
	DisableIndicator bool
}

// Corrector applies the name table to document regions
type Corrector struct {
	matcher   *lookup.Matcher
	logger    *zap.Logger
	tally     TallySink
	indicator bool
	dates     *regexp.Regexp

	// beforeRegion runs inside the isolation boundary of every region
	beforeRegion func(region *html.Node)

	enabled    atomic.Bool
	processing atomic.Bool
}

// New creates a Corrector. It starts enabled. A nil matcher is accepted so
// that a missing table surfaces as a failed pass rather than a crash.
func New(matcher *lookup.Matcher, opts Options) *Corrector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Corrector{
		matcher:   matcher,
		logger:    logger,
		tally:     opts.Tally,
		indicator: !opts.DisableIndicator,
	}
	if matcher != nil {
		c.dates = dateLocator(matcher.LocatorPrefix())
	}
	c.enabled.Store(true)
	return c
}

// SetEnabled refreshes the cached enabled flag
func (c *Corrector) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Enabled returns the cached enabled flag
func (c *Corrector) Enabled() bool {
	return c.enabled.Load()
}

// Processing reports whether a pass is running
func (c *Corrector) Processing() bool {
	return c.processing.Load()
}

// RunPass corrects every eligible region under root once
func (c *Corrector) RunPass(root *html.Node) PassResult {
	return c.run(root, nil)
}

// run executes a pass. lock, when set, is held for the duration of the tree
// work so hosts can serialize their own mutations against it.
func (c *Corrector) run(root *html.Node, lock sync.Locker) PassResult {
	start := time.Now()
	result := PassResult{ID: uuid.NewString()}

	if !c.enabled.Load() {
		result.Status = StatusDisabled
		return result
	}

	if !c.processing.CompareAndSwap(false, true) {
		c.logger.Debug("pass dropped, another pass is running", zap.String("pass", result.ID))
		result.Status = StatusBusy
		return result
	}
	defer c.processing.Store(false)

	if c.matcher == nil {
		c.logger.Error("correction pass aborted", zap.String("pass", result.ID), zap.Error(ErrConfigMissing))
		result.Status = StatusConfigMissing
		result.Err = ErrConfigMissing
		return result
	}

	if lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}

	if root != nil {
		for _, region := range c.discoverTargets(root) {
			// An earlier region in this pass may have marked an ancestor
			if isMarked(region) {
				continue
			}

			rr := c.correctRegion(region)
			if rr.Err != nil {
				result.Failed++
				result.Regions = append(result.Regions, rr)
				c.logger.Warn("region left uncorrected",
					zap.String("pass", result.ID),
					zap.String("region", rr.Label),
					zap.Error(rr.Err))
				continue
			}
			if !rr.Changes.Any() {
				continue
			}

			dom.SetAttr(region, MarkerAttr, "true")
			if c.indicator {
				c.addIndicator(region)
			}
			rr.After = normalizeSpace(dom.Text(region))

			result.Changes.add(rr.Changes)
			result.Replacements += rr.Changes.Total()
			result.Regions = append(result.Regions, rr)
		}
	}

	if result.Replacements > 0 {
		c.emitTally(result.ID, result.Replacements)
	}

	result.Status = StatusCompleted
	result.Duration = time.Since(start)

	c.logger.Debug("correction pass finished",
		zap.String("pass", result.ID),
		zap.Int("regions", len(result.Regions)),
		zap.Int("replacements", result.Replacements),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result
}

// emitTally reports the pass count. Failures are logged and otherwise ignored.
func (c *Corrector) emitTally(passID string, n int) {
	if c.tally == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), tallyTimeout)
	defer cancel()

	if err := c.tally.AddReplacements(ctx, n); err != nil {
		c.logger.Warn("tally update failed", zap.String("pass", passID), zap.Int("count", n), zap.Error(err))
	}
}

// correctRegion runs the detect, rewrite and repair steps on one region. A
// panic inside is turned into a RegionError so later regions still run.
func (c *Corrector) correctRegion(region *html.Node) (rr RegionResult) {
	rr.Label = describeRegion(region)
	rr.Before = normalizeSpace(dom.Text(region))

	defer func() {
		if r := recover(); r != nil {
			rr.Err = &RegionError{Region: rr.Label, Err: fmt.Errorf("%w: %v", ErrUnexpectedStructure, r)}
		}
	}()

	if c.beforeRegion != nil {
		c.beforeRegion(region)
	}

	if !c.matcher.ContainsObsoleteReference(dom.Text(region)) {
		return rr
	}

	if err := c.rewriteText(region, &rr.Changes); err != nil {
		rr.Err = &RegionError{Region: rr.Label, Err: err}
		return rr
	}

	removals := c.rewriteLinks(region, &rr.Changes)
	c.removeLinks(removals, &rr.Changes)
	rr.Changes.Separators += c.repairSeparators(region)

	return rr
}

// IsCorrected reports whether n or one of its ancestors carries the marker
func IsCorrected(n *html.Node) bool {
	return isMarked(n)
}

func isMarked(n *html.Node) bool {
	return dom.Closest(n, func(node *html.Node) bool {
		return dom.HasAttr(node, MarkerAttr)
	}) != nil
}
