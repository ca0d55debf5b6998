package correct

import (
	"fmt"
	"sync"

	"github.com/ppiankov/birthplace/internal/dom"
	"golang.org/x/net/html"
)

// MutationEvent describes a structural change to a Document
type MutationEvent struct {
	Target *html.Node
	Added  []*html.Node
}

// Document is a mutable article tree shared between a host that appends late
// content and the passes that correct it. Every mutation and every pass holds
// the document lock.
type Document struct {
	mu   sync.Mutex
	root *html.Node

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(MutationEvent)
}

// NewDocument wraps an already parsed tree
func NewDocument(root *html.Node) *Document {
	return &Document{root: root, subs: make(map[int]func(MutationEvent))}
}

// ParseDocument parses content into a Document
func ParseDocument(content string) (*Document, error) {
	root, err := dom.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return NewDocument(root), nil
}

// Root returns the underlying tree. Callers must not mutate it while a pass
// may be running; use Append for late content.
func (d *Document) Root() *html.Node {
	return d.root
}

// Subscribe registers fn for structural changes and returns a function that
// removes it
func (d *Document) Subscribe(fn func(MutationEvent)) func() {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	id := d.nextID
	d.nextID++
	d.subs[id] = fn

	return func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		delete(d.subs, id)
	}
}

// Append attaches nodes under parent and notifies subscribers
func (d *Document) Append(parent *html.Node, nodes ...*html.Node) {
	if parent == nil || len(nodes) == 0 {
		return
	}

	d.mu.Lock()
	for _, n := range nodes {
		dom.Detach(n)
		parent.AppendChild(n)
	}
	d.mu.Unlock()

	d.notify(MutationEvent{Target: parent, Added: nodes})
}

// AppendHTML parses content as children of parent and appends them
func (d *Document) AppendHTML(parent *html.Node, content string) ([]*html.Node, error) {
	if parent == nil {
		return nil, fmt.Errorf("append: %w: nil parent", ErrUnexpectedStructure)
	}

	nodes, err := dom.ParseFragment(content, parent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}
	d.Append(parent, nodes...)
	return nodes, nil
}

// Render serializes the whole tree
func (d *Document) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return dom.Render(d.root)
}

// Correct runs one pass of c over the document
func (d *Document) Correct(c *Corrector) PassResult {
	return c.run(d.root, &d.mu)
}

func (d *Document) notify(ev MutationEvent) {
	d.subMu.Lock()
	fns := make([]func(MutationEvent), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
