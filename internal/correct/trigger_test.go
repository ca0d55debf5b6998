package correct

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/birthplace/internal/dom"
	"golang.org/x/net/html"
)

type staticSource struct {
	enabled bool
	err     error
}

func (s staticSource) Enabled(context.Context) (bool, error) {
	return s.enabled, s.err
}

func newTestController(t *testing.T, content string) (*Controller, *Document, chan PassResult) {
	t.Helper()

	doc, err := ParseDocument(content)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	passes := make(chan PassResult, 16)
	ct := NewController(plainCorrector(t, nil), doc, ControllerOptions{
		Debounce: 50 * time.Millisecond,
		OnPass:   func(r PassResult) { passes <- r },
	})
	t.Cleanup(ct.Stop)
	return ct, doc, passes
}

func waitPass(t *testing.T, passes <-chan PassResult) PassResult {
	t.Helper()
	select {
	case r := <-passes:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a pass")
		return PassResult{}
	}
}

func body(t *testing.T, doc *Document) *html.Node {
	t.Helper()
	b := dom.FindFirst(doc.Root(), func(n *html.Node) bool { return dom.IsElement(n, "body") })
	if b == nil {
		t.Fatal("Expected body element")
	}
	return b
}

func TestController_StartRunsInitialPass(t *testing.T) {
	ct, doc, _ := newTestController(t, infoboxPage(bornRow("Yerevan, Armenian SSR")))

	result := ct.Start(context.Background(), staticSource{enabled: true})

	if result.Replacements != 1 {
		t.Errorf("Expected initial pass to correct 1, got %d", result.Replacements)
	}
	if got := dom.Text(byID(t, doc.Root(), "born")); got != "Yerevan, Armenia" {
		t.Errorf("Unexpected text %q", got)
	}
}

func TestController_StartFallsBackToEnabled(t *testing.T) {
	ct, _, _ := newTestController(t, infoboxPage(bornRow("Yerevan, Armenian SSR")))

	result := ct.Start(context.Background(), staticSource{err: errors.New("no host")})

	if result.Status != StatusCompleted || result.Replacements != 1 {
		t.Errorf("Expected pass to run with default enabled state, got %+v", result)
	}
}

func TestController_ToggleEnablesLater(t *testing.T) {
	ct, doc, _ := newTestController(t, infoboxPage(bornRow("Chisinau, Moldavian SSR")))

	if r := ct.Start(context.Background(), staticSource{enabled: false}); r.Status != StatusDisabled {
		t.Fatalf("Expected disabled initial pass, got %s", r.Status)
	}
	if IsCorrected(byID(t, doc.Root(), "born")) {
		t.Fatal("Expected no correction while disabled")
	}

	if r := ct.Toggle(true); r.Replacements != 1 {
		t.Errorf("Expected toggle to trigger a pass, got %+v", r)
	}
	if r := ct.Toggle(false); r.Status != StatusDisabled {
		t.Errorf("Expected disabled status, got %s", r.Status)
	}
	if !IsCorrected(byID(t, doc.Root(), "born")) {
		t.Error("Expected disabling to keep earlier corrections")
	}
}

func TestController_LateInfoboxTriggersDebouncedPass(t *testing.T) {
	ct, doc, passes := newTestController(t, `<html><body><p>Intro</p></body></html>`)
	ct.Start(context.Background(), staticSource{enabled: true})
	waitPass(t, passes)

	b := body(t, doc)
	late := `<table class="infobox"><tbody><tr><th>Born</th><td id="late">Ashgabat, Turkmen SSR</td></tr></tbody></table>`
	if _, err := doc.AppendHTML(b, late); err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}
	// A burst of changes coalesces into one pass
	for i := 0; i < 3; i++ {
		doc.AppendHTML(b, `<div><table class="infobox"></table></div>`)
	}

	result := waitPass(t, passes)
	if result.Replacements != 1 {
		t.Errorf("Expected late region corrected, got %+v", result)
	}

	select {
	case extra := <-passes:
		t.Errorf("Expected one coalesced pass, got another: %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}

	out, err := doc.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := "Ashgabat, <a href=\"/wiki/Turkmenistan\""; !strings.Contains(out, want) {
		t.Errorf("Expected %q in output", want)
	}
}

func TestController_StopDetaches(t *testing.T) {
	ct, doc, passes := newTestController(t, `<html><body></body></html>`)
	ct.Start(context.Background(), staticSource{enabled: true})
	waitPass(t, passes)

	ct.Stop()
	doc.AppendHTML(body(t, doc), `<table class="infobox"><tr><td>Dushanbe, Tajik SSR</td></tr></table>`)

	select {
	case r := <-passes:
		t.Errorf("Expected no pass after Stop, got %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestQualifies(t *testing.T) {
	doc := parsePage(t, `<html><body>
		<div id="wrap"><table class="infobox" id="fresh"></table></div>
		<div id="done"><table class="infobox" data-birthplace-corrected="true"></table></div>
		<div id="region" data-birthplace-corrected="true"><span class="corrector-checkmark" id="mark"> ✓</span></div>
		<table class="infobox" id="box"></table>
		<p id="plain">text</p>
	</body></html>`)
	b := dom.FindFirst(doc, func(n *html.Node) bool { return dom.IsElement(n, "body") })

	tests := []struct {
		name string
		ev   MutationEvent
		want bool
	}{
		{"infobox added", MutationEvent{Target: b, Added: []*html.Node{byID(t, doc, "box")}}, true},
		{"wrapper with fresh infobox", MutationEvent{Target: b, Added: []*html.Node{byID(t, doc, "wrap")}}, true},
		{"wrapper with corrected infobox", MutationEvent{Target: b, Added: []*html.Node{byID(t, doc, "done")}}, false},
		{"plain content", MutationEvent{Target: b, Added: []*html.Node{byID(t, doc, "plain")}}, false},
		{"checkmark", MutationEvent{Target: b, Added: []*html.Node{byID(t, doc, "mark")}}, false},
		{"inside corrected region", MutationEvent{Target: byID(t, doc, "mark"), Added: []*html.Node{byID(t, doc, "box")}}, false},
		{"text only", MutationEvent{Target: b, Added: []*html.Node{dom.NewText("x")}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := qualifies(tt.ev); got != tt.want {
				t.Errorf("qualifies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDocument_SubscribeAndUnsubscribe(t *testing.T) {
	doc, err := ParseDocument(`<html><body></body></html>`)
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}

	var events []MutationEvent
	unsubscribe := doc.Subscribe(func(ev MutationEvent) { events = append(events, ev) })

	nodes, err := doc.AppendHTML(body(t, doc), `<p>a</p><p>b</p>`)
	if err != nil {
		t.Fatalf("AppendHTML: %v", err)
	}
	if len(nodes) != 2 {
		t.Errorf("Expected 2 nodes appended, got %d", len(nodes))
	}
	if len(events) != 1 || len(events[0].Added) != 2 {
		t.Fatalf("Expected one event with 2 nodes, got %+v", events)
	}

	unsubscribe()
	doc.Append(body(t, doc), dom.NewElement("p"))
	if len(events) != 1 {
		t.Errorf("Expected no events after unsubscribe, got %d", len(events))
	}

	if _, err := doc.AppendHTML(nil, "<p>x</p>"); !errors.Is(err, ErrUnexpectedStructure) {
		t.Errorf("Expected ErrUnexpectedStructure for nil parent, got %v", err)
	}
}
