package correct

import (
	"strings"
	"testing"

	"github.com/ppiankov/birthplace/internal/dom"
	"golang.org/x/net/html"
)

func checkmarks(n *html.Node) []*html.Node {
	return dom.FindAll(n, func(node *html.Node) bool { return dom.HasClass(node, CheckmarkClass) })
}

func TestIndicator_Placement(t *testing.T) {
	tests := []struct {
		name     string
		cell     string
		parentOf string
	}{
		{
			name:     "inside birthplace span",
			cell:     `<span class="birthplace">Vilnius, Lithuanian SSR</span>`,
			parentOf: "span",
		},
		{
			name:     "after last location link",
			cell:     `<a href="/wiki/1961">1961</a><br/>Baku, <a href="/wiki/Azerbaijan_SSR">Azerbaijan SSR</a>`,
			parentOf: "td",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(testMatcher(t), Options{})
			doc := parsePage(t, infoboxPage(bornRow(tt.cell)))

			c.RunPass(doc)
			td := byID(t, doc, "born")

			marks := checkmarks(td)
			if len(marks) != 1 {
				t.Fatalf("Expected one checkmark, got %d", len(marks))
			}
			if marks[0].Parent.Data != tt.parentOf {
				t.Errorf("Expected checkmark under %s, got %s", tt.parentOf, marks[0].Parent.Data)
			}
			if strings.Contains(dom.Attr(marks[0], "class"), "birthplace") {
				t.Error("Checkmark class must not look like a birthplace marker")
			}
			if !strings.Contains(dom.Attr(td, "style"), "border-left: 3px solid #4CAF50") {
				t.Errorf("Expected border style, got %q", dom.Attr(td, "style"))
			}
			if dom.Attr(td, "title") == "" {
				t.Error("Expected tooltip on region")
			}
		})
	}
}

func TestIndicator_AfterLastLocationLink(t *testing.T) {
	c := New(testMatcher(t), Options{})
	doc := parsePage(t, infoboxPage(bornRow(
		`<a href="/wiki/Baku">Baku</a>, <a href="/wiki/Azerbaijan_SSR">Azerbaijan SSR</a>`)))

	c.RunPass(doc)

	as := links(byID(t, doc, "born"))
	last := as[len(as)-1]
	if next := last.NextSibling; next == nil || !dom.HasClass(next, CheckmarkClass) {
		t.Errorf("Expected checkmark right after the country link, got %+v", next)
	}
}

func TestIndicator_KeepsExistingStyle(t *testing.T) {
	c := New(testMatcher(t), Options{})
	doc := parsePage(t, `<p><span class="birthplace" id="bp" style="color: red">Dushanbe, Tajik SSR</span></p>`)
	bp := byID(t, doc, "bp")

	c.RunPass(doc)
	c.addIndicator(bp)

	style := dom.Attr(bp, "style")
	if !strings.HasPrefix(style, "color: red;") {
		t.Errorf("Expected original style kept, got %q", style)
	}
	if strings.Count(style, "border-left") != 1 {
		t.Errorf("Expected border added once, got %q", style)
	}
	if got := len(checkmarks(bp)); got != 1 {
		t.Errorf("Expected one checkmark after repeated indicator, got %d", got)
	}
	if !IsIndicator(checkmarks(bp)[0].FirstChild) {
		t.Error("Expected checkmark text to be recognised as indicator")
	}
}

func TestIndicator_Disabled(t *testing.T) {
	c := New(testMatcher(t), Options{DisableIndicator: true})
	doc := parsePage(t, infoboxPage(bornRow("Bishkek, Kirghiz SSR")))

	c.RunPass(doc)
	td := byID(t, doc, "born")

	if len(checkmarks(td)) != 0 || dom.HasAttr(td, "style") {
		t.Error("Expected no visual indicator")
	}
	if !dom.HasAttr(td, MarkerAttr) {
		t.Error("Expected marker even without indicator")
	}
}
