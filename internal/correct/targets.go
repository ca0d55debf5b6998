package correct

import (
	"strings"

	"github.com/ppiankov/birthplace/internal/dom"
	"golang.org/x/net/html"
)

const (
	infoboxSelector    = ".infobox"
	birthplaceSelector = `[class*="birthplace"]`
	cellSelector       = "td, th"
	birthLabel         = "Born"
)

// discoverTargets collects the regions to correct, in discovery order:
// per infobox the value cell of the "Born" row, elements tagged as a
// birthplace and any cell mentioning an obsolete name; then tagged elements
// outside infoboxes. Marked regions and their descendants are left out.
func (c *Corrector) discoverTargets(root *html.Node) []*html.Node {
	var targets []*html.Node
	seen := make(map[*html.Node]bool)

	add := func(n *html.Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		if isMarked(n) {
			return
		}
		targets = append(targets, n)
	}

	for _, box := range dom.Select(root, infoboxSelector) {
		for _, th := range dom.Select(box, "th") {
			if !strings.HasPrefix(strings.TrimSpace(dom.Text(th)), birthLabel) {
				continue
			}
			if td := dom.NextElementSibling(th); dom.IsElement(td, "td") {
				add(td)
			}
		}

		for _, el := range dom.Select(box, birthplaceSelector) {
			add(el)
		}

		for _, cell := range dom.Select(box, cellSelector) {
			if c.matcher.ContainsObsoleteReference(dom.Text(cell)) {
				add(cell)
			}
		}
	}

	for _, el := range dom.Select(root, birthplaceSelector) {
		add(el)
	}

	return targets
}

// describeRegion builds a short human label for reports and logs
func describeRegion(n *html.Node) string {
	if n.Type != html.ElementNode {
		return "#text"
	}

	if dom.IsElement(n, "td") {
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if dom.IsElement(s, "th") {
				if label := normalizeSpace(dom.Text(s)); label != "" {
					return "td[" + label + "]"
				}
				break
			}
		}
	}

	if class := strings.Fields(dom.Attr(n, "class")); len(class) > 0 {
		return n.Data + "." + class[0]
	}
	return n.Data
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
