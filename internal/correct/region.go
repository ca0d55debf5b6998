package correct

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/birthplace/internal/dom"
	"golang.org/x/net/html"
)

// rewriteText handles the text leaves of a region. A leaf outside any link
// that names an obsolete entity is split around the first occurrence and the
// name becomes a new link to the modern state; every other matching leaf is
// substituted in place.
func (c *Corrector) rewriteText(region *html.Node, changes *Changes) error {
	var queue []*html.Node
	for _, leaf := range dom.TextNodes(region) {
		if c.matcher.ContainsObsoleteReference(leaf.Data) {
			queue = append(queue, leaf)
		}
	}

	for len(queue) > 0 {
		leaf := queue[0]
		queue = queue[1:]

		parent := leaf.Parent
		if parent == nil {
			return fmt.Errorf("%w: detached text leaf %q", ErrUnexpectedStructure, leaf.Data)
		}

		link := enclosingLink(leaf, region)
		if link != nil && c.matcher.LocatorShouldBeRemoved(dom.Attr(link, "href")) {
			// The whole link goes away with the removal step
			continue
		}

		original := leaf.Data
		if link == nil {
			if match, ok := c.matcher.FindFirstObsoleteVariant(original); ok {
				idx := strings.Index(original, match.Variant)
				before := original[:idx]
				after := original[idx+len(match.Variant):]

				rest := keepLeadingSpace(after, c.matcher.RemoveRemovalTerms(after))
				if before != "" {
					parent.InsertBefore(dom.NewText(before), leaf)
				}
				parent.InsertBefore(newCountryLink(match.CanonicalPath, match.ModernName), leaf)
				if rest != "" {
					afterNode := dom.NewText(rest)
					parent.InsertBefore(afterNode, leaf)

					// The remainder may name a second entity
					if c.matcher.ContainsObsoleteReference(rest) {
						queue = append(queue, afterNode)
					}
				}
				parent.RemoveChild(leaf)
				changes.TextSubstitutions++
				continue
			}
		}

		replaced := keepEdges(original, c.matcher.ReplaceAllVariants(original))
		if replaced == original {
			continue
		}
		leaf.Data = replaced
		if link != nil {
			changes.LabelRewrites++
		} else {
			changes.TextSubstitutions++
		}
	}

	return nil
}

// rewriteLinks updates reference links in place and returns the ones that
// must be deleted. Deletion is deferred so the iteration stays stable.
func (c *Corrector) rewriteLinks(region *html.Node, changes *Changes) []*html.Node {
	var removals []*html.Node

	for _, link := range c.referenceLinks(region) {
		href := dom.Attr(link, "href")
		if c.matcher.LocatorShouldBeRemoved(href) {
			removals = append(removals, link)
			continue
		}

		if rewritten := c.matcher.RewriteLocator(href); rewritten != href {
			dom.SetAttr(link, "href", rewritten)
			changes.TargetRewrites++
		}

		if title := dom.Attr(link, "title"); c.matcher.ContainsObsoleteReference(title) {
			if fixed := c.matcher.ReplaceAllVariants(title); fixed != "" {
				dom.SetAttr(link, "title", fixed)
			}
		}

		label := dom.Text(link)
		if c.matcher.ContainsObsoleteReference(label) {
			if fixed := keepEdges(label, c.matcher.ReplaceAllVariants(label)); fixed != label {
				dom.SetText(link, fixed)
				changes.LabelRewrites++
			}
		}
	}

	return removals
}

// removeLinks deletes queued links. Only the separator directly before a link
// (", " or ",") is trimmed from the preceding text; nothing earlier is touched.
func (c *Corrector) removeLinks(links []*html.Node, changes *Changes) {
	for _, link := range links {
		if link.Parent == nil {
			continue
		}

		if prev := link.PrevSibling; prev != nil && prev.Type == html.TextNode {
			switch {
			case strings.HasSuffix(prev.Data, ", "):
				prev.Data = strings.TrimSuffix(prev.Data, ", ")
			case strings.HasSuffix(prev.Data, ","):
				prev.Data = strings.TrimSuffix(prev.Data, ",")
			}
		}

		link.Parent.RemoveChild(link)
		changes.LinkRemovals++
	}
}

// referenceLinks returns the article links under n in document order
func (c *Corrector) referenceLinks(n *html.Node) []*html.Node {
	return dom.Select(n, fmt.Sprintf(`a[href*=%q]`, c.matcher.LocatorPrefix()))
}

func enclosingLink(leaf, region *html.Node) *html.Node {
	for node := leaf.Parent; node != nil; node = node.Parent {
		if dom.IsElement(node, "a") {
			return node
		}
		if node == region {
			break
		}
	}
	return nil
}

func newCountryLink(path, name string) *html.Node {
	link := dom.NewElement("a", "href", path, "title", name)
	link.AppendChild(dom.NewText(name))
	return link
}

// keepEdges restores the leading and trailing whitespace of original on a
// rewritten text, which the matcher trims. Empty results stay empty.
func keepEdges(original, rewritten string) string {
	if rewritten == "" {
		return rewritten
	}
	rewritten = keepLeadingSpace(original, rewritten)

	r, size := utf8.DecodeLastRuneInString(original)
	if size > 0 && unicode.IsSpace(r) {
		if last, _ := utf8.DecodeLastRuneInString(rewritten); !unicode.IsSpace(last) {
			trail := original[len(strings.TrimRightFunc(original, unicode.IsSpace)):]
			rewritten += trail
		}
	}
	return rewritten
}

func keepLeadingSpace(original, rewritten string) string {
	if rewritten == "" {
		return rewritten
	}
	r, size := utf8.DecodeRuneInString(original)
	if size == 0 || !unicode.IsSpace(r) {
		return rewritten
	}
	if first, _ := utf8.DecodeRuneInString(rewritten); unicode.IsSpace(first) {
		return rewritten
	}
	lead := original[:len(original)-len(strings.TrimLeftFunc(original, unicode.IsSpace))]
	return lead + rewritten
}
