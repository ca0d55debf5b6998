// Package dom holds the small set of tree helpers the corrector needs on top of
// golang.org/x/net/html: attribute access, text collection, traversal and
// splicing.
package dom

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse parses a full HTML document
func Parse(content string) (*html.Node, error) {
	return html.Parse(strings.NewReader(content))
}

// ParseFragment parses content as children of context and returns the
// resulting top-level nodes, detached
func ParseFragment(content string, context *html.Node) ([]*html.Node, error) {
	if context == nil {
		context = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}
	return html.ParseFragment(strings.NewReader(content), context)
}

// Render serializes a node and its subtree
func Render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// IsElement reports whether n is an element with the given tag name
func IsElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

// Attr returns the value of an attribute, or "" when absent
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present
func HasAttr(n *html.Node, key string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces an attribute
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasClass checks if a node has a specific CSS class
func HasClass(n *html.Node, className string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, class := range strings.Fields(Attr(n, "class")) {
		if class == className {
			return true
		}
	}
	return false
}

// Text returns the concatenated text of n and its descendants, untrimmed
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			buf.WriteString(node.Data)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

// TextNodes returns the text leaves under n in document order
func TextNodes(n *html.Node) []*html.Node {
	return FindAll(n, func(node *html.Node) bool {
		return node.Type == html.TextNode
	})
}

// FindAll finds all nodes matching a predicate, including n itself
func FindAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return results
}

// FindFirst finds the first node matching a predicate
func FindFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	var result *html.Node

	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if predicate(node) {
			result = node
			return true
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}

	walk(n)
	return result
}

// Closest returns the nearest ancestor-or-self of n matching predicate
func Closest(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	for node := n; node != nil; node = node.Parent {
		if predicate(node) {
			return node
		}
	}
	return nil
}

// Contains reports whether descendant is ancestor or lies beneath it
func Contains(ancestor, descendant *html.Node) bool {
	for node := descendant; node != nil; node = node.Parent {
		if node == ancestor {
			return true
		}
	}
	return false
}

// NextElementSibling skips text and comment siblings
func NextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// NewText creates a detached text node
func NewText(data string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: data}
}

// NewElement creates a detached element with attributes given as key/value pairs
func NewElement(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// InsertAfter inserts newChild right after ref under ref's parent
func InsertAfter(ref, newChild *html.Node) {
	if ref.NextSibling != nil {
		ref.Parent.InsertBefore(newChild, ref.NextSibling)
		return
	}
	ref.Parent.AppendChild(newChild)
}

// Detach removes n from its parent, if any
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// SetText replaces all children of n with a single text node
func SetText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(NewText(text))
}

// Select runs a CSS selector against root and its descendants, root included,
// and returns the matches in document order
func Select(root *html.Node, selector string) []*html.Node {
	sel := goquery.NewDocumentFromNode(root).Selection
	matches := sel.Filter(selector).AddSelection(sel.Find(selector))
	return matches.Nodes
}
