package correct

import (
	"regexp"
	"strings"

	"github.com/ppiankov/birthplace/internal/dom"
	"golang.org/x/net/html"
)

const separator = ", "

var months = `(January|February|March|April|May|June|July|August|September|October|November|December)`

// dateLocator matches article links to a bare year or a month/day page,
// which are never location parts.
func dateLocator(prefix string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(prefix) + `(\d{4}$|` + months + `)`)
}

// locationLinks returns the non-date reference links under n
func (c *Corrector) locationLinks(n *html.Node) []*html.Node {
	var links []*html.Node
	for _, link := range c.referenceLinks(n) {
		if !c.dates.MatchString(dom.Attr(link, "href")) {
			links = append(links, link)
		}
	}
	return links
}

// repairSeparators puts a ", " between neighbouring location links that have
// no comma between them, e.g. a city link followed by a country link created
// from plain text. It returns the number of separators written.
func (c *Corrector) repairSeparators(region *html.Node) int {
	scope := region
	if spans := dom.Select(region, ".birthplace"); len(spans) > 0 {
		scope = spans[0]
	}

	links := c.locationLinks(scope)
	repaired := 0

	for i := 0; i+1 < len(links); i++ {
		current, next := links[i], links[i+1]

		// Only siblings are repaired; links in different containers are
		// left alone rather than guessed at.
		if current.Parent == nil || current.Parent != next.Parent {
			continue
		}

		var between []*html.Node
		node := current.NextSibling
		for ; node != nil && node != next; node = node.NextSibling {
			between = append(between, node)
		}
		if node == nil {
			continue
		}

		if separatorPresent(between) {
			continue
		}

		if len(between) == 0 {
			current.Parent.InsertBefore(dom.NewText(separator), next)
			repaired++
			continue
		}

		if blank := blankText(between); blank != nil {
			blank.Data = separator
			repaired++
		}
	}

	return repaired
}

// separatorPresent reports whether any node between two links contains a comma
func separatorPresent(between []*html.Node) bool {
	for _, n := range between {
		if strings.Contains(dom.Text(n), ",") {
			return true
		}
	}
	return false
}

// blankText returns the last whitespace-only text node when every text node
// between two links is blank and no line break separates them
func blankText(between []*html.Node) *html.Node {
	var blank *html.Node
	for _, n := range between {
		switch {
		case n.Type == html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				return nil
			}
			blank = n
		case dom.IsElement(n, "br"):
			return nil
		}
	}
	return blank
}
