package correct

import (
	"strings"

	"github.com/ppiankov/birthplace/internal/dom"
	"golang.org/x/net/html"
)

const (
	// CheckmarkClass identifies the marker appended to corrected regions
	CheckmarkClass = "corrector-checkmark"

	indicatorStyle = "border-left: 3px solid #4CAF50; padding-left: 8px"
	indicatorTitle = "Birthplace corrected to the modern country name"
	checkmarkText  = " ✓"
	checkmarkTitle = "Corrected from a Soviet-era designation"
	checkmarkStyle = "color: #4CAF50; font-size: 0.85em"
)

// addIndicator adds the left border, tooltip and checkmark to a corrected region
func (c *Corrector) addIndicator(region *html.Node) {
	style := strings.TrimSpace(dom.Attr(region, "style"))
	if !strings.Contains(style, indicatorStyle) {
		if style != "" && !strings.HasSuffix(style, ";") {
			style += ";"
		}
		if style != "" {
			style += " "
		}
		dom.SetAttr(region, "style", style+indicatorStyle)
	}
	dom.SetAttr(region, "title", indicatorTitle)

	if len(dom.Select(region, "."+CheckmarkClass)) > 0 {
		return
	}

	mark := dom.NewElement("span", "class", CheckmarkClass, "title", checkmarkTitle, "style", checkmarkStyle)
	mark.AppendChild(dom.NewText(checkmarkText))

	// Preferred spot: right after the location inside the birthplace span
	if spans := dom.Select(region, ".birthplace"); len(spans) > 0 {
		spans[0].AppendChild(mark)
		return
	}

	if links := c.locationLinks(region); len(links) > 0 {
		dom.InsertAfter(links[len(links)-1], mark)
		return
	}

	// Place, date layout: the location follows the first line break
	if br := dom.FindFirst(region, func(n *html.Node) bool { return dom.IsElement(n, "br") }); br != nil {
		for s := br.NextSibling; s != nil; s = s.NextSibling {
			switch {
			case s.Type == html.ElementNode:
				s.AppendChild(mark)
				return
			case s.Type == html.TextNode && strings.TrimSpace(s.Data) != "":
				dom.InsertAfter(s, mark)
				return
			}
		}
	}

	region.AppendChild(mark)
}

// IsIndicator reports whether n is part of a checkmark added by a pass
func IsIndicator(n *html.Node) bool {
	return dom.Closest(n, func(node *html.Node) bool {
		return node.Type == html.ElementNode && dom.HasClass(node, CheckmarkClass)
	}) != nil
}
