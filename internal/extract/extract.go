// Package extract pulls the initial title and description out of a quick
// popup's serialized HTML. Best effort by design: the host's markup is
// unversioned, so a miss yields empty strings, never an error.
package extract

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var sanitizer = bluemonday.UGCPolicy()

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Content is what could be recovered from a popup container.
type Content struct {
	Title       string
	Description string // markdown, sanitized
}

// FromHTML parses a popup container's outerHTML and extracts a heading-ish
// title plus the longest text block as the description.
func FromHTML(outerHTML string) Content {
	root, err := html.Parse(strings.NewReader(outerHTML))
	if err != nil {
		return Content{}
	}

	var c Content
	c.Title = findTitle(root)

	if block := longestTextBlock(root, c.Title); block != nil {
		raw := renderNode(block)
		clean := sanitizer.Sanitize(raw)
		if md, err := mdConverter.ConvertString(clean); err == nil {
			c.Description = strings.TrimSpace(md)
		}
	}
	return c
}

var headingTags = map[string]bool{
	"h1": true, "h2": true, "h3": true,
}

// findTitle returns the text of the first heading element, falling back to
// the first element carrying role=heading.
func findTitle(root *html.Node) string {
	var byTag, byRole string
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if byTag == "" && headingTags[n.Data] {
			byTag = collapse(textOf(n))
		}
		if byRole == "" && attr(n, "role") == "heading" {
			byRole = collapse(textOf(n))
		}
		return byTag == ""
	})
	if byTag != "" {
		return byTag
	}
	return byRole
}

// longestTextBlock picks the deepest element holding the largest run of
// text that is not the title itself. Block containers only; buttons and
// inputs are chrome, not content.
func longestTextBlock(root *html.Node, title string) *html.Node {
	var best *html.Node
	bestLen := 0

	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.Data {
		case "button", "input", "select", "script", "style", "svg":
			return false
		case "div", "p", "section", "span":
			txt := collapse(textOf(n))
			if txt == "" || txt == title {
				return true
			}
			if !hasBlockChildren(n) && len(txt) > bestLen {
				best, bestLen = n, len(txt)
			}
		}
		return true
	})
	return best
}

func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		switch {
		case c.Type == html.TextNode:
			sb.WriteString(c.Data)
			sb.WriteString(" ")
		case c.Type == html.ElementNode &&
			(c.Data == "script" || c.Data == "style" || c.Data == "svg"):
			return false
		}
		return true
	})
	return sb.String()
}

var blockTags = map[string]bool{
	"div": true, "p": true, "section": true,
	"h1": true, "h2": true, "h3": true, "button": true,
}

func hasBlockChildren(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && blockTags[c.Data] {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	html.Render(&sb, n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
