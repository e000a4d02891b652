package util

import (
	"strings"

	"golang.org/x/net/html"
)

// SanitizeText strips markup from user-supplied free text and collapses
// whitespace. Script and style contents are dropped.
func SanitizeText(in string) string {
	in = strings.ToValidUTF8(in, "")
	if !strings.ContainsAny(in, "<&") {
		return collapseSpace(in)
	}
	doc, err := html.Parse(strings.NewReader(in))
	if err != nil {
		return collapseSpace(in)
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "script", "style":
				b.WriteByte(' ')
				return
			case "br", "p", "div", "li":
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
