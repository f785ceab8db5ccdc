package parser

import (
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// xpathField finds a text node whose normalized content equals one of the
// labels and returns the text of the element following its parent. This covers
// layouts such as <div><span>Scadenza</span></div><div>15/06/2027</div> and
// <span>Emittente</span><span>UniCredit</span>.
func (d *Document) xpathField(q query) (string, bool) {
	nodes, err := htmlquery.QueryAll(d.root, "//body//text()[normalize-space()]")
	if err != nil {
		return "", false
	}

	for _, n := range nodes {
		parent := n.Parent
		if parent == nil || skipText(parent) {
			continue
		}
		text := normalizeLabel(n.Data)
		for _, w := range q.want {
			if text != w {
				continue
			}
			if v, ok := followingValue(parent); ok && q.takes(v) {
				return v, true
			}
		}
	}
	return "", false
}

// followingValue reads the next sibling element of n, climbing one level when
// n is the only child of a wrapper.
func followingValue(n *html.Node) (string, bool) {
	for depth := 0; n != nil && depth < 2; depth++ {
		if sib := htmlquery.FindOne(n, "following-sibling::*[1]"); sib != nil {
			v := cleanText(htmlquery.InnerText(sib))
			return v, usable(v)
		}
		n = n.Parent
	}
	return "", false
}

func skipText(n *html.Node) bool {
	switch n.Data {
	case "script", "style", "noscript", "option":
		return true
	}
	return false
}
