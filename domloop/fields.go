package domloop

import (
	"strings"

	"golang.org/x/net/html"
)

// sampleFields derives title/url/image selectors from one wrapper by
// scanning for heading-like text, an anchor with an href, and an image
// or CSS background-image.
func sampleFields(wrapper *html.Node) FieldSelectors {
	var f FieldSelectors

	walk(wrapper, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch {
		case f.Title == "" && isHeadingLike(n) && textOf(n) != "":
			f.Title = selectorFor(n)
		case f.URL == "" && n.Data == "a" && attr(n, "href") != "":
			f.URL = selectorFor(n)
		case f.Image == "" && n.Data == "img" && attr(n, "src") != "":
			f.Image = selectorFor(n)
		case f.Image == "" && strings.Contains(attr(n, "style"), "background-image"):
			f.Image = selectorFor(n)
		}
		return f.Title == "" || f.URL == "" || f.Image == ""
	})

	// A wrapper without headings often carries its title on the anchor.
	if f.Title == "" && f.URL != "" {
		f.Title = f.URL
	}
	return f
}

// isHeadingLike reports h1..h6 or elements whose class names suggest a
// title.
func isHeadingLike(n *html.Node) bool {
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	cls := strings.ToLower(attr(n, "class"))
	for _, hint := range []string{"title", "name", "heading"} {
		if strings.Contains(cls, hint) {
			return true
		}
	}
	return false
}

// walk visits the subtree depth-first; fn returning false stops early.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.TrimSpace(b.String())
}
