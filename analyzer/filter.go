package analyzer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Class-name hints for page chrome that must never be mistaken for
// results. Consent/ad/auth UI is filtered out entirely; navigation gets
// a score penalty instead, because some sites legitimately render
// results inside nav-like containers.
var (
	chromeClassHints = []string{
		"cookie", "consent", "gdpr", "privacy",
		"advert", "ad-", "-ad", "banner", "sponsor",
		"login", "signin", "signup", "auth", "account",
		"newsletter", "modal", "popup", "overlay",
	}
	navClassHints = []string{
		"nav", "menu", "sidebar", "breadcrumb", "footer", "header",
		"pagination", "tabs",
	}
	chromePhrases = []string{
		"accept all cookies", "we use cookies", "cookie settings",
		"sign in", "log in", "create account", "subscribe to our newsletter",
		"advertisement",
	}
)

// looksLikeChrome reports whether a candidate group is consent, ad or
// auth UI rather than content.
func looksLikeChrome(group *goquery.Selection) bool {
	if matchesClassHint(group, chromeClassHints) {
		return true
	}

	text := strings.ToLower(strings.TrimSpace(group.First().Text()))
	for _, phrase := range chromePhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// isNoiseItem filters single wrappers that slipped through group
// filtering (an ad card inside a genuine result list).
func isNoiseItem(s *goquery.Selection) bool {
	cls := strings.ToLower(classAndID(s))
	for _, hint := range chromeClassHints {
		if strings.Contains(cls, hint) {
			return true
		}
	}
	return false
}

// matchesClassHint checks the group's own class/id attributes and its
// nearest classed ancestor.
func matchesClassHint(group *goquery.Selection, hints []string) bool {
	own := strings.ToLower(classAndID(group.First()))
	parent := strings.ToLower(classAndID(group.First().Parent()))
	for _, hint := range hints {
		if strings.Contains(own, hint) || strings.Contains(parent, hint) {
			return true
		}
	}
	return false
}

func classAndID(s *goquery.Selection) string {
	cls, _ := s.Attr("class")
	id, _ := s.Attr("id")
	return cls + " " + id
}

// groupSelector builds the signature selector for an element: tag plus
// up to two short classes. Elements without classes yield "" and are
// not grouped, because a bare tag matches far too much of the page.
func groupSelector(s *goquery.Selection) string {
	if len(s.Nodes) == 0 {
		return ""
	}
	tag := goquery.NodeName(s)
	if tag == "" || tag == "script" || tag == "style" || tag == "template" {
		return ""
	}
	cls, _ := s.Attr("class")
	classes := strings.Fields(cls)
	sel := tag
	kept := 0
	for _, c := range classes {
		if len(c) >= 30 || strings.ContainsAny(c, ":[]()/@") {
			continue // utility/generated classes are unstable
		}
		sel += "." + c
		kept++
		if kept == 2 {
			break
		}
	}
	if kept == 0 {
		return ""
	}
	return sel
}
