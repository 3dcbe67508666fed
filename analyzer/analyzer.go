// Package analyzer scores DOM candidates on a loaded results page to
// find the repeating result pattern and extract per-item link, image
// and title data. It works on captured HTML so scoring is reproducible
// offline in the repair loop's debug phase.
package analyzer

import (
	"errors"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrNoResults is returned when no candidate pattern survives
// filtering and scoring.
var ErrNoResults = errors.New("analyzer: no repeating result pattern found")

// Item is one extracted result record.
type Item struct {
	Link  string `json:"link"`
	Image string `json:"image,omitempty"`
	Title string `json:"title"`
	// HTML is the raw wrapper snippet, kept for evidence bundles.
	HTML string `json:"html,omitempty"`

	// AnchorNode is the underlying link node, handed to loop inference.
	AnchorNode *html.Node `json:"-"`
}

// Candidate is one scored repeating pattern.
type Candidate struct {
	Selector string
	Score    int
	Items    []Item
}

// Scoring weights. Values match long-observed precision on listing
// pages; they are not tuned per site.
const (
	imageWeight   = 2
	titleWeight   = 3
	navPenalty    = -10
	landmarkBonus = 5
	minGroupSize  = 3
)

// FindResults parses the page HTML and returns the best-scoring
// repeating pattern with its extracted items.
func FindResults(pageHTML, baseURL string) (*Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, errors.Join(ErrNoResults, err)
	}

	base, _ := url.Parse(baseURL)

	candidates := collectCandidates(doc)
	if len(candidates) == 0 {
		return nil, ErrNoResults
	}

	best := candidates[0]

	// A best candidate that is a one-element container wrapping >=3
	// homogeneous linked children means the pattern matched the outer
	// wrapper, not the repeating item. Drill down one level.
	if drilled, ok := drillDown(doc, best); ok {
		best = drilled
	}

	best.Items = extractItems(doc, best.Selector, base)
	if len(best.Items) == 0 {
		return nil, ErrNoResults
	}
	return &best, nil
}

// collectCandidates enumerates repeated element groups and scores them,
// best first.
func collectCandidates(doc *goquery.Document) []Candidate {
	counts := map[string]int{}
	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		sel := groupSelector(s)
		if sel == "" {
			return
		}
		counts[sel]++
	})

	var out []Candidate
	for sel, n := range counts {
		if n < minGroupSize && n != 1 {
			continue
		}
		group := doc.Find(sel)
		if looksLikeChrome(group) {
			continue
		}
		if group.Find("a[href]").Length() == 0 {
			continue
		}
		out = append(out, Candidate{Selector: sel, Score: scoreGroup(group)})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Selector < out[j].Selector // deterministic tie-break
	})
	return out
}

// scoreGroup applies the per-item and container heuristics.
func scoreGroup(group *goquery.Selection) int {
	score := 0
	group.Each(func(_ int, s *goquery.Selection) {
		if s.Find("img").Length() > 0 {
			score += imageWeight
		}
		if hasHeadingLikeTitle(s) {
			score += titleWeight
		}
	})

	if matchesClassHint(group, navClassHints) {
		score += navPenalty
	}
	if group.Closest(`main, [role="main"], #main, #content`).Length() > 0 {
		score += landmarkBonus
	}
	return score
}

// drillDown re-scores the children of a one-element container wrapping
// at least minGroupSize homogeneous linked children.
func drillDown(doc *goquery.Document, c Candidate) (Candidate, bool) {
	group := doc.Find(c.Selector)
	if group.Length() != 1 {
		return c, false
	}

	children := group.Children()
	if children.Length() < minGroupSize {
		return c, false
	}

	sig := ""
	homogeneous := true
	linked := 0
	children.Each(func(_ int, s *goquery.Selection) {
		cs := groupSelector(s)
		if sig == "" {
			sig = cs
		} else if cs != sig {
			homogeneous = false
		}
		if s.Find("a[href]").Length() > 0 || s.Is("a[href]") {
			linked++
		}
	})
	if !homogeneous || linked < minGroupSize || sig == "" {
		return c, false
	}

	childSel := c.Selector + " > " + sig
	return Candidate{
		Selector: childSel,
		Score:    scoreGroup(doc.Find(childSel)),
	}, true
}

// extractItems pulls link/image/title per matched wrapper.
func extractItems(doc *goquery.Document, selector string, base *url.URL) []Item {
	var items []Item
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if isNoiseItem(s) {
			return
		}

		anchor := s.Find("a[href]").First()
		if anchor.Length() == 0 {
			if s.Is("a[href]") {
				anchor = s
			} else {
				return
			}
		}
		href, _ := anchor.Attr("href")
		link := resolveURL(base, href)
		if link == "" {
			return
		}

		item := Item{Link: link, Title: itemTitle(s, anchor)}
		if img := s.Find("img").First(); img.Length() > 0 {
			src, ok := img.Attr("src")
			if !ok || src == "" {
				src, _ = img.Attr("data-src")
			}
			item.Image = resolveURL(base, src)
		}
		if h, err := goquery.OuterHtml(s); err == nil {
			item.HTML = h
		}
		if len(anchor.Nodes) > 0 {
			item.AnchorNode = anchor.Nodes[0]
		}
		items = append(items, item)
	})
	return items
}

func itemTitle(s, anchor *goquery.Selection) string {
	for _, sel := range []string{"h1", "h2", "h3", "h4", "h5", "h6",
		`[class*="title"]`, `[class*="name"]`} {
		if t := strings.TrimSpace(s.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	if t := strings.TrimSpace(anchor.Text()); t != "" {
		return t
	}
	if t, ok := anchor.Attr("title"); ok {
		return strings.TrimSpace(t)
	}
	if t, ok := anchor.Attr("aria-label"); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "#") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}

func hasHeadingLikeTitle(s *goquery.Selection) bool {
	if s.Find("h1, h2, h3, h4, h5, h6").Length() > 0 {
		return true
	}
	return s.Find(`[class*="title"], [class*="name"], [class*="heading"]`).Length() > 0
}
