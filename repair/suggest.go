package repair

import (
	"context"
	"sort"
	"strings"

	"github.com/mendrake/siteforge/browser"
)

// maxSuggestions caps the ranked list handed to the fix collaborator.
const maxSuggestions = 5

// hintPatterns maps a semantic field hint to CSS patterns worth trying
// on the live page, most specific first. Hints come from the failing
// step's own field name, so a "title" step gets heading-flavored
// candidates rather than a generic element dump.
var hintPatterns = map[string][]string{
	"title": {
		"h1", "h2", "h3",
		"[class*='title']", "[class*='name']",
		"a[href] h2", "a[href] h3",
	},
	"cover": {
		"img[src]", "img[data-src]",
		"[class*='cover'] img", "[class*='image'] img", "[class*='thumb'] img",
		"picture img",
	},
	"url": {
		"a[href]",
		"[class*='result'] a[href]", "[class*='item'] a[href]", "article a[href]",
	},
	"description": {
		"[class*='description']", "[class*='summary']", "[class*='excerpt']", "p",
	},
	"rating": {
		"[class*='rating']", "[class*='score']", "[class*='stars']",
	},
}

// aliasHints folds common field-name variants onto the canonical hints.
var aliasHints = map[string]string{
	"image":     "cover",
	"thumbnail": "cover",
	"poster":    "cover",
	"img":       "cover",
	"link":      "url",
	"href":      "url",
	"name":      "title",
	"heading":   "title",
	"summary":   "description",
	"synopsis":  "description",
	"score":     "rating",
}

type suggestion struct {
	selector string
	matches  int
	rank     int // position in the pattern list, lower is more specific
}

// suggestSelectors probes the hint's candidate patterns on the live
// page and returns the ones that match, ranked by match count and then
// by pattern specificity. An unknown hint tries every pattern set.
func (c *Controller) suggestSelectors(ctx context.Context, page browser.Page, hint string) []string {
	patterns := patternsFor(hint)
	if len(patterns) == 0 {
		return nil
	}

	var found []suggestion
	for rank, sel := range patterns {
		els, err := page.QueryAll(ctx, sel)
		if err != nil || len(els) == 0 {
			continue
		}
		found = append(found, suggestion{selector: sel, matches: len(els), rank: rank})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].matches != found[j].matches {
			return found[i].matches > found[j].matches
		}
		return found[i].rank < found[j].rank
	})

	out := make([]string, 0, min(len(found), maxSuggestions))
	for _, s := range found {
		out = append(out, s.selector)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

func patternsFor(hint string) []string {
	key := strings.ToLower(strings.TrimSpace(hint))
	if canon, ok := aliasHints[key]; ok {
		key = canon
	}
	if p, ok := hintPatterns[key]; ok {
		return p
	}
	// No recognizable hint: offer the title and url sets, which cover
	// the two fields every list recipe must fill.
	var all []string
	all = append(all, hintPatterns["title"]...)
	all = append(all, hintPatterns["url"]...)
	return all
}
