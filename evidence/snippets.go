package evidence

import (
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/mendrake/siteforge/analyzer"
)

// snippetPolicy strips scripts, event handlers and styling from raw
// wrapper HTML before it travels into a fix-request context.
var snippetPolicy = bluemonday.UGCPolicy()

const maxSnippetLen = 1200

// itemEvidence converts analyzer items into evidence records, attaching
// a sanitized markdown snippet per item. Markdown keeps the structure a
// fix collaborator needs (links, images, emphasis) at a fraction of the
// raw HTML's size.
func (c *Collector) itemEvidence(items []analyzer.Item) []ItemEvidence {
	out := make([]ItemEvidence, 0, len(items))
	for _, it := range items {
		ev := ItemEvidence{
			Link:    it.Link,
			Image:   it.Image,
			Title:   it.Title,
			RawHTML: it.HTML,
		}
		if it.HTML != "" {
			clean := snippetPolicy.Sanitize(it.HTML)
			md, err := htmltomarkdown.ConvertString(clean)
			if err != nil {
				c.cfg.Logger.Debug("evidence: snippet conversion failed", "error", err)
				md = clean
			}
			if len(md) > maxSnippetLen {
				md = md[:maxSnippetLen]
			}
			ev.Snippet = md
		}
		out = append(out, ev)
	}
	return out
}
