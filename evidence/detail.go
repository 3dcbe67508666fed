package evidence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mendrake/siteforge/browser"
)

// detailScript samples candidate field selectors on a detail page: the
// most prominent heading, the largest image, and description-like text.
const detailScript = `() => {
	function sel(el) {
		if (!el) return '';
		if (el.id) return '#' + el.id;
		const tag = el.tagName.toLowerCase();
		const cls = Array.from(el.classList).filter(c => c.length < 30).slice(0, 2);
		return cls.length ? tag + '.' + cls.join('.') : tag;
	}

	const h = document.querySelector('h1') || document.querySelector('h2');

	let cover = null, area = 0;
	for (const img of document.querySelectorAll('main img, article img, img')) {
		const a = (img.naturalWidth || img.width || 0) * (img.naturalHeight || img.height || 0);
		if (a > area) { area = a; cover = img; }
	}

	let desc = null;
	for (const p of document.querySelectorAll('main p, article p, p')) {
		if (p.textContent.trim().length > 120) { desc = p; break; }
	}

	const meta = document.querySelector('meta[name="description"]');
	return JSON.stringify({
		title: document.title,
		meta_description: meta ? meta.content : '',
		first_heading: h ? h.textContent.trim() : '',
		selectors: {
			title: sel(h),
			cover: sel(cover),
			description: sel(desc),
		},
	});
}`

type detailFingerprint struct {
	Title           string            `json:"title"`
	MetaDescription string            `json:"meta_description"`
	FirstHeading    string            `json:"first_heading"`
	Selectors       map[string]string `json:"selectors"`
}

// ProbeDetailPage loads one detail page and samples candidate field
// selectors for authoring url_steps.
func (c *Collector) ProbeDetailPage(ctx context.Context, pageURL string) (*DetailEvidence, error) {
	page, err := c.drv.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("evidence: open page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, pageURL, browser.WaitDOMStable, c.cfg.NavigateTimeout); err != nil {
		return nil, err
	}
	c.dismissConsent(ctx, page)

	raw, err := page.Eval(ctx, detailScript)
	if err != nil {
		return nil, fmt.Errorf("evidence: detail fingerprint: %w", err)
	}
	var fp detailFingerprint
	if err := json.Unmarshal([]byte(raw), &fp); err != nil {
		return nil, fmt.Errorf("evidence: decode detail fingerprint: %w", err)
	}

	// Selectors that resolved to nothing are dropped rather than left
	// as empty hints.
	selectors := map[string]string{}
	for field, s := range fp.Selectors {
		if s != "" {
			selectors[field] = s
		}
	}

	return &DetailEvidence{
		URL:             page.URL(),
		Title:           fp.Title,
		MetaDescription: fp.MetaDescription,
		FirstHeading:    fp.FirstHeading,
		FieldSelectors:  selectors,
	}, nil
}
