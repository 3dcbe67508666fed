package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/mendrake/siteforge/browser"
)

// Config configures the collector.
type Config struct {
	// NavigateTimeout bounds each navigation. Default: 30s.
	NavigateTimeout time.Duration
	// TypeDelay between simulated keystrokes. Default: 150ms.
	TypeDelay time.Duration
	// SettleWait after an interaction before reading results. Default: 2s.
	SettleWait time.Duration
	// MinResults for a results page to count as successful. Default: 3.
	MinResults int
	// LinkSample caps sampled outbound links. Default: 25.
	LinkSample int
	Logger     *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.TypeDelay <= 0 {
		c.TypeDelay = 150 * time.Millisecond
	}
	if c.SettleWait <= 0 {
		c.SettleWait = 2 * time.Second
	}
	if c.MinResults <= 0 {
		c.MinResults = 3
	}
	if c.LinkSample <= 0 {
		c.LinkSample = 25
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Collector drives a browser session through the adapter and extracts
// page fingerprints. One scoped page is opened per probe call and
// released on every exit path.
type Collector struct {
	drv browser.Driver
	cfg Config
}

// NewCollector creates a Collector over an automation driver.
func NewCollector(drv browser.Driver, cfg Config) *Collector {
	cfg.defaults()
	return &Collector{drv: drv, cfg: cfg}
}

// fingerprintScript extracts the structural fingerprint in one round
// trip and returns it JSON-encoded.
const fingerprintScript = `() => {
	const meta = document.querySelector('meta[name="description"]');
	const h = document.querySelector('h1, h2');

	const sdTypes = [];
	for (const s of document.querySelectorAll('script[type="application/ld+json"]')) {
		try {
			const data = JSON.parse(s.textContent);
			const items = Array.isArray(data) ? data : [data];
			for (const it of items) {
				if (it && it['@type']) sdTypes.push(String(it['@type']));
			}
		} catch (e) {}
	}

	const links = [];
	for (const a of document.querySelectorAll('a[href]')) {
		const href = a.href;
		if (!href || !href.startsWith('http')) continue;
		links.push(href);
		if (links.length >= 100) break;
	}

	let input = null;
	const inputSels = [
		'input[type="search"]',
		'input[name="q"]', 'input[name="query"]', 'input[name="search"]',
		'input[name*="search" i]', 'input[placeholder*="search" i]',
		'input[aria-label*="search" i]', '[role="search"] input',
	];
	for (const sel of inputSels) {
		const el = document.querySelector(sel);
		if (el) { input = { sel: sel, action: (el.form && el.form.action) || '' }; break; }
	}

	return JSON.stringify({
		title: document.title,
		meta_description: meta ? meta.content : '',
		first_heading: h ? h.textContent.trim() : '',
		structured_data_types: sdTypes,
		links: links,
		search_input: input ? input.sel : '',
		form_action: input ? input.action : '',
	});
}`

type fingerprint struct {
	Title               string   `json:"title"`
	MetaDescription     string   `json:"meta_description"`
	FirstHeading        string   `json:"first_heading"`
	StructuredDataTypes []string `json:"structured_data_types"`
	Links               []string `json:"links"`
	SearchInput         string   `json:"search_input"`
	FormAction          string   `json:"form_action"`
}

// Probe loads a page and extracts its structural fingerprint.
func (c *Collector) Probe(ctx context.Context, pageURL string) (*SiteEvidence, error) {
	page, err := c.drv.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("evidence: open page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, pageURL, browser.WaitDOMStable, c.cfg.NavigateTimeout); err != nil {
		return nil, err
	}
	c.dismissConsent(ctx, page)

	fp, err := c.fingerprint(ctx, page)
	if err != nil {
		return nil, err
	}

	finalURL := page.URL()
	host := ""
	if u, err := url.Parse(finalURL); err == nil {
		host = u.Hostname()
	}

	ev := &SiteEvidence{
		Hostname:            host,
		FinalURL:            finalURL,
		Title:               fp.Title,
		MetaDescription:     fp.MetaDescription,
		FirstHeading:        fp.FirstHeading,
		StructuredDataTypes: dedupe(fp.StructuredDataTypes),
		SampledLinks:        sampleSameHost(fp.Links, host, c.cfg.LinkSample),
		Search: SearchAffordance{
			HasSearch:    fp.SearchInput != "",
			InputLocator: fp.SearchInput,
			FormAction:   fp.FormAction,
		},
	}

	c.cfg.Logger.Info("evidence: probed site",
		"url", finalURL,
		"structured_data", len(ev.StructuredDataTypes),
		"links", len(ev.SampledLinks),
		"has_search", ev.Search.HasSearch)
	return ev, nil
}

func (c *Collector) fingerprint(ctx context.Context, page browser.Page) (*fingerprint, error) {
	raw, err := page.Eval(ctx, fingerprintScript)
	if err != nil {
		return nil, fmt.Errorf("evidence: fingerprint: %w", err)
	}
	var fp fingerprint
	if err := json.Unmarshal([]byte(raw), &fp); err != nil {
		return nil, fmt.Errorf("evidence: decode fingerprint: %w", err)
	}
	return &fp, nil
}

// sampleSameHost keeps up to limit links pointing at the probed host;
// outbound CDN and social links tell us nothing about site structure.
func sampleSameHost(links []string, host string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range links {
		u, err := url.Parse(l)
		if err != nil || (host != "" && u.Hostname() != host) {
			continue
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
