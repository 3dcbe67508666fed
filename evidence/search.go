package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mendrake/siteforge/analyzer"
	"github.com/mendrake/siteforge/browser"
	"github.com/mendrake/siteforge/domloop"
	"github.com/mendrake/siteforge/netapi"
	"golang.org/x/net/html"
)

// ErrNoSearchAffordance is returned when no search input can be found
// on the homepage, so neither form discovery nor typing simulation is
// possible.
var ErrNoSearchAffordance = errors.New("evidence: no search input found")

// ErrSearchUndiscovered is returned when every strategy (templated
// URL, form discovery, interactive API discovery) came up empty.
var ErrSearchUndiscovered = errors.New("evidence: search mechanics could not be discovered")

// ProbeSearchResults establishes how the site's search works. It tries,
// in order: templated URL substitution; homepage form submission with
// URL-pattern discovery; and live API discovery via simulated typing.
// Strategies run one at a time, never concurrently, to avoid tripping
// anti-bot rate limits.
func (c *Collector) ProbeSearchResults(ctx context.Context, urlTemplate, query string) (*SearchEvidence, error) {
	log := c.cfg.Logger

	// Strategy 1: templated URL substitution.
	if strings.Contains(urlTemplate, netapi.QueryPlaceholder) {
		searchURL := strings.ReplaceAll(urlTemplate, netapi.QueryPlaceholder, url.QueryEscape(query))
		ev, err := c.probeResultsURL(ctx, searchURL, query)
		if err != nil {
			log.Warn("evidence: templated search probe failed", "url", searchURL, "error", err)
		}
		if ev != nil {
			ev.URLTemplate = urlTemplate
			return ev, nil
		}
		log.Info("evidence: templated url returned no results, discovering via form", "url", searchURL)
	}

	// Strategy 2: homepage navigation plus form submission.
	home, err := homepageOf(urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("evidence: bad url template %q: %w", urlTemplate, err)
	}
	ev, discoveredURL, embedded, err := c.discoverViaForm(ctx, home, query)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		return ev, nil
	}

	// Strategy 3: escalate to live API discovery through simulated
	// typing. Two paths lead here: the discovered URL does not embed the
	// query (the form is not a genuine search route), or it does but the
	// results page yielded too few extractable items, so the content
	// likely arrives over an API.
	if embedded {
		log.Info("evidence: discovered url embeds query but too few results extracted, escalating to api discovery",
			"discovered", discoveredURL)
	} else {
		log.Info("evidence: discovered url does not embed query, escalating to api discovery",
			"discovered", discoveredURL)
	}
	return c.DiscoverAPI(ctx, home, query)
}

// probeResultsURL loads one candidate results URL with interception
// active and extracts whatever evidence the page offers. Returns nil
// evidence (no error) when the page simply holds no results.
func (c *Collector) probeResultsURL(ctx context.Context, searchURL, query string) (*SearchEvidence, error) {
	page, err := c.drv.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("evidence: open page: %w", err)
	}
	defer page.Close()

	captures := newCaptureLog()
	if err := page.EnableIntercept(captures.add); err != nil {
		c.cfg.Logger.Warn("evidence: interception unavailable", "error", err)
	}

	if err := page.Navigate(ctx, searchURL, browser.WaitDOMStable, c.cfg.NavigateTimeout); err != nil {
		return nil, err
	}
	c.dismissConsent(ctx, page)
	settle(ctx, c.cfg.SettleWait)

	// Interception is scoped to this one load.
	_ = page.DisableIntercept()

	pageHTML, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	finalURL := page.URL()

	// The "search page" may itself be a JSON endpoint.
	if desc, ok := classifyRawJSON(pageHTML, searchURL, query); ok {
		return &SearchEvidence{
			Type:      SearchAPI,
			SearchURL: searchURL,
			API:       desc,
		}, nil
	}

	ev := c.evidenceFromDOM(pageHTML, finalURL, searchURL, SearchURLQuery)
	if desc, ok := captures.classify(query); ok {
		if ev == nil {
			return &SearchEvidence{
				Type:      SearchAPIIntercepted,
				SearchURL: searchURL,
				API:       desc,
			}, nil
		}
		// DOM results and an API were both observed; keep both, the
		// authoring collaborator picks the sturdier one.
		ev.API = desc
	}
	return ev, nil
}

// evidenceFromDOM runs the result analyzer and loop inference over
// captured HTML. Returns nil when fewer than MinResults items surface.
func (c *Collector) evidenceFromDOM(pageHTML, baseURL, searchURL string, t SearchType) *SearchEvidence {
	cand, err := analyzer.FindResults(pageHTML, baseURL)
	if err != nil || len(cand.Items) < c.cfg.MinResults {
		return nil
	}

	ev := &SearchEvidence{
		Type:             t,
		SearchURL:        searchURL,
		ContainerLocator: cand.Selector,
		Items:            c.itemEvidence(cand.Items),
	}

	anchors := analyzerAnchors(cand.Items)
	if len(anchors) >= 2 {
		st, err := domloop.Infer(anchors)
		if err != nil {
			c.cfg.Logger.Warn("evidence: loop inference failed", "error", err)
		} else {
			ev.DomStructure = st
		}
	}

	c.cfg.Logger.Info("evidence: search results analyzed",
		"type", string(t),
		"selector", cand.Selector,
		"items", len(ev.Items),
		"loop_inferred", ev.DomStructure != nil)
	return ev
}

// discoverViaForm submits the homepage search form and inspects the
// resulting URL pattern. Nil evidence with embedded=false means the
// submission landed somewhere that does not embed the query; nil
// evidence with embedded=true means the URL is a genuine search route
// but the page yielded too few extractable results.
func (c *Collector) discoverViaForm(ctx context.Context, home, query string) (ev *SearchEvidence, discovered string, embedded bool, err error) {
	page, err := c.drv.NewPage(ctx)
	if err != nil {
		return nil, "", false, fmt.Errorf("evidence: open page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, home, browser.WaitDOMStable, c.cfg.NavigateTimeout); err != nil {
		return nil, "", false, err
	}
	c.dismissConsent(ctx, page)

	fp, err := c.fingerprint(ctx, page)
	if err != nil {
		return nil, "", false, err
	}
	if fp.SearchInput == "" {
		return nil, "", false, ErrNoSearchAffordance
	}

	input, ok, err := page.Query(ctx, fp.SearchInput)
	if err != nil || !ok {
		return nil, "", false, ErrNoSearchAffordance
	}
	if err := input.Type(ctx, query, 0); err != nil {
		return nil, "", false, fmt.Errorf("evidence: fill search input: %w", err)
	}
	if err := c.submitSearch(ctx, page, fp.SearchInput); err != nil {
		return nil, "", false, err
	}
	settle(ctx, c.cfg.SettleWait)

	discovered = page.URL()
	if !urlEmbedsQuery(discovered, query) {
		return nil, discovered, false, nil
	}

	pageHTML, err := page.HTML(ctx)
	if err != nil {
		return nil, discovered, true, err
	}
	ev = c.evidenceFromDOM(pageHTML, discovered, discovered, SearchDiscoveredURL)
	if ev == nil {
		return nil, discovered, true, nil
	}
	ev.URLTemplate = templatizeURL(discovered, query)
	return ev, discovered, true, nil
}

// submitSearch submits the form owning the search input, falling back
// to dispatching an Enter keydown for inputs bound to JS handlers.
func (c *Collector) submitSearch(ctx context.Context, page browser.Page, inputSel string) error {
	script := fmt.Sprintf(`() => {
		const el = document.querySelector(%q);
		if (!el) return 'missing';
		if (el.form) { el.form.submit(); return 'form'; }
		el.dispatchEvent(new KeyboardEvent('keydown', {key: 'Enter', keyCode: 13, bubbles: true}));
		return 'enter';
	}`, inputSel)
	how, err := page.Eval(ctx, script)
	if err != nil {
		return fmt.Errorf("evidence: submit search: %w", err)
	}
	if how == "missing" {
		return ErrNoSearchAffordance
	}
	return nil
}

// DiscoverAPI simulates character-by-character typing into the search
// input while intercepting network traffic, then classifies the
// captured JSON responses. This is both the last probing strategy and
// the repair loop's fallback when DOM extraction turns out to return
// static content.
func (c *Collector) DiscoverAPI(ctx context.Context, home, query string) (*SearchEvidence, error) {
	page, err := c.drv.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("evidence: open page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, home, browser.WaitDOMStable, c.cfg.NavigateTimeout); err != nil {
		return nil, err
	}
	c.dismissConsent(ctx, page)

	fp, err := c.fingerprint(ctx, page)
	if err != nil {
		return nil, err
	}
	if fp.SearchInput == "" {
		return nil, ErrNoSearchAffordance
	}
	input, ok, err := page.Query(ctx, fp.SearchInput)
	if err != nil || !ok {
		return nil, ErrNoSearchAffordance
	}

	captures := newCaptureLog()
	if err := page.EnableIntercept(captures.add); err != nil {
		return nil, fmt.Errorf("evidence: enable interception: %w", err)
	}

	typeErr := input.Type(ctx, query, c.cfg.TypeDelay)
	settle(ctx, c.cfg.SettleWait)
	_ = page.DisableIntercept()

	if typeErr != nil {
		return nil, fmt.Errorf("evidence: simulated typing: %w", typeErr)
	}

	if desc, ok := captures.classify(query); ok {
		c.cfg.Logger.Info("evidence: api discovered via typing",
			"shape", desc.Shape, "source", desc.SourceURL)
		return &SearchEvidence{
			Type: SearchInteractiveAPIDiscovery,
			API:  desc,
		}, nil
	}
	return nil, ErrSearchUndiscovered
}

// captureLog accumulates intercepted exchanges thread-safely; the
// interception callback fires from the hijack goroutine.
type captureLog struct {
	mu   sync.Mutex
	caps []browser.Capture
}

func newCaptureLog() *captureLog { return &captureLog{} }

func (l *captureLog) add(c browser.Capture) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.caps = append(l.caps, c)
}

// classify runs the API classifier over captures in arrival order and
// returns the first match. Plain string-array suggestion payloads match
// last, as a degenerate descriptor.
func (l *captureLog) classify(query string) (*netapi.Descriptor, bool) {
	l.mu.Lock()
	caps := make([]browser.Capture, len(l.caps))
	copy(caps, l.caps)
	l.mu.Unlock()

	for _, c := range caps {
		nc := netapi.Capture{
			URL:     c.URL,
			Method:  c.Method,
			Headers: c.RequestHeaders,
			Body:    c.RequestBody,
			Payload: c.ResponseBody,
		}
		if desc, ok := netapi.Classify(nc, query); ok {
			return desc, true
		}
	}
	for _, c := range caps {
		if netapi.IsStringArray(c.ResponseBody, query) {
			return &netapi.Descriptor{
				SourceURL: templatizeURL(c.URL, query),
				Method:    c.Method,
				Shape:     "string-array",
				PathHint:  "[$i]",
			}, true
		}
	}
	return nil, false
}

// classifyRawJSON handles search URLs that are themselves JSON
// endpoints: the rendered "page" is just the payload.
func classifyRawJSON(pageHTML, sourceURL, query string) (*netapi.Descriptor, bool) {
	body := strings.TrimSpace(pageHTML)
	// Browsers wrap raw JSON responses in a <pre> viewer.
	if i := strings.Index(body, "<pre"); i >= 0 {
		if j := strings.Index(body[i:], ">"); j >= 0 {
			body = body[i+j+1:]
			if k := strings.Index(body, "</pre>"); k >= 0 {
				body = body[:k]
			}
		}
	}
	body = strings.TrimSpace(body)
	if body == "" || (body[0] != '{' && body[0] != '[') || !json.Valid([]byte(body)) {
		return nil, false
	}
	return netapi.Classify(netapi.Capture{
		URL:     sourceURL,
		Method:  "GET",
		Payload: []byte(body),
	}, query)
}

func analyzerAnchors(items []analyzer.Item) []*html.Node {
	var out []*html.Node
	for _, it := range items {
		if it.AnchorNode != nil {
			out = append(out, it.AnchorNode)
		}
	}
	return out
}

func homepageOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.ReplaceAll(rawURL, netapi.QueryPlaceholder, "q"))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("no scheme/host in %q", rawURL)
	}
	return u.Scheme + "://" + u.Host + "/", nil
}

func urlEmbedsQuery(rawURL, query string) bool {
	lower := strings.ToLower(rawURL)
	q := strings.ToLower(query)
	return strings.Contains(lower, q) ||
		strings.Contains(lower, url.QueryEscape(q)) ||
		strings.Contains(lower, strings.ReplaceAll(q, " ", "+"))
}

func templatizeURL(rawURL, query string) string {
	out := strings.ReplaceAll(rawURL, url.QueryEscape(query), netapi.QueryPlaceholder)
	out = strings.ReplaceAll(out, strings.ReplaceAll(query, " ", "+"), netapi.QueryPlaceholder)
	return strings.ReplaceAll(out, query, netapi.QueryPlaceholder)
}

func settle(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
