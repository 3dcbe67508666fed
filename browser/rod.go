package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// rodPage implements Page on top of a Rod page. Rod's Fetch domain is
// page-scoped, so resource blocking and network interception share one
// hijack router; running two routers on the same page lets stopping
// one detach the other's hooks.
type rodPage struct {
	pg  *rod.Page
	log *slog.Logger

	mu        sync.Mutex
	lastURL   string
	router    *rod.HijackRouter
	blockSet  map[string]bool
	intercept func(Capture)
}

func (p *rodPage) Navigate(ctx context.Context, url string, wait WaitPolicy, timeout time.Duration) error {
	pg := p.pg.Context(ctx).Timeout(timeout)

	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		p.log.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	if wait == WaitDOMStable {
		if err := pg.WaitDOMStable(300*time.Millisecond, 0); err != nil {
			p.log.Warn("browser: wait dom stable timeout", "url", url, "error", err)
		}
	}

	p.mu.Lock()
	p.lastURL = url
	p.mu.Unlock()
	return nil
}

func (p *rodPage) URL() string {
	info, err := p.pg.Info()
	if err == nil && info.URL != "" {
		return info.URL
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastURL
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	res, err := p.pg.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", fmt.Errorf("browser: read title: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	res, err := p.pg.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *rodPage) Eval(ctx context.Context, js string) (string, error) {
	res, err := p.pg.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("browser: eval: %w", err)
	}
	return res.Value.Str(), nil
}

func (p *rodPage) Query(ctx context.Context, selector string) (Element, bool, error) {
	has, el, err := p.pg.Context(ctx).Has(selector)
	if err != nil {
		return nil, false, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	if !has {
		return nil, false, nil
	}
	return &rodElement{el: el, pg: p.pg}, true, nil
}

func (p *rodPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.pg.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query all %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, pg: p.pg})
	}
	return out, nil
}

// hijackAction is the routing decision for one in-flight request.
type hijackAction int

const (
	hijackContinue hijackAction = iota
	hijackBlock
	hijackCapture
)

// routeRequest decides what the shared router does with a request.
// Blocking takes precedence; only XHR/fetch exchanges are captured,
// since those are the ones that carry search-API payloads.
func routeRequest(blockSet map[string]bool, intercepting bool, resType string) hijackAction {
	if shouldBlock(blockSet, resType) {
		return hijackBlock
	}
	if intercepting && (resType == "XHR" || resType == "Fetch") {
		return hijackCapture
	}
	return hijackContinue
}

// ensureRouter starts the page's single hijack router. Must be called
// with p.mu held.
func (p *rodPage) ensureRouter() {
	if p.router != nil {
		return
	}
	router := p.pg.HijackRequests()
	router.MustAdd("*", p.handleHijack)
	go router.Run()
	p.router = router
}

func (p *rodPage) handleHijack(h *rod.Hijack) {
	p.mu.Lock()
	blockSet := p.blockSet
	intercept := p.intercept
	p.mu.Unlock()

	switch routeRequest(blockSet, intercept != nil, string(h.Request.Type())) {
	case hijackBlock:
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	case hijackContinue:
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}

	cap := Capture{
		URL:            h.Request.URL().String(),
		Method:         h.Request.Method(),
		RequestHeaders: map[string]string{},
		RequestBody:    h.Request.Body(),
	}
	for k, v := range h.Request.Headers() {
		cap.RequestHeaders[k] = v.Str()
	}

	if err := h.LoadResponse(http.DefaultClient, true); err != nil {
		p.log.Debug("browser: intercept load response failed",
			"url", cap.URL, "error", err)
		return
	}

	cap.Status = h.Response.Payload().ResponseCode
	cap.ContentType = h.Response.Headers().Get("Content-Type")
	cap.ResponseBody = []byte(h.Response.Body())

	intercept(cap)
}

// EnableIntercept starts recording completed XHR/fetch exchanges on the
// page's shared router.
func (p *rodPage) EnableIntercept(fn func(Capture)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.intercept != nil {
		return fmt.Errorf("browser: interception already enabled")
	}
	p.intercept = fn
	p.ensureRouter()
	return nil
}

// DisableIntercept stops recording. The router stays attached for the
// page's lifetime so resource blocking keeps working; requests simply
// pass through once the capture callback is cleared.
func (p *rodPage) DisableIntercept() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intercept = nil
	return nil
}

func (p *rodPage) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := p.pg.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("browser: read cookies: %w", err)
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  time.Unix(int64(c.Expires), 0),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return out, nil
}

func (p *rodPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires.Unix()),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	if err := p.pg.Context(ctx).SetCookies(params); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}

func (p *rodPage) Close() error {
	p.mu.Lock()
	router := p.router
	p.router = nil
	p.intercept = nil
	p.blockSet = nil
	p.mu.Unlock()
	if router != nil {
		_ = router.Stop()
	}
	if p.pg != nil {
		return p.pg.Close()
	}
	return nil
}

// applyResourceBlocking registers heavy resource types to skip during
// probes, on the page's shared router.
func (p *rodPage) applyResourceBlocking(types []string) error {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockSet = blockSet
	p.ensureRouter()
	return nil
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	switch strings.ToLower(resType) {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	}
	return blockSet[strings.ToLower(resType)]
}

// rodElement implements Element for a live DOM node.
type rodElement struct {
	el *rod.Element
	pg *rod.Page
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	s, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", fmt.Errorf("browser: element text: %w", err)
	}
	return strings.TrimSpace(s), nil
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("browser: attribute %q: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) HTML(ctx context.Context) (string, error) {
	s, err := e.el.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: element html: %w", err)
	}
	return s, nil
}

func (e *rodElement) TagName(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return "", fmt.Errorf("browser: tag name: %w", err)
	}
	return res.Value.Str(), nil
}

func (e *rodElement) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click: %w", err)
	}
	return nil
}

// Type simulates per-character keyboard input. Real key events (not a
// value assignment) are required to trigger XHR-backed suggestion
// endpoints bound to keyup/input listeners.
func (e *rodElement) Type(ctx context.Context, text string, perKey time.Duration) error {
	if err := e.el.Context(ctx).Focus(); err != nil {
		return fmt.Errorf("browser: focus: %w", err)
	}
	kb := e.pg.Context(ctx).Keyboard
	for _, r := range text {
		if err := kb.Type(input.Key(r)); err != nil {
			return fmt.Errorf("browser: type %q: %w", r, err)
		}
		if perKey > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(perKey):
			}
		}
	}
	return nil
}

func (e *rodElement) Query(ctx context.Context, selector string) (Element, bool, error) {
	has, el, err := e.el.Context(ctx).Has(selector)
	if err != nil {
		return nil, false, fmt.Errorf("browser: element query %q: %w", selector, err)
	}
	if !has {
		return nil, false, nil
	}
	return &rodElement{el: el, pg: e.pg}, true, nil
}

func (e *rodElement) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: element query all %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, pg: e.pg})
	}
	return out, nil
}
