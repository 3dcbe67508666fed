// Package browser defines the narrow automation capability surface the
// probing and repair pipeline depends on: navigate, query, evaluate,
// intercept, cookies. Any backend exposing this surface (headless or
// headed) is interchangeable; the rod implementation lives in this
// package but callers hold only the interfaces.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNoBrowser is returned when a page is requested before Start.
var ErrNoBrowser = errors.New("browser: no active browser")

// WaitPolicy controls how long Navigate waits after the initial load event.
type WaitPolicy int

const (
	// WaitLoad waits for the window load event only.
	WaitLoad WaitPolicy = iota
	// WaitDOMStable additionally waits for the DOM to stop mutating,
	// which SPA result pages need before their content is queryable.
	WaitDOMStable
)

// Cookie is a minimal cookie representation for session handoff between
// the interactive bypass flow and later headless probes.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
}

// Capture is one intercepted network exchange, recorded while
// interception is enabled on a page.
type Capture struct {
	URL             string
	Method          string
	RequestHeaders  map[string]string
	RequestBody     string
	Status          int
	ContentType     string
	ResponseBody    []byte
}

// Driver creates scoped pages. Exactly one Driver is open per pipeline
// run; pages are opened per probe call and must be closed by the caller.
type Driver interface {
	// NewPage opens a fresh page (tab). The page carries no navigation
	// yet; callers navigate explicitly so timeouts stay per-operation.
	NewPage(ctx context.Context) (Page, error)
	// Close shuts the underlying browser down.
	Close() error
}

// Page is one scoped browser page.
type Page interface {
	// Navigate loads a URL, waiting per policy, bounded by timeout.
	Navigate(ctx context.Context, url string, wait WaitPolicy, timeout time.Duration) error
	// URL returns the current resolved URL (after redirects).
	URL() string
	// Title returns the document title.
	Title(ctx context.Context) (string, error)
	// HTML returns the full serialized DOM.
	HTML(ctx context.Context) (string, error)
	// Eval runs a JS function expression and returns its result
	// serialized as a JSON string.
	Eval(ctx context.Context, js string) (string, error)
	// Query returns the first element matching the selector. Absence is
	// not an error: ok=false means not found.
	Query(ctx context.Context, selector string) (el Element, ok bool, err error)
	// QueryAll returns all elements matching the selector; an empty
	// slice means none matched.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// EnableIntercept starts recording network exchanges, invoking fn
	// for each completed response. Only one interceptor may be active.
	EnableIntercept(fn func(Capture)) error
	// DisableIntercept stops recording; subsequent requests pass
	// through. Safe to call when interception is not active.
	DisableIntercept() error
	// Cookies reads the cookies visible to the current page.
	Cookies(ctx context.Context) ([]Cookie, error)
	// SetCookies installs cookies before navigation.
	SetCookies(ctx context.Context, cookies []Cookie) error
	// Close releases the page. Idempotent.
	Close() error
}

// Element is a handle to one DOM node on a live page.
type Element interface {
	// Text returns the visible text content, trimmed.
	Text(ctx context.Context) (string, error)
	// Attribute returns an attribute value; ok=false when absent.
	Attribute(ctx context.Context, name string) (val string, ok bool, err error)
	// HTML returns the element's outer HTML.
	HTML(ctx context.Context) (string, error)
	// TagName returns the lowercase tag name.
	TagName(ctx context.Context) (string, error)
	// Click dispatches a trusted click.
	Click(ctx context.Context) error
	// Type simulates per-character keyboard input with the given delay
	// between keys, which is what triggers XHR-backed suggestion APIs.
	Type(ctx context.Context, text string, perKey time.Duration) error
	// Query finds the first descendant matching the selector.
	Query(ctx context.Context, selector string) (el Element, ok bool, err error)
	// QueryAll finds all descendants matching the selector.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}
