// Package evidence gathers structured observations from live pages and
// network captures. Evidence is the primary input both for authoring an
// extraction recipe and for every repair iteration's fix request.
package evidence

import (
	"fmt"

	"github.com/mendrake/siteforge/domloop"
	"github.com/mendrake/siteforge/netapi"
)

// SearchType tags how the search mechanics of a site were established.
type SearchType string

const (
	// SearchURLQuery: the templated search URL returned results directly.
	SearchURLQuery SearchType = "url_query"
	// SearchDiscoveredURL: form submission revealed the results URL pattern.
	SearchDiscoveredURL SearchType = "discovered_url"
	// SearchAPI: the search URL itself is a JSON API endpoint.
	SearchAPI SearchType = "api"
	// SearchAPIIntercepted: a JSON API was captured during a page load.
	SearchAPIIntercepted SearchType = "api_intercepted"
	// SearchInteractiveAPIDiscovery: simulated typing exposed the API.
	SearchInteractiveAPIDiscovery SearchType = "interactive_api_discovery"
)

// IsValid reports whether t is a known tag.
func (t SearchType) IsValid() bool {
	switch t {
	case SearchURLQuery, SearchDiscoveredURL, SearchAPI,
		SearchAPIIntercepted, SearchInteractiveAPIDiscovery:
		return true
	}
	return false
}

// UsesAPI reports whether this search type extracts from a JSON API
// rather than the DOM.
func (t SearchType) UsesAPI() bool {
	switch t {
	case SearchAPI, SearchAPIIntercepted, SearchInteractiveAPIDiscovery:
		return true
	case SearchURLQuery, SearchDiscoveredURL:
		return false
	}
	panic(fmt.Sprintf("evidence: unknown search type %q", string(t)))
}

// SearchAffordance describes the search UI found on a page.
type SearchAffordance struct {
	HasSearch    bool   `json:"has_search"`
	InputLocator string `json:"input_locator,omitempty"`
	FormAction   string `json:"form_action,omitempty"`
}

// SiteEvidence is the structural fingerprint of one probed page.
// Created once per probe call and immutable after creation; it is not
// persisted beyond the current run.
type SiteEvidence struct {
	Hostname            string           `json:"hostname"`
	FinalURL            string           `json:"final_url"`
	Title               string           `json:"title"`
	MetaDescription     string           `json:"meta_description,omitempty"`
	FirstHeading        string           `json:"first_heading,omitempty"`
	StructuredDataTypes []string         `json:"structured_data_types,omitempty"`
	SampledLinks        []string         `json:"sampled_links,omitempty"`
	Search              SearchAffordance `json:"search"`
}

// ItemEvidence is one result record observed on a results page.
type ItemEvidence struct {
	Link  string `json:"link"`
	Image string `json:"image,omitempty"`
	Title string `json:"title"`
	// RawHTML is the wrapper snippet as captured.
	RawHTML string `json:"raw_html,omitempty"`
	// Snippet is the sanitized, markdown-rendered form of RawHTML,
	// sized for a fix-request context.
	Snippet string `json:"snippet,omitempty"`
}

// SearchEvidence is everything learned about a site's search mechanics.
// API and DomStructure are independently optional and may both be
// present; consumers must not assume exactly one is set.
type SearchEvidence struct {
	Type SearchType `json:"search_type"`

	// SearchURL is the resolved results URL for the probe query.
	SearchURL string `json:"search_url,omitempty"`
	// URLTemplate is SearchURL with the query replaced by $QUERY.
	URLTemplate string `json:"url_template,omitempty"`

	ContainerLocator string         `json:"container_locator,omitempty"`
	Items            []ItemEvidence `json:"items,omitempty"`

	API          *netapi.Descriptor `json:"api,omitempty"`
	DomStructure *domloop.Structure `json:"dom_structure,omitempty"`
}

// DetailEvidence is the fingerprint of one detail page plus candidate
// field selectors for authoring url_steps.
type DetailEvidence struct {
	URL             string            `json:"url"`
	Title           string            `json:"title"`
	MetaDescription string            `json:"meta_description,omitempty"`
	FirstHeading    string            `json:"first_heading,omitempty"`
	FieldSelectors  map[string]string `json:"field_selectors,omitempty"`
}
