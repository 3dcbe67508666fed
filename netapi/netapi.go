// Package netapi classifies intercepted JSON network responses against
// known search-engine response shapes. A successful classification
// yields a Descriptor: where the result array lives inside the payload
// and which item fields look like title/url/image. The descriptor is
// what step authoring consumes to synthesize API extraction steps.
package netapi

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Capture is one recorded request/response pair, gathered while a
// simulated search interaction (or page load) runs with network
// interception enabled.
type Capture struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Payload []byte // response body, expected to be JSON
}

// FieldPaths locates item fields inside one result object, as dotted
// paths relative to the result array entry.
type FieldPaths struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	URL      string `json:"url,omitempty"`
	Image    string `json:"image,omitempty"`
}

// Descriptor describes a classified search API: how to call it and
// where results live in its response.
type Descriptor struct {
	SourceURL    string            `json:"source_url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"body_template,omitempty"`

	// Shape names the matched engine family (algolia, typesense,
	// elasticsearch, named-array, top-level-array).
	Shape string `json:"shape"`

	// PathHint locates the result array, with $i as the positional
	// placeholder, e.g. "results[0].hits[$i]".
	PathHint string `json:"json_path_hint"`

	Fields FieldPaths `json:"fields"`
}

// QueryPlaceholder is substituted for the probe query when a captured
// URL or body is turned into a template.
const QueryPlaceholder = "$QUERY"

// Classify runs the shape cascade against one capture. The first
// matching rule wins; candidate shapes are never merged. ok=false means
// the payload matches no known search-response shape.
func Classify(c Capture, query string) (*Descriptor, bool) {
	var payload any
	if err := json.Unmarshal(c.Payload, &payload); err != nil {
		return nil, false
	}

	for _, rule := range shapeRules {
		hint, sample, matched := rule.match(payload)
		if !matched {
			continue
		}
		d := &Descriptor{
			SourceURL:    templatize(c.URL, query),
			Method:       c.Method,
			Headers:      c.Headers,
			BodyTemplate: templatize(c.Body, query),
			Shape:        rule.name,
			PathHint:     hint,
			Fields:       detectFields(sample),
		}
		return d, true
	}
	return nil, false
}

// IsStringArray reports whether the payload is a plain string array
// containing the probe query (an autocomplete suggestion list with no
// object wrapper).
func IsStringArray(payload []byte, query string) bool {
	var arr []any
	if err := json.Unmarshal(payload, &arr); err != nil {
		return false
	}
	if len(arr) == 0 {
		return false
	}
	q := strings.ToLower(query)
	for _, v := range arr {
		s, isStr := v.(string)
		if !isStr {
			return false
		}
		if q != "" && strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	// All strings but none contains the query: not evidence of search.
	return false
}

// templatize replaces the probe query inside a captured URL or body
// with the substitution placeholder so the capture becomes reusable.
// Queries arrive percent-encoded, plus-joined or lowercased in captured
// URLs, and verbatim in POST bodies; every variant is substituted.
func templatize(s, query string) string {
	if s == "" || query == "" {
		return s
	}
	variants := []string{
		url.QueryEscape(query),
		strings.ReplaceAll(query, " ", "%20"),
		strings.ReplaceAll(query, " ", "+"),
		query,
		strings.ToLower(query),
	}
	for _, v := range variants {
		s = strings.ReplaceAll(s, v, QueryPlaceholder)
	}
	return s
}

type shapeRule struct {
	name string
	// match returns the path hint, a sample result item for field
	// detection, and whether the payload fits the shape.
	match func(payload any) (hint string, sample map[string]any, ok bool)
}

// shapeRules is the prioritized classification cascade. Order matters:
// the Typesense shape would also satisfy the generic named-array rule,
// so specific engines are tested first.
var shapeRules = []shapeRule{
	{name: "algolia", match: matchAlgolia},
	{name: "typesense", match: matchTypesense},
	{name: "elasticsearch", match: matchElasticsearch},
	{name: "named-array", match: matchNamedArray},
	{name: "top-level-array", match: matchTopLevelArray},
}

// matchAlgolia: results[0].hits is a non-empty object array whose first
// element has a title-like field.
func matchAlgolia(payload any) (string, map[string]any, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", nil, false
	}
	results, ok := obj["results"].([]any)
	if !ok || len(results) == 0 {
		return "", nil, false
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return "", nil, false
	}
	hits, ok := first["hits"].([]any)
	if !ok || len(hits) == 0 {
		return "", nil, false
	}
	item, ok := hits[0].(map[string]any)
	if !ok || !hasTitleLikeField(item) {
		return "", nil, false
	}
	return "results[0].hits[$i]", item, true
}

// matchTypesense: top-level hits array plus a found count, each hit
// wrapping a document object.
func matchTypesense(payload any) (string, map[string]any, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", nil, false
	}
	if _, hasFound := obj["found"]; !hasFound {
		return "", nil, false
	}
	hits, ok := obj["hits"].([]any)
	if !ok || len(hits) == 0 {
		return "", nil, false
	}
	first, ok := hits[0].(map[string]any)
	if !ok {
		return "", nil, false
	}
	doc, ok := first["document"].(map[string]any)
	if !ok {
		return "", nil, false
	}
	return "hits[$i].document", doc, true
}

// matchElasticsearch: hits.hits array of _source-wrapped documents.
func matchElasticsearch(payload any) (string, map[string]any, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", nil, false
	}
	outer, ok := obj["hits"].(map[string]any)
	if !ok {
		return "", nil, false
	}
	hits, ok := outer["hits"].([]any)
	if !ok || len(hits) == 0 {
		return "", nil, false
	}
	first, ok := hits[0].(map[string]any)
	if !ok {
		return "", nil, false
	}
	src, ok := first["_source"].(map[string]any)
	if !ok {
		return "", nil, false
	}
	return "hits.hits[$i]._source", src, true
}

// conventionalArrayKeys are the names sites conventionally give their
// result arrays, in preference order.
var conventionalArrayKeys = []string{
	"results", "items", "data", "records", "entries", "products", "hits",
}

// matchNamedArray: any conventional key holding an object array whose
// items expose a title/name field.
func matchNamedArray(payload any) (string, map[string]any, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", nil, false
	}
	for _, key := range conventionalArrayKeys {
		arr, ok := obj[key].([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		item, ok := arr[0].(map[string]any)
		if !ok || !hasTitleLikeField(item) {
			continue
		}
		return key + "[$i]", item, true
	}
	return "", nil, false
}

// matchTopLevelArray: the payload itself is a non-empty object array.
func matchTopLevelArray(payload any) (string, map[string]any, bool) {
	arr, ok := payload.([]any)
	if !ok || len(arr) == 0 {
		return "", nil, false
	}
	item, ok := arr[0].(map[string]any)
	if !ok {
		return "", nil, false
	}
	return "[$i]", item, true
}

func hasTitleLikeField(item map[string]any) bool {
	for key, v := range item {
		if _, isStr := v.(string); !isStr {
			continue
		}
		k := strings.ToLower(key)
		for _, variant := range titleVariants {
			if k == variant {
				return true
			}
		}
	}
	return false
}
