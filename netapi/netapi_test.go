package netapi

import (
	"testing"
)

func classify(t *testing.T, body, query string) *Descriptor {
	t.Helper()
	d, ok := Classify(Capture{
		URL:     "https://example.com/api/search?q=" + query,
		Method:  "GET",
		Payload: []byte(body),
	}, query)
	if !ok {
		t.Fatalf("expected classification for payload %s", body)
	}
	return d
}

func TestClassify_Algolia(t *testing.T) {
	d := classify(t, `{"results":[{"hits":[{"title":"Batman","url":"/items/1"}]}]}`, "batman")
	if d.Shape != "algolia" {
		t.Errorf("shape = %q, want algolia", d.Shape)
	}
	if d.PathHint != "results[0].hits[$i]" {
		t.Errorf("path hint = %q", d.PathHint)
	}
	if d.Fields.Title != "title" {
		t.Errorf("title path = %q, want title", d.Fields.Title)
	}
}

func TestClassify_Typesense(t *testing.T) {
	d := classify(t, `{"found":12,"hits":[{"document":{"name":"Batman","image":"/c.jpg"}}]}`, "batman")
	if d.Shape != "typesense" {
		t.Errorf("shape = %q, want typesense", d.Shape)
	}
	if d.PathHint != "hits[$i].document" {
		t.Errorf("path hint = %q", d.PathHint)
	}
}

func TestClassify_Elasticsearch(t *testing.T) {
	d := classify(t, `{"hits":{"total":5,"hits":[{"_source":{"title":"Batman"}}]}}`, "batman")
	if d.Shape != "elasticsearch" {
		t.Errorf("shape = %q, want elasticsearch", d.Shape)
	}
	if d.PathHint != "hits.hits[$i]._source" {
		t.Errorf("path hint = %q", d.PathHint)
	}
}

func TestClassify_NamedArray(t *testing.T) {
	d := classify(t, `{"items":[{"title":"Batman","cover":"/c.jpg"}]}`, "batman")
	if d.Shape != "named-array" {
		t.Errorf("shape = %q, want named-array", d.Shape)
	}
	if d.PathHint != "items[$i]" {
		t.Errorf("path hint = %q", d.PathHint)
	}
}

func TestClassify_TopLevelArray(t *testing.T) {
	d := classify(t, `[{"title":"Batman"},{"title":"Batgirl"}]`, "batman")
	if d.Shape != "top-level-array" {
		t.Errorf("shape = %q, want top-level-array", d.Shape)
	}
	if d.PathHint != "[$i]" {
		t.Errorf("path hint = %q", d.PathHint)
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// WHAT: A payload satisfying both the Algolia and named-array shapes
	// classifies as Algolia; shapes are never merged.
	body := `{"results":[{"hits":[{"title":"Batman"}]}],"items":[{"title":"Other"}]}`
	d := classify(t, body, "batman")
	if d.Shape != "algolia" {
		t.Errorf("shape = %q, want algolia to win over named-array", d.Shape)
	}
}

func TestClassify_RejectsNonSearchJSON(t *testing.T) {
	cases := []string{
		`{"status":"ok"}`,
		`{"results":[]}`,
		`{"hits":[{"document":{"name":"x"}}]}`, // typesense without found count
		`[]`,
		`not json`,
		`{"items":[{"count":3}]}`, // named array without a title-like field
	}
	for _, body := range cases {
		if _, ok := Classify(Capture{Payload: []byte(body)}, "batman"); ok {
			t.Errorf("payload %s should not classify", body)
		}
	}
}

func TestClassify_TemplatizesURLAndBody(t *testing.T) {
	d, ok := Classify(Capture{
		URL:     "https://example.com/api/search?q=batman&page=1",
		Method:  "POST",
		Body:    `{"query":"batman"}`,
		Payload: []byte(`{"results":[{"hits":[{"title":"Batman"}]}]}`),
	}, "batman")
	if !ok {
		t.Fatal("expected classification")
	}
	if d.SourceURL != "https://example.com/api/search?q=$QUERY&page=1" {
		t.Errorf("source url = %q", d.SourceURL)
	}
	if d.BodyTemplate != `{"query":"$QUERY"}` {
		t.Errorf("body template = %q", d.BodyTemplate)
	}
}

func TestClassify_TemplatizesEncodedMultiWordQuery(t *testing.T) {
	// WHAT: A multi-word query appears percent-encoded in the captured
	// URL and verbatim in the POST body; both must become the
	// placeholder or the descriptor is not reusable.
	d, ok := Classify(Capture{
		URL:     "https://example.com/api/search?q=harry%20potter",
		Method:  "POST",
		Body:    `{"query":"harry potter","page":1}`,
		Payload: []byte(`{"results":[{"hits":[{"title":"Harry Potter"}]}]}`),
	}, "harry potter")
	if !ok {
		t.Fatal("expected classification")
	}
	if d.SourceURL != "https://example.com/api/search?q=$QUERY" {
		t.Errorf("source url = %q", d.SourceURL)
	}
	if d.BodyTemplate != `{"query":"$QUERY","page":1}` {
		t.Errorf("body template = %q", d.BodyTemplate)
	}

	plus, ok := Classify(Capture{
		URL:     "https://example.com/api/search?q=harry+potter",
		Method:  "GET",
		Payload: []byte(`{"results":[{"hits":[{"title":"Harry Potter"}]}]}`),
	}, "harry potter")
	if !ok {
		t.Fatal("expected classification")
	}
	if plus.SourceURL != "https://example.com/api/search?q=$QUERY" {
		t.Errorf("plus-joined source url = %q", plus.SourceURL)
	}
}

func TestIsStringArray(t *testing.T) {
	cases := []struct {
		body  string
		query string
		want  bool
	}{
		{`["batman begins","batman returns"]`, "batman", true},
		{`["alpha","beta"]`, "batman", false},
		{`[{"title":"batman"}]`, "batman", false},
		{`[]`, "batman", false},
		{`["BATMAN BEGINS"]`, "batman", true}, // case-insensitive
	}
	for _, tc := range cases {
		if got := IsStringArray([]byte(tc.body), tc.query); got != tc.want {
			t.Errorf("IsStringArray(%s, %q) = %v, want %v", tc.body, tc.query, got, tc.want)
		}
	}
}
