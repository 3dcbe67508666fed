package netapi

import "testing"

func TestDetectFields_ExactBeatsSubstring(t *testing.T) {
	// WHAT: "title" wins over "product_title" even when the substring
	// match sorts first.
	item := map[string]any{
		"product_title": "Batman (deluxe)",
		"title":         "Batman",
		"url":           "/items/1",
	}
	f := detectFields(item)
	if f.Title != "title" {
		t.Errorf("title path = %q, want exact match 'title'", f.Title)
	}
}

func TestDetectFields_NestedPaths(t *testing.T) {
	item := map[string]any{
		"attributes": map[string]any{
			"name":      "Batman",
			"cover_url": "https://cdn.example.com/c.jpg",
		},
		"permalink": "/items/1",
	}
	f := detectFields(item)
	if f.Title != "attributes.name" {
		t.Errorf("title path = %q, want attributes.name", f.Title)
	}
	if f.Image != "attributes.cover_url" {
		t.Errorf("image path = %q, want attributes.cover_url", f.Image)
	}
	if f.URL != "permalink" {
		t.Errorf("url path = %q, want permalink", f.URL)
	}
}

func TestDetectFields_SingleElementStringArray(t *testing.T) {
	// WHAT: ["Batman"] under a title-like key counts as a string at key[0].
	item := map[string]any{
		"name": []any{"Batman"},
		"link": "/items/1",
	}
	f := detectFields(item)
	if f.Title != "name[0]" {
		t.Errorf("title path = %q, want name[0]", f.Title)
	}
}

func TestDetectFields_MultilingualVariants(t *testing.T) {
	item := map[string]any{
		"titre": "Le Chevalier Noir",
		"lien":  "/fiche/1",
		"bild":  "/c.jpg",
	}
	f := detectFields(item)
	if f.Title != "titre" || f.URL != "lien" || f.Image != "bild" {
		t.Errorf("multilingual detection failed: %+v", f)
	}
}

func TestDetectFields_DepthBound(t *testing.T) {
	// WHY: Unbounded recursion over deeply nested payloads would make a
	// hostile response expensive to classify.
	deep := map[string]any{"title": "too deep"}
	item := map[string]any{}
	cur := item
	for i := 0; i < 6; i++ {
		next := map[string]any{}
		cur["nest"] = next
		cur = next
	}
	cur["inner"] = deep
	f := detectFields(item)
	if f.Title != "" {
		t.Errorf("title found past depth bound: %q", f.Title)
	}
}

func TestDetectFields_NoMatches(t *testing.T) {
	f := detectFields(map[string]any{"count": 3.0, "ok": true})
	if f != (FieldPaths{}) {
		t.Errorf("expected empty paths, got %+v", f)
	}
}
