package validate

import (
	"strings"
	"testing"
)

func goodRecord(title, url string) Record {
	return Record{"title": title, "url": url, "cover": "https://cdn.example.com/c.jpg"}
}

func TestList_AllValid(t *testing.T) {
	records := []Record{
		goodRecord("Alpha", "https://example.com/items/1"),
		goodRecord("Beta", "https://example.com/items/2"),
		goodRecord("Gamma", "https://example.com/items/3"),
	}
	out := List(records, Config{})
	if len(out.Valid) != 3 {
		t.Fatalf("expected 3 valid, got %d (issues: %v)", len(out.Valid), out.Issues)
	}
	if len(out.Issues) != 0 {
		t.Errorf("expected no issues, got %v", out.Issues)
	}
}

func TestList_UnresolvedTemplate(t *testing.T) {
	// WHAT: A bare uppercase token behind the substitution marker fails the record.
	// WHY: It means the engine never expanded the placeholder, so the value is garbage.
	records := []Record{
		goodRecord("$TITLE", "https://example.com/items/1"),
	}
	out := List(records, Config{})
	if len(out.Valid) != 0 {
		t.Fatalf("expected 0 valid, got %d", len(out.Valid))
	}
	found := false
	for _, is := range out.Issues {
		if is.Kind == KindUnresolvedTemplate && is.Field == "title" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unresolved-template issue on title, got %v", out.Issues)
	}
}

func TestList_DoubledScheme(t *testing.T) {
	// WHAT: Two scheme markers in one URL is always invalid, and the detail names it.
	// WHY: The doubled domain appears when a loop index concatenates into the href.
	records := []Record{
		goodRecord("Alpha", "https://example.comhttps://example.com/items/1"),
	}
	out := List(records, Config{})
	if len(out.Valid) != 0 {
		t.Fatalf("expected 0 valid, got %d", len(out.Valid))
	}
	if len(out.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %v", out.Issues)
	}
	is := out.Issues[0]
	if is.Kind != KindDoubledSchemeURL {
		t.Errorf("expected %s, got %s", KindDoubledSchemeURL, is.Kind)
	}
	if !strings.Contains(is.Detail, "doubled domain") {
		t.Errorf("detail should name the doubled domain, got %q", is.Detail)
	}
}

func TestList_DomainRootURL(t *testing.T) {
	// WHAT: A URL with no path and no query is flagged as the homepage.
	records := []Record{
		goodRecord("Alpha", "https://example.com/"),
		goodRecord("Beta", "https://example.com"),
	}
	out := List(records, Config{})
	if len(out.Valid) != 0 {
		t.Fatalf("expected 0 valid, got %d", len(out.Valid))
	}
	for _, is := range out.Issues {
		if is.Kind != KindDomainRootURL {
			t.Errorf("expected %s, got %s", KindDomainRootURL, is.Kind)
		}
	}
}

func TestList_RootURLWithQueryIsFine(t *testing.T) {
	records := []Record{goodRecord("Alpha", "https://example.com/?id=42")}
	out := List(records, Config{})
	if len(out.Valid) != 1 {
		t.Errorf("root URL with a query should pass, got issues %v", out.Issues)
	}
}

func TestList_MissingVisualField(t *testing.T) {
	records := []Record{
		{"title": "Alpha", "url": "https://example.com/items/1"},
	}
	out := List(records, Config{})
	if len(out.Valid) != 0 {
		t.Fatalf("record without any visual field should fail")
	}
}

func TestList_BlankOptionalFieldIsWarning(t *testing.T) {
	rec := goodRecord("Alpha", "https://example.com/items/1")
	rec["subtitle"] = "  "
	out := List([]Record{rec}, Config{})
	if len(out.Valid) != 1 {
		t.Fatalf("blank optional field must not invalidate, got issues %v", out.Issues)
	}
	if len(out.Warnings) != 1 || out.Warnings[0].Field != "subtitle" {
		t.Errorf("expected one warning on subtitle, got %v", out.Warnings)
	}
}

func TestOutcome_AcceptanceThreshold(t *testing.T) {
	// WHAT: Acceptance bar is max(MinAbsolute, floor(MinFraction*total)).
	cases := []struct {
		valid, total int
		want         bool
	}{
		{valid: 3, total: 10, want: true},   // floor(3.0)=3, abs floor 3
		{valid: 2, total: 10, want: false},  // below absolute floor
		{valid: 3, total: 3, want: true},    // small result set, absolute floor rules
		{valid: 5, total: 20, want: false},  // floor(0.3*20)=6 > 5
		{valid: 6, total: 20, want: true},   // exactly at fraction bar
		{valid: 30, total: 100, want: true}, // floor(30.0)=30
		{valid: 0, total: 0, want: false},
	}
	for _, tc := range cases {
		out := Outcome{Valid: make([]Record, tc.valid)}
		if got := out.Accepted(tc.total, Config{}); got != tc.want {
			t.Errorf("valid=%d total=%d: Accepted=%v, want %v", tc.valid, tc.total, got, tc.want)
		}
	}
}

func TestDetail_AllDeclaredFieldsRequired(t *testing.T) {
	rec := Record{"title": "Alpha", "description": "A fine item", "rating": "4.5"}
	out := Detail(rec, []string{"title", "description", "rating"}, Config{})
	if len(out.Valid) != 1 {
		t.Fatalf("expected detail record to validate, got issues %v", out.Issues)
	}

	out = Detail(rec, []string{"title", "description", "rating", "cover"}, Config{})
	if len(out.Valid) != 0 {
		t.Fatalf("missing declared field must fail the record")
	}
}

func TestDetail_UnresolvedTemplateInDeclaredField(t *testing.T) {
	rec := Record{"title": "Alpha", "cover": "https://cdn.example.com/$IMAGE_ID.jpg"}
	out := Detail(rec, []string{"title", "cover"}, Config{})
	if len(out.Valid) != 0 {
		t.Fatalf("unresolved template in declared field must fail")
	}
	if out.Issues[0].Kind != KindUnresolvedTemplate {
		t.Errorf("expected %s, got %s", KindUnresolvedTemplate, out.Issues[0].Kind)
	}
}

func TestList_ValidEntriesAreOriginalRecords(t *testing.T) {
	// WHAT: Outcome.Valid holds the original record values, not copies or rewrites.
	records := []Record{goodRecord("Alpha", "https://example.com/items/1")}
	out := List(records, Config{})
	if len(out.Valid) != 1 {
		t.Fatal("expected one valid record")
	}
	records[0]["title"] = "mutated"
	if out.Valid[0]["title"] != "mutated" {
		t.Error("Valid must reference the original record, not a copy")
	}
}
