// Package validate applies structural and lexical rules to extraction
// engine output to decide whether it is usable. It never mutates or
// synthesizes records: every entry in Outcome.Valid is one of the
// original raw results.
package validate

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
)

// Record is one raw engine output record (decoded JSON object).
type Record = map[string]any

// IssueKind classifies one hard validation failure.
type IssueKind string

const (
	KindUnresolvedTemplate IssueKind = "unresolved-template-variable"
	KindDomainRootURL      IssueKind = "domain-root-url"
	KindDoubledSchemeURL   IssueKind = "doubled-scheme-url"
	KindRequiredFieldBlank IssueKind = "required-field-blank"
	KindMalformedURL       IssueKind = "malformed-url"
)

// Issue is one failure or warning, indexed by result.
type Issue struct {
	Index  int       `json:"index"`
	Field  string    `json:"field"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (i Issue) String() string {
	return fmt.Sprintf("result %d field %q: %s (%s)", i.Index, i.Field, i.Detail, i.Kind)
}

// Outcome holds the three disjoint result lists. It is recomputed fresh
// on every repair iteration.
type Outcome struct {
	Valid    []Record `json:"valid"`
	Issues   []Issue  `json:"issues"`
	Warnings []Issue  `json:"warnings"`
}

// Config carries the validation thresholds and field roles. The
// acceptance thresholds are defaults with no derivation beyond observed
// behavior; they are configuration, not invariants.
type Config struct {
	// RequiredFields must be present and non-blank on every record.
	// Default: title, url.
	RequiredFields []string
	// VisualFields: at least one must be present and non-blank.
	// Default: cover, image, thumbnail, poster.
	VisualFields []string
	// MinFraction of records that must pass for list acceptance.
	// Default: 0.3.
	MinFraction float64
	// MinAbsolute floor for list acceptance. Default: 3.
	MinAbsolute int
}

func (c *Config) defaults() {
	if len(c.RequiredFields) == 0 {
		c.RequiredFields = []string{"title", "url"}
	}
	if len(c.VisualFields) == 0 {
		c.VisualFields = []string{"cover", "image", "thumbnail", "poster"}
	}
	if c.MinFraction <= 0 {
		c.MinFraction = 0.3
	}
	if c.MinAbsolute <= 0 {
		c.MinAbsolute = 3
	}
}

// unresolvedTemplate matches a bare uppercase token prefixed by the
// substitution marker, e.g. "$QUERY", meaning the execution engine
// left a placeholder unexpanded.
var unresolvedTemplate = regexp.MustCompile(`\$[A-Z][A-Z0-9_]*`)

// List validates autocomplete-style list output.
func List(records []Record, cfg Config) Outcome {
	cfg.defaults()
	var out Outcome

	for i, rec := range records {
		issues, warnings := checkRecord(i, rec, cfg)
		out.Issues = append(out.Issues, issues...)
		out.Warnings = append(out.Warnings, warnings...)
		if len(issues) == 0 {
			out.Valid = append(out.Valid, rec)
		}
	}
	return out
}

// Accepted reports whether a list outcome meets the acceptance bar:
// len(valid) >= max(MinAbsolute, floor(MinFraction*total)).
func (o Outcome) Accepted(total int, cfg Config) bool {
	cfg.defaults()
	need := int(math.Floor(cfg.MinFraction * float64(total)))
	if need < cfg.MinAbsolute {
		need = cfg.MinAbsolute
	}
	return len(o.Valid) >= need
}

// Detail validates single-record detail output: every declared output
// field must be non-blank and free of unresolved templates.
func Detail(rec Record, declaredFields []string, cfg Config) Outcome {
	cfg.defaults()
	var out Outcome

	for _, field := range declaredFields {
		val := stringField(rec, field)
		if strings.TrimSpace(val) == "" {
			out.Issues = append(out.Issues, Issue{
				Index: 0, Field: field, Kind: KindRequiredFieldBlank,
				Detail: "declared output field is blank",
			})
			continue
		}
		if tok := unresolvedTemplate.FindString(val); tok != "" {
			out.Issues = append(out.Issues, Issue{
				Index: 0, Field: field, Kind: KindUnresolvedTemplate,
				Detail: fmt.Sprintf("unexpanded template token %q", tok),
			})
		}
	}

	if len(out.Issues) == 0 {
		out.Valid = append(out.Valid, rec)
	}
	return out
}

// checkRecord applies every rule to one record. Hard failures go to
// issues; blank optional fields are warnings.
func checkRecord(idx int, rec Record, cfg Config) (issues, warnings []Issue) {
	// Unresolved templates are hard failures regardless of field.
	for field, v := range rec {
		val, isStr := v.(string)
		if !isStr {
			continue
		}
		if tok := unresolvedTemplate.FindString(val); tok != "" {
			issues = append(issues, Issue{
				Index: idx, Field: field, Kind: KindUnresolvedTemplate,
				Detail: fmt.Sprintf("unexpanded template token %q", tok),
			})
		}
	}

	for _, field := range cfg.RequiredFields {
		val := stringField(rec, field)
		if strings.TrimSpace(val) == "" {
			issues = append(issues, Issue{
				Index: idx, Field: field, Kind: KindRequiredFieldBlank,
				Detail: "required field is blank",
			})
			continue
		}
		if field == "url" {
			issues = append(issues, checkURL(idx, field, val)...)
		}
	}

	// At least one visual field must be usable.
	visualOK := false
	for _, field := range cfg.VisualFields {
		if strings.TrimSpace(stringField(rec, field)) != "" {
			visualOK = true
			break
		}
	}
	if !visualOK {
		issues = append(issues, Issue{
			Index: idx, Field: strings.Join(cfg.VisualFields, "|"),
			Kind:   KindRequiredFieldBlank,
			Detail: "no visual field present",
		})
	}

	// Blank secondary fields are soft.
	for field, v := range rec {
		if isConfiguredField(field, cfg) {
			continue
		}
		if val, isStr := v.(string); isStr && strings.TrimSpace(val) == "" {
			warnings = append(warnings, Issue{
				Index: idx, Field: field, Kind: KindRequiredFieldBlank,
				Detail: "optional field is blank",
			})
		}
	}
	return issues, warnings
}

// checkURL applies the URL-specific rules. The doubled-scheme check
// runs first and rejects unconditionally: two scheme markers mean a
// loop index was concatenated into the URL, a failure mode that appears
// once indices exceed a single digit.
func checkURL(idx int, field, val string) []Issue {
	if schemeCount(val) >= 2 {
		return []Issue{{
			Index: idx, Field: field, Kind: KindDoubledSchemeURL,
			Detail: fmt.Sprintf("doubled domain in url %q", val),
		}}
	}

	u, err := url.Parse(val)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []Issue{{
			Index: idx, Field: field, Kind: KindMalformedURL,
			Detail: fmt.Sprintf("url does not parse: %q", val),
		}}
	}

	if (u.Path == "" || u.Path == "/") && u.RawQuery == "" {
		return []Issue{{
			Index: idx, Field: field, Kind: KindDomainRootURL,
			Detail: "url is just the homepage, not a detail page",
		}}
	}
	return nil
}

func schemeCount(s string) int {
	return strings.Count(s, "http://") + strings.Count(s, "https://")
}

func stringField(rec Record, field string) string {
	v, ok := rec[field]
	if !ok {
		return ""
	}
	if s, isStr := v.(string); isStr {
		return s
	}
	return fmt.Sprint(v)
}

func isConfiguredField(field string, cfg Config) bool {
	for _, f := range cfg.RequiredFields {
		if f == field {
			return true
		}
	}
	for _, f := range cfg.VisualFields {
		if f == field {
			return true
		}
	}
	return false
}
