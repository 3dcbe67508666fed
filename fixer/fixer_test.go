package fixer

import (
	"testing"

	"github.com/mendrake/siteforge/recipe"
)

func TestNormalize_MalformedActionsBecomeNone(t *testing.T) {
	// WHAT: Anything the collaborator returns that cannot be applied
	// normalizes to "none" so the loop terminates instead of guessing.
	cases := []Action{
		{Kind: "unknown-kind"},
		{Kind: ""},
		{Kind: ActionRewrite},                           // rewrite without steps
		{Kind: ActionPatch},                             // patch without patches
		{Kind: ActionKind("REWRITE"), Steps: nil},       // case variant, still empty
	}
	for _, a := range cases {
		if got := a.Normalize(); got.Kind != ActionNone {
			t.Errorf("Normalize(%+v).Kind = %s, want none", a, got.Kind)
		}
	}
}

func TestNormalize_CaseInsensitiveKinds(t *testing.T) {
	a := Action{Kind: ActionKind("Patch"), Patches: []recipe.Patch{{StepIndex: 0, Field: "locator", NewValue: "x"}}}
	got := a.Normalize()
	if got.Kind != ActionPatch || len(got.Patches) != 1 {
		t.Errorf("Normalize = %+v", got)
	}

	b := Action{Kind: ActionKind("REWRITE"), Steps: []recipe.Step{{"command": "goto"}}}
	if got := b.Normalize(); got.Kind != ActionRewrite {
		t.Errorf("Normalize = %+v", got)
	}
}

func TestNormalize_DropsMismatchedPayload(t *testing.T) {
	// A rewrite carrying patches keeps only the steps.
	a := Action{
		Kind:    ActionRewrite,
		Steps:   []recipe.Step{{"command": "goto"}},
		Patches: []recipe.Patch{{StepIndex: 0, Field: "x", NewValue: 1}},
	}
	got := a.Normalize()
	if got.Kind != ActionRewrite || len(got.Patches) != 0 {
		t.Errorf("Normalize = %+v", got)
	}
}
