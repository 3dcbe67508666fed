// Package fixer defines the contract with the external step-authoring
// and fix-generating collaborators. The fix collaborator is
// conversational: one Session spans all iterations of a repair loop so
// earlier attempts are not repeated blindly. Sessions are single-owner
// state, created at iteration 0 and torn down when the loop ends.
package fixer

import (
	"context"
	"strings"

	"github.com/mendrake/siteforge/engine"
	"github.com/mendrake/siteforge/evidence"
	"github.com/mendrake/siteforge/recipe"
	"github.com/mendrake/siteforge/validate"
)

// ActionKind is what the fix collaborator decided to do.
type ActionKind string

const (
	// ActionRewrite replaces the whole step sequence.
	ActionRewrite ActionKind = "rewrite"
	// ActionPatch applies field-level patches to existing steps.
	ActionPatch ActionKind = "patch"
	// ActionNone means no fix is available. Unrecognized or empty
	// collaborator responses normalize to this.
	ActionNone ActionKind = "none"
)

// Action is the collaborator's response to a fix request.
type Action struct {
	Kind    ActionKind     `json:"action"`
	Steps   []recipe.Step  `json:"steps,omitempty"`
	Patches []recipe.Patch `json:"patches,omitempty"`
}

// Normalize maps malformed responses onto ActionNone: an unknown kind,
// a rewrite without steps, or a patch without patches all mean the
// collaborator had nothing usable to offer.
func (a Action) Normalize() Action {
	switch ActionKind(strings.ToLower(string(a.Kind))) {
	case ActionRewrite:
		if len(a.Steps) == 0 {
			return Action{Kind: ActionNone}
		}
		return Action{Kind: ActionRewrite, Steps: a.Steps}
	case ActionPatch:
		if len(a.Patches) == 0 {
			return Action{Kind: ActionNone}
		}
		return Action{Kind: ActionPatch, Patches: a.Patches}
	default:
		return Action{Kind: ActionNone}
	}
}

// StepDebug is the live-page diagnosis of one extraction step,
// produced by the repair loop's debug phase.
type StepDebug struct {
	StepIndex  int      `json:"step_index"`
	Locator    string   `json:"locator,omitempty"`
	Working    bool     `json:"working"`
	MatchCount int      `json:"match_count"`
	Suggested  []string `json:"suggested,omitempty"`
}

// ErrorContext is the structured failure report handed to the fix
// collaborator each iteration.
type ErrorContext struct {
	EngineClass engine.FailureClass `json:"engine_class,omitempty"`
	EngineTag   string              `json:"engine_tag,omitempty"`
	Stdout      string              `json:"stdout,omitempty"`
	Stderr      string              `json:"stderr,omitempty"`
	Issues      []validate.Issue    `json:"issues,omitempty"`
	Warnings    []validate.Issue    `json:"warnings,omitempty"`
	StepDebug   []StepDebug         `json:"step_debug,omitempty"`
}

// FixContext is the full fix-request payload.
type FixContext struct {
	Recipe       *recipe.Recipe           `json:"recipe"`
	StepType     recipe.StepType          `json:"step_type"`
	ErrorContext ErrorContext             `json:"error_context"`
	Evidence     *evidence.SearchEvidence `json:"evidence,omitempty"`
}

// AuthorContext is the evidence bundle for initial step authoring.
type AuthorContext struct {
	Site   *evidence.SiteEvidence   `json:"site,omitempty"`
	Search *evidence.SearchEvidence `json:"search,omitempty"`
	Detail *evidence.DetailEvidence `json:"detail,omitempty"`
}

// Author writes the initial step sequence from evidence.
type Author interface {
	Author(ctx context.Context, stepType recipe.StepType, ac AuthorContext) ([]recipe.Step, error)
}

// Fixer opens fix sessions. One session per repair loop; sessions must
// not be shared across loops for different sites.
type Fixer interface {
	OpenSession(ctx context.Context, siteID string) (Session, error)
}

// Session is one conversational fix exchange. Close releases
// collaborator-side resources and must be called on loop exit, success
// or not.
type Session interface {
	Fix(ctx context.Context, fc FixContext) (Action, error)
	Close() error
}
