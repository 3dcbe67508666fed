// Package engine is the boundary to the external step-execution
// collaborator: the process that actually runs an extraction recipe
// against a page or API. The core never interprets step semantics; it
// consumes the resulting JSON and classifies failure signals.
package engine

import (
	"context"
	"fmt"

	"github.com/mendrake/siteforge/recipe"
)

// Result is the collaborator's structured output: a list of records
// for autocomplete-style runs, or a single record for detail runs.
type Result struct {
	Records []map[string]any `json:"results"`
	Record  map[string]any   `json:"result,omitempty"`
}

// FailureClass is the error taxonomy for execution failures.
type FailureClass string

const (
	ClassProcessSpawnFailure   FailureClass = "process-spawn-failure"
	ClassInvalidOutputEncoding FailureClass = "invalid-output-encoding"
	ClassMissingStepDefinition FailureClass = "missing-step-definition"
	ClassSelectorTimeout       FailureClass = "selector-timeout"
	ClassNetworkFailure        FailureClass = "network-failure"
	ClassAntiBotBlock          FailureClass = "anti-bot-block"
	ClassRecipeSyntaxError     FailureClass = "recipe-syntax-error"
	ClassEmptyResultSet        FailureClass = "empty-result-set"
	ClassValidationFailure     FailureClass = "validation-failure"
	ClassUnknown               FailureClass = "unknown"
)

// Failure is the collaborator's failure signal. It satisfies error so
// Run call sites can use errors.As to recover the classification.
type Failure struct {
	Class  FailureClass
	Tag    string // explicit error type tag from the collaborator, if any
	Stdout string
	Stderr string
}

func (f *Failure) Error() string {
	if f.Tag != "" {
		return fmt.Sprintf("engine: run failed (%s, tag %q)", f.Class, f.Tag)
	}
	return fmt.Sprintf("engine: run failed (%s)", f.Class)
}

// Runner executes one recipe's step array against the live site.
type Runner interface {
	// Run executes the recipe at path with the given step type and
	// input (the search query, or a detail URL). A non-nil error is
	// either a *Failure or a context/infrastructure error.
	Run(ctx context.Context, recipePath string, stepType recipe.StepType, input string) (*Result, error)
}
