// Package recipe models the extraction recipe document the pipeline
// authors and repairs. Step semantics are opaque to this module: steps
// are executed by an external engine, and the repair loop only patches
// fields inside them.
package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrStepIndex is returned when a patch addresses a step that does not
// exist.
var ErrStepIndex = errors.New("recipe: patch step index out of range")

// StepType selects which step array an operation targets.
type StepType string

const (
	StepsAutocomplete StepType = "autocomplete"
	StepsURL          StepType = "url"
)

// Step is one opaque extraction instruction. The core reads and writes
// fields by name but never interprets them.
type Step map[string]any

// Recipe is the persisted extraction definition for one site.
type Recipe struct {
	ID            string            `json:"id"`
	Category      string            `json:"category"`
	EngineVersion int               `json:"engine_version"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	BaseURLs      []string          `json:"base_urls"`
	Headers       map[string]string `json:"headers,omitempty"`

	// Either step array may be null until authored.
	AutocompleteSteps []Step `json:"autocomplete_steps"`
	URLSteps          []Step `json:"url_steps"`
}

// Steps returns the step array for a type.
func (r *Recipe) Steps(t StepType) []Step {
	if t == StepsURL {
		return r.URLSteps
	}
	return r.AutocompleteSteps
}

// SetSteps replaces the step array for a type (a "rewrite" fix action).
func (r *Recipe) SetSteps(t StepType, steps []Step) {
	if t == StepsURL {
		r.URLSteps = steps
		return
	}
	r.AutocompleteSteps = steps
}

// Patch is one field-level fix: set Field of step StepIndex to NewValue.
type Patch struct {
	StepIndex int    `json:"step_index"`
	Field     string `json:"field"`
	NewValue  any    `json:"new_value"`
}

// ApplyPatches mutates the recipe's step array in place. Patches apply
// all-or-nothing: the first out-of-range index aborts before anything
// is modified.
func (r *Recipe) ApplyPatches(t StepType, patches []Patch) error {
	steps := r.Steps(t)
	for _, p := range patches {
		if p.StepIndex < 0 || p.StepIndex >= len(steps) {
			return fmt.Errorf("%w: %d (have %d steps)", ErrStepIndex, p.StepIndex, len(steps))
		}
	}
	for _, p := range patches {
		if steps[p.StepIndex] == nil {
			steps[p.StepIndex] = Step{}
		}
		steps[p.StepIndex][p.Field] = p.NewValue
	}
	return nil
}

// Load reads a recipe document from disk.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recipe: read %s: %w", path, err)
	}
	var r Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("recipe: parse %s: %w", path, err)
	}
	return &r, nil
}

// Save writes the recipe atomically (temp file + rename) so a crash
// mid-write never corrupts the artifact left for manual inspection.
func (r *Recipe) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("recipe: marshal: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".recipe-*.json")
	if err != nil {
		return fmt.Errorf("recipe: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("recipe: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("recipe: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("recipe: rename: %w", err)
	}
	return nil
}
