package repair

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/mendrake/siteforge/engine"
	"github.com/mendrake/siteforge/fixer"
	"github.com/mendrake/siteforge/recipe"
	"github.com/mendrake/siteforge/validate"
)

// fakeRunner returns scripted results per call.
type fakeRunner struct {
	calls   int
	results []runOutcome
}

type runOutcome struct {
	res *engine.Result
	err error
}

func (f *fakeRunner) Run(ctx context.Context, recipePath string, stepType recipe.StepType, input string) (*engine.Result, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i].res, f.results[i].err
}

// fakeFixer replays scripted actions and records the contexts it saw.
type fakeFixer struct {
	actions  []fixer.Action
	contexts []fixer.FixContext
	opened   int
	closed   int
	openErr  error
}

func (f *fakeFixer) OpenSession(ctx context.Context, siteID string) (fixer.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeSession{f: f}, nil
}

type fakeSession struct {
	f     *fakeFixer
	calls int
}

func (s *fakeSession) Fix(ctx context.Context, fc fixer.FixContext) (fixer.Action, error) {
	s.f.contexts = append(s.f.contexts, fc)
	i := s.calls
	s.calls++
	if i >= len(s.f.actions) {
		return fixer.Action{Kind: fixer.ActionNone}, nil
	}
	return s.f.actions[i], nil
}

func (s *fakeSession) Close() error {
	s.f.closed++
	return nil
}

func goodRecords(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"title": "Item",
			"url":   "https://example.com/items/1",
			"cover": "https://cdn.example.com/c.jpg",
		}
	}
	return out
}

func badRecords(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"title": "$TITLE", "url": "https://example.com/"}
	}
	return out
}

func testJob(t *testing.T) Job {
	t.Helper()
	rec := &recipe.Recipe{
		ID:            "test-site",
		EngineVersion: 1,
		AutocompleteSteps: []recipe.Step{
			{"command": "goto", "url": "https://example.com/search?q=$QUERY"},
			{"command": "extract", "locator": "#results > :nth-child($i)"},
		},
	}
	path := filepath.Join(t.TempDir(), "test-site.json")
	if err := rec.Save(path); err != nil {
		t.Fatal(err)
	}
	return Job{Recipe: rec, RecipePath: path, StepType: recipe.StepsAutocomplete, Input: "batman"}
}

func newTestController(runner engine.Runner, fx fixer.Fixer) *Controller {
	return NewController(Config{Logger: slog.Default()}, nil, runner, fx)
}

func TestRun_ImmediateSuccess(t *testing.T) {
	runner := &fakeRunner{results: []runOutcome{
		{res: &engine.Result{Records: goodRecords(5)}},
	}}
	fx := &fakeFixer{}
	ctrl := newTestController(runner, fx)

	report, err := ctrl.Run(context.Background(), testJob(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Succeeded() || report.SuccessIteration != 0 {
		t.Errorf("report = %+v, want success at iteration 0", report)
	}
	if len(report.Records) != 5 {
		t.Errorf("records = %d, want 5", len(report.Records))
	}
	// WHY: Success must not open a fix session; budget and collaborator
	// calls are only spent on failures.
	if fx.opened != 0 {
		t.Errorf("fix session opened on clean success")
	}
}

func TestRun_PatchThenSuccess(t *testing.T) {
	runner := &fakeRunner{results: []runOutcome{
		{err: &engine.Failure{Class: engine.ClassSelectorTimeout, Stderr: "waiting for selector"}},
		{res: &engine.Result{Records: goodRecords(4)}},
	}}
	fx := &fakeFixer{actions: []fixer.Action{
		{Kind: fixer.ActionPatch, Patches: []recipe.Patch{
			{StepIndex: 1, Field: "locator", NewValue: "#results > li:nth-of-type($i)"},
		}},
	}}
	ctrl := newTestController(runner, fx)
	job := testJob(t)

	report, err := ctrl.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Succeeded() || report.SuccessIteration != 1 {
		t.Fatalf("report = %+v, want success at iteration 1", report)
	}
	if job.Recipe.AutocompleteSteps[1]["locator"] != "#results > li:nth-of-type($i)" {
		t.Error("patch was not applied to the recipe")
	}
	if fx.closed != 1 {
		t.Errorf("session closed %d times, want 1", fx.closed)
	}

	// The patched recipe must be on disk, not just in memory.
	loaded, err := recipe.Load(job.RecipePath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.AutocompleteSteps[1]["locator"] != "#results > li:nth-of-type($i)" {
		t.Error("patched recipe was not persisted")
	}
}

func TestRun_NoFixTerminatesImmediately(t *testing.T) {
	// WHAT: An iteration ending with no fix applied terminates the loop
	// without burning the remaining budget.
	runner := &fakeRunner{results: []runOutcome{
		{err: &engine.Failure{Class: engine.ClassRecipeSyntaxError}},
	}}
	fx := &fakeFixer{actions: []fixer.Action{{Kind: fixer.ActionNone}}}
	ctrl := newTestController(runner, fx)

	report, err := ctrl.Run(context.Background(), testJob(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.FinalState != StateExhausted {
		t.Errorf("state = %s, want exhausted", report.FinalState)
	}
	if runner.calls != 1 {
		t.Errorf("runner called %d times, want 1", runner.calls)
	}
	if len(report.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(report.Attempts))
	}
}

func TestRun_BudgetExhaustion(t *testing.T) {
	runner := &fakeRunner{results: []runOutcome{
		{err: &engine.Failure{Class: engine.ClassSelectorTimeout}},
	}}
	fx := &fakeFixer{actions: []fixer.Action{
		{Kind: fixer.ActionPatch, Patches: []recipe.Patch{{StepIndex: 1, Field: "locator", NewValue: "a"}}},
		{Kind: fixer.ActionPatch, Patches: []recipe.Patch{{StepIndex: 1, Field: "locator", NewValue: "b"}}},
		{Kind: fixer.ActionPatch, Patches: []recipe.Patch{{StepIndex: 1, Field: "locator", NewValue: "c"}}},
		{Kind: fixer.ActionPatch, Patches: []recipe.Patch{{StepIndex: 1, Field: "locator", NewValue: "d"}}},
		{Kind: fixer.ActionPatch, Patches: []recipe.Patch{{StepIndex: 1, Field: "locator", NewValue: "e"}}},
	}}
	ctrl := newTestController(runner, fx)

	report, err := ctrl.Run(context.Background(), testJob(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.FinalState != StateExhausted {
		t.Errorf("state = %s, want exhausted", report.FinalState)
	}
	if runner.calls != 5 {
		t.Errorf("runner called %d times, want the full budget of 5", runner.calls)
	}
	if len(report.Attempts) != 5 {
		t.Errorf("attempts = %d, want 5", len(report.Attempts))
	}
	// Attempt indexes are strictly increasing.
	for i, a := range report.Attempts {
		if a.Iteration != i {
			t.Errorf("attempt %d has iteration %d", i, a.Iteration)
		}
	}
	if fx.opened != 1 {
		t.Errorf("session opened %d times, want 1 shared across iterations", fx.opened)
	}
}

func TestRun_ValidationFailureFeedsIssuesToFixer(t *testing.T) {
	runner := &fakeRunner{results: []runOutcome{
		{res: &engine.Result{Records: badRecords(5)}},
		{res: &engine.Result{Records: goodRecords(4)}},
	}}
	fx := &fakeFixer{actions: []fixer.Action{
		{Kind: fixer.ActionRewrite, Steps: []recipe.Step{{"command": "extract", "locator": ".fixed"}}},
	}}
	ctrl := newTestController(runner, fx)
	job := testJob(t)

	report, err := ctrl.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("report = %+v", report)
	}
	if len(fx.contexts) != 1 {
		t.Fatalf("fixer saw %d contexts, want 1", len(fx.contexts))
	}
	ec := fx.contexts[0].ErrorContext
	if ec.EngineClass != engine.ClassValidationFailure {
		t.Errorf("engine class = %s, want validation-failure", ec.EngineClass)
	}
	if len(ec.Issues) == 0 {
		t.Error("fix context is missing the validation issues")
	}
	if len(job.Recipe.AutocompleteSteps) != 1 {
		t.Errorf("rewrite did not replace steps: %v", job.Recipe.AutocompleteSteps)
	}
}

func TestRun_AntiBotBlockWithoutBypassIsTerminal(t *testing.T) {
	runner := &fakeRunner{results: []runOutcome{
		{err: &engine.Failure{Class: engine.ClassAntiBotBlock, Tag: "blocked"}},
	}}
	fx := &fakeFixer{}
	ctrl := newTestController(runner, fx)

	report, err := ctrl.Run(context.Background(), testJob(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.FinalState != StateBlocked {
		t.Errorf("state = %s, want blocked", report.FinalState)
	}
	if fx.opened != 0 {
		t.Error("anti-bot block must not consult the fix collaborator")
	}
}

func TestRun_FixerFailureFallsBackToSuggestions(t *testing.T) {
	// WHAT: With no session available and no debug suggestions, the loop
	// terminates instead of retrying blindly.
	runner := &fakeRunner{results: []runOutcome{
		{err: &engine.Failure{Class: engine.ClassSelectorTimeout}},
	}}
	fx := &fakeFixer{openErr: context.DeadlineExceeded}
	ctrl := newTestController(runner, fx)

	report, err := ctrl.Run(context.Background(), testJob(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.FinalState != StateExhausted {
		t.Errorf("state = %s, want exhausted", report.FinalState)
	}
	if runner.calls != 1 {
		t.Errorf("runner called %d times, want 1", runner.calls)
	}
}

func TestRun_ListAcceptanceThresholdGovernsSuccess(t *testing.T) {
	// 2 valid of 10 misses the floor of max(3, floor(0.3*10)); the loop
	// must keep repairing.
	mixed := append(goodRecords(2), badRecords(8)...)
	runner := &fakeRunner{results: []runOutcome{
		{res: &engine.Result{Records: mixed}},
		{res: &engine.Result{Records: goodRecords(3)}},
	}}
	fx := &fakeFixer{actions: []fixer.Action{
		{Kind: fixer.ActionPatch, Patches: []recipe.Patch{{StepIndex: 1, Field: "locator", NewValue: ".r"}}},
	}}
	ctrl := newTestController(runner, fx)

	report, err := ctrl.Run(context.Background(), testJob(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Succeeded() || report.SuccessIteration != 1 {
		t.Errorf("report = %+v, want success at iteration 1", report)
	}
}

func TestSuggestionPatches_TopSuggestionPerFailingStep(t *testing.T) {
	debug := []fixer.StepDebug{
		{StepIndex: 0, Working: true, Suggested: []string{".ignore"}},
		{StepIndex: 1, Working: false, Suggested: []string{".best", ".second"}},
		{StepIndex: 2, Working: false},
	}
	patches := suggestionPatches(debug)
	if len(patches) != 1 {
		t.Fatalf("patches = %v, want exactly one", patches)
	}
	if patches[0].StepIndex != 1 || patches[0].NewValue != ".best" {
		t.Errorf("patch = %+v", patches[0])
	}
}

func TestTitleOverlap(t *testing.T) {
	a := []validate.Record{{"title": "Alpha"}, {"title": "Beta"}, {"title": "Gamma"}}
	same := []validate.Record{{"title": "alpha"}, {"title": "BETA"}, {"title": "Gamma"}}
	if got := TitleOverlap(a, same); got != 1.0 {
		t.Errorf("identical (case-insensitive) sets overlap = %v, want 1.0", got)
	}

	disjoint := []validate.Record{{"title": "Delta"}, {"title": "Epsilon"}}
	if got := TitleOverlap(a, disjoint); got != 0 {
		t.Errorf("disjoint sets overlap = %v, want 0", got)
	}

	partial := []validate.Record{{"title": "Alpha"}, {"title": "Zeta"}}
	if got := TitleOverlap(a, partial); got != 1.0/3.0 {
		t.Errorf("partial overlap = %v, want 1/3 of the first set", got)
	}
}

func TestTitleOverlap_MeasuredAgainstFirstRun(t *testing.T) {
	// WHY: Overlap is the reproduced fraction of the first run's titles.
	// A second run returning a 3-title subset of a 10-title first run is
	// 0.3, not 1.0; dividing by the smaller set would wrongly flag the
	// recipe as static.
	first := make([]validate.Record, 10)
	for i := range first {
		first[i] = validate.Record{"title": fmt.Sprintf("Title %d", i)}
	}
	second := []validate.Record{
		{"title": "Title 0"}, {"title": "Title 1"}, {"title": "Title 2"},
	}
	if got := TitleOverlap(first, second); got != 0.3 {
		t.Errorf("overlap = %v, want 0.3 (3 shared of 10 first-run titles)", got)
	}
}

func TestCrossCheck_StaticResultsDetected(t *testing.T) {
	// WHAT: The same titles for two different queries fails the check.
	static := goodRecords(4)
	runner := &fakeRunner{results: []runOutcome{
		{res: &engine.Result{Records: static}},
	}}
	ctrl := newTestController(runner, &fakeFixer{})
	job := testJob(t)

	first := validate.List(static, validate.Config{}).Valid
	distinct, err := ctrl.CrossCheck(context.Background(), job, first, "superman")
	if err != nil {
		t.Fatalf("CrossCheck: %v", err)
	}
	if distinct {
		t.Error("identical result sets must be flagged as static")
	}
}

func TestCrossCheck_DistinctResultsPass(t *testing.T) {
	second := []map[string]any{
		{"title": "Other", "url": "https://example.com/items/9", "cover": "https://cdn.example.com/o.jpg"},
	}
	runner := &fakeRunner{results: []runOutcome{
		{res: &engine.Result{Records: second}},
	}}
	ctrl := newTestController(runner, &fakeFixer{})
	job := testJob(t)

	first := validate.List(goodRecords(4), validate.Config{}).Valid
	distinct, err := ctrl.CrossCheck(context.Background(), job, first, "superman")
	if err != nil {
		t.Fatalf("CrossCheck: %v", err)
	}
	if !distinct {
		t.Error("distinct result sets must pass the cross-query check")
	}
}
