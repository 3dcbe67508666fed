package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mendrake/siteforge/antibot"
	"github.com/mendrake/siteforge/engine"
	"github.com/mendrake/siteforge/evidence"
	"github.com/mendrake/siteforge/fixer"
	"github.com/mendrake/siteforge/recipe"
	"github.com/mendrake/siteforge/trail"
	"github.com/mendrake/siteforge/validate"
)

// Job is one repair target: a recipe, the step array under repair, and
// the evidence gathered when the recipe was authored.
type Job struct {
	Recipe     *recipe.Recipe
	RecipePath string
	StepType   recipe.StepType
	// Input is the search query for autocomplete runs, or the detail
	// URL for url-step runs.
	Input    string
	Evidence *evidence.SearchEvidence
	// Detail selects single-record validation; DeclaredFields lists
	// the output fields the url_steps promise to fill.
	Detail         bool
	DeclaredFields []string
}

// siteID derives the fix-session identifier for a job.
func (j Job) siteID() string {
	if j.Recipe != nil && j.Recipe.ID != "" {
		return j.Recipe.ID
	}
	return "unknown"
}

// Run executes the repair loop until success, a terminal block, a
// missing fix, or budget exhaustion. The recipe file is persisted after
// every applied fix and left in place on termination, valid or not.
func (c *Controller) Run(ctx context.Context, job Job) (*Report, error) {
	log := c.cfg.Logger
	report := &Report{FinalState: StateIdle, SuccessIteration: -1}

	runID := uuid.NewString()
	if c.store != nil {
		c.store.BeginRun(ctx, runID, job.siteID(), string(job.StepType))
		defer func() {
			c.store.FinishRun(ctx, runID, string(report.FinalState), len(report.Attempts))
		}()
	}

	// The fix session is created lazily at the first failing iteration
	// and torn down with the loop, success or not.
	var session fixer.Session
	defer func() {
		if session != nil {
			if err := session.Close(); err != nil {
				log.Warn("repair: closing fix session", "error", err)
			}
		}
	}()

	for iter := 0; iter < c.cfg.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		attempt := Attempt{Iteration: iter, FixAction: fixer.ActionNone}
		report.FinalState = StateRunning
		log.Info("repair: iteration start", "iteration", iter, "step_type", string(job.StepType))

		res, runErr := c.runner.Run(ctx, job.RecipePath, job.StepType, job.Input)

		var outcome validate.Outcome
		var errCtx fixer.ErrorContext

		switch {
		case runErr != nil:
			var failure *engine.Failure
			if !errors.As(runErr, &failure) {
				// Context cancellation or infrastructure trouble is
				// not repairable by patching selectors.
				report.Attempts = append(report.Attempts, attempt)
				return report, fmt.Errorf("repair: engine run: %w", runErr)
			}
			attempt.EngineFailure = failure.Class
			errCtx = fixer.ErrorContext{
				EngineClass: failure.Class,
				EngineTag:   failure.Tag,
				Stdout:      clip(failure.Stdout, 4000),
				Stderr:      clip(failure.Stderr, 4000),
			}

			if failure.Class == engine.ClassAntiBotBlock {
				if cleared := c.tryBypass(ctx, job); !cleared {
					report.Attempts = append(report.Attempts, attempt)
					report.FinalState = StateBlocked
					c.recordAttempt(ctx, runID, attempt)
					log.Warn("repair: anti-bot block is terminal for this target")
					return report, nil
				}
				// Bypass cleared the block; spend the next iteration
				// on a clean run.
				attempt.FixAction = fixer.ActionKind("bypass")
				report.Attempts = append(report.Attempts, attempt)
				c.recordAttempt(ctx, runID, attempt)
				continue
			}

		default:
			report.FinalState = StateValidating
			outcome = c.validateResult(res, job)
			attempt.Outcome = &outcome

			if c.accepted(outcome, res, job) {
				attempt.FixAction = fixer.ActionNone
				report.Attempts = append(report.Attempts, attempt)
				report.FinalState = StateSuccess
				report.SuccessIteration = iter
				report.Records = outcome.Valid
				c.recordAttempt(ctx, runID, attempt)
				log.Info("repair: success", "iteration", iter, "valid", len(outcome.Valid))
				return report, nil
			}
			errCtx = fixer.ErrorContext{
				EngineClass: engine.ClassValidationFailure,
				Issues:      outcome.Issues,
				Warnings:    outcome.Warnings,
			}
		}

		// Debug: re-run each step's locator against the live page so
		// the fix request says which selectors work and which do not.
		report.FinalState = StateDebugging
		attempt.Debug = c.debugSteps(ctx, job)
		errCtx.StepDebug = attempt.Debug

		// Fix: first iteration opens the conversational session; later
		// iterations continue it so prior attempts are not repeated.
		report.FinalState = StateFixing
		if session == nil {
			var err error
			session, err = c.fixer.OpenSession(ctx, job.siteID())
			if err != nil {
				log.Warn("repair: opening fix session failed", "error", err)
			}
		}

		action := c.requestFix(ctx, session, job, errCtx)
		applied, err := c.applyAction(job, action)
		if err != nil {
			log.Warn("repair: applying fix failed", "error", err)
			applied = false
		}
		attempt.FixAction = action.Kind
		if !applied {
			attempt.FixAction = fixer.ActionNone
		}
		report.Attempts = append(report.Attempts, attempt)
		c.recordAttempt(ctx, runID, attempt)

		// An iteration that ends with no fix applied terminates the
		// loop immediately; retrying the same recipe blindly cannot
		// produce a different outcome.
		if !applied {
			report.FinalState = StateExhausted
			log.Warn("repair: no fix available, terminating", "iteration", iter)
			return report, nil
		}

		if err := job.Recipe.Save(job.RecipePath); err != nil {
			log.Warn("repair: persisting recipe failed", "error", err)
		}
	}

	report.FinalState = StateExhausted
	log.Warn("repair: iteration budget exhausted",
		"iterations", c.cfg.MaxIterations, "attempts", len(report.Attempts))
	return report, nil
}

// validateResult applies the matching validator for the job shape.
func (c *Controller) validateResult(res *engine.Result, job Job) validate.Outcome {
	if job.Detail {
		rec := res.Record
		if rec == nil && len(res.Records) > 0 {
			rec = res.Records[0]
		}
		return validate.Detail(rec, job.DeclaredFields, c.cfg.Validation)
	}
	return validate.List(res.Records, c.cfg.Validation)
}

func (c *Controller) accepted(outcome validate.Outcome, res *engine.Result, job Job) bool {
	if job.Detail {
		return len(outcome.Valid) == 1
	}
	return outcome.Accepted(len(res.Records), c.cfg.Validation)
}

// requestFix asks the collaborator for a fix; when the collaborator
// itself fails, the debug phase's suggested selectors are auto-applied
// as patches instead.
func (c *Controller) requestFix(ctx context.Context, session fixer.Session, job Job, errCtx fixer.ErrorContext) fixer.Action {
	log := c.cfg.Logger

	if session != nil {
		fc := fixer.FixContext{
			Recipe:       job.Recipe,
			StepType:     job.StepType,
			ErrorContext: errCtx,
			Evidence:     job.Evidence,
		}
		action, err := session.Fix(ctx, fc)
		if err == nil {
			return action.Normalize()
		}
		log.Warn("repair: fix collaborator failed, falling back to suggestions", "error", err)
	}

	patches := suggestionPatches(errCtx.StepDebug)
	if len(patches) == 0 {
		return fixer.Action{Kind: fixer.ActionNone}
	}
	return fixer.Action{Kind: fixer.ActionPatch, Patches: patches}
}

// suggestionPatches turns failing steps with ranked suggestions into
// locator patches, taking each step's top suggestion.
func suggestionPatches(debug []fixer.StepDebug) []recipe.Patch {
	var out []recipe.Patch
	for _, d := range debug {
		if d.Working || len(d.Suggested) == 0 {
			continue
		}
		out = append(out, recipe.Patch{
			StepIndex: d.StepIndex,
			Field:     "locator",
			NewValue:  d.Suggested[0],
		})
	}
	return out
}

// applyAction mutates the in-memory recipe. Returns false when the
// action carries nothing to apply.
func (c *Controller) applyAction(job Job, action fixer.Action) (bool, error) {
	switch action.Kind {
	case fixer.ActionRewrite:
		job.Recipe.SetSteps(job.StepType, action.Steps)
		return true, nil
	case fixer.ActionPatch:
		if err := job.Recipe.ApplyPatches(job.StepType, action.Patches); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

// tryBypass hands off to the interactive anti-bot flow when a headed
// driver was configured. Returns true when the challenge cleared.
func (c *Controller) tryBypass(ctx context.Context, job Job) bool {
	if c.bypassDrv == nil {
		return false
	}
	target := job.Input
	if job.Evidence != nil && job.Evidence.SearchURL != "" {
		target = job.Evidence.SearchURL
	}
	solved, err := antibot.Bypass(ctx, c.bypassDrv, target, antibot.BypassConfig{Logger: c.cfg.Logger})
	if err != nil {
		c.cfg.Logger.Warn("repair: interactive bypass failed", "error", err)
		return false
	}
	c.cfg.Logger.Info("repair: interactive bypass succeeded", "cookies", len(solved.Cookies))
	return true
}

func (c *Controller) recordAttempt(ctx context.Context, runID string, a Attempt) {
	if c.store == nil {
		return
	}
	rec := trail.Attempt{
		Iteration: a.Iteration,
		FixAction: string(a.FixAction),
	}
	if a.EngineFailure != "" {
		rec.EngineClass = string(a.EngineFailure)
	}
	if a.Outcome != nil {
		rec.IssueCount = len(a.Outcome.Issues)
		rec.WarningCount = len(a.Outcome.Warnings)
	}
	if len(a.Debug) > 0 {
		if detail, err := json.Marshal(a.Debug); err == nil {
			rec.Detail = string(detail)
		}
	}
	c.store.RecordAttempt(ctx, runID, rec)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
