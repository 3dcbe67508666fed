package trail

import (
	"context"
	"testing"

	"github.com/mendrake/siteforge/dbopen"
)

func memStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db, nil)
}

func TestStore_RunLifecycle(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	s.BeginRun(ctx, "run-1", "example-site", "autocomplete")
	s.RecordAttempt(ctx, "run-1", Attempt{Iteration: 0, EngineClass: "selector-timeout", FixAction: "patch"})
	s.RecordAttempt(ctx, "run-1", Attempt{Iteration: 1, IssueCount: 4, WarningCount: 1, FixAction: "rewrite", Detail: `[{"step_index":1}]`})
	s.RecordAttempt(ctx, "run-1", Attempt{Iteration: 2, FixAction: "none"})
	s.FinishRun(ctx, "run-1", "success", 3)

	attempts, err := s.RunAttempts(ctx, "run-1")
	if err != nil {
		t.Fatalf("RunAttempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(attempts))
	}
	for i, a := range attempts {
		if a.Iteration != i {
			t.Errorf("attempt %d has iteration %d, want ascending order", i, a.Iteration)
		}
	}
	if attempts[0].EngineClass != "selector-timeout" {
		t.Errorf("engine class = %q", attempts[0].EngineClass)
	}
	if attempts[1].IssueCount != 4 || attempts[1].Detail == "" {
		t.Errorf("attempt 1 lost fields: %+v", attempts[1])
	}
}

func TestStore_RecordAttemptIsIdempotentPerIteration(t *testing.T) {
	// WHAT: Re-recording an iteration replaces the row instead of
	// duplicating it, so a retried write cannot corrupt the trail.
	s := memStore(t)
	ctx := context.Background()

	s.BeginRun(ctx, "run-2", "example-site", "url")
	s.RecordAttempt(ctx, "run-2", Attempt{Iteration: 0, FixAction: "patch"})
	s.RecordAttempt(ctx, "run-2", Attempt{Iteration: 0, FixAction: "rewrite"})

	attempts, err := s.RunAttempts(ctx, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}
	if attempts[0].FixAction != "rewrite" {
		t.Errorf("fix action = %q, want the replacing write", attempts[0].FixAction)
	}
}

func TestStore_WritesNeverFailTheCaller(t *testing.T) {
	// WHY: Trail persistence is best-effort; a closed database must not
	// panic or propagate an error into the repair loop.
	s := memStore(t)
	ctx := context.Background()
	s.db.Close()

	s.BeginRun(ctx, "run-3", "example-site", "autocomplete")
	s.RecordAttempt(ctx, "run-3", Attempt{Iteration: 0})
	s.FinishRun(ctx, "run-3", "exhausted", 1)
}
