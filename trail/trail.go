// Package trail persists the repair loop's diagnostic trail to SQLite:
// one row per run, one per attempt. Writes are best-effort (a failing
// trail store never blocks the pipeline) and the rows stay in place
// after exhaustion so a failed run can be inspected attempt by attempt.
package trail

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mendrake/siteforge/dbopen"
)

// Schema for the trail tables.
const Schema = `
CREATE TABLE IF NOT EXISTS repair_runs (
	run_id      TEXT PRIMARY KEY,
	site        TEXT NOT NULL,
	step_type   TEXT NOT NULL,
	outcome     TEXT NOT NULL DEFAULT 'running',
	iterations  INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER
);
CREATE TABLE IF NOT EXISTS repair_attempts (
	run_id        TEXT NOT NULL,
	iteration     INTEGER NOT NULL,
	engine_class  TEXT,
	issue_count   INTEGER NOT NULL DEFAULT 0,
	warning_count INTEGER NOT NULL DEFAULT 0,
	fix_action    TEXT NOT NULL DEFAULT 'none',
	detail        TEXT,
	created_at    INTEGER NOT NULL,
	PRIMARY KEY (run_id, iteration)
);
CREATE INDEX IF NOT EXISTS idx_repair_attempts_run ON repair_attempts(run_id);
`

// Attempt is the persisted summary of one repair iteration.
type Attempt struct {
	Iteration    int
	EngineClass  string
	IssueCount   int
	WarningCount int
	FixAction    string
	Detail       string // optional JSON
}

// Store writes the attempt trail.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) a trail database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, err
	}
	return NewStore(db, log), nil
}

// NewStore wraps an existing database connection. The schema must
// already be applied (dbopen.WithSchema(trail.Schema)).
func NewStore(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun records the start of a repair run.
func (s *Store) BeginRun(ctx context.Context, runID, site, stepType string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repair_runs (run_id, site, step_type, started_at)
		VALUES (?,?,?,?)`,
		runID, site, stepType, time.Now().Unix())
	if err != nil {
		s.log.Warn("trail: begin run failed", "run_id", runID, "error", err)
	}
}

// RecordAttempt records one iteration's summary.
func (s *Store) RecordAttempt(ctx context.Context, runID string, a Attempt) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO repair_attempts
			(run_id, iteration, engine_class, issue_count, warning_count, fix_action, detail, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		runID, a.Iteration, a.EngineClass, a.IssueCount, a.WarningCount,
		a.FixAction, a.Detail, time.Now().Unix())
	if err != nil {
		s.log.Warn("trail: record attempt failed",
			"run_id", runID, "iteration", a.Iteration, "error", err)
	}
}

// FinishRun closes out a run with its terminal outcome.
func (s *Store) FinishRun(ctx context.Context, runID, outcome string, iterations int) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE repair_runs
		SET outcome = ?, iterations = ?, finished_at = ?
		WHERE run_id = ?`,
		outcome, iterations, time.Now().Unix(), runID)
	if err != nil {
		s.log.Warn("trail: finish run failed", "run_id", runID, "error", err)
	}
}

// RunAttempts returns the recorded attempts for one run, oldest first.
func (s *Store) RunAttempts(ctx context.Context, runID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT iteration, engine_class, issue_count, warning_count, fix_action, COALESCE(detail, '')
		FROM repair_attempts WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.Iteration, &a.EngineClass, &a.IssueCount,
			&a.WarningCount, &a.FixAction, &a.Detail); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
