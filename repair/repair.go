// Package repair orchestrates the bounded run → validate → debug → fix
// → retry loop that turns a freshly authored extraction recipe into a
// working one. The loop is hard-bounded; exhaustion is a terminal,
// reported state carrying the full diagnostic trail, never a silent
// partial success.
package repair

import (
	"log/slog"
	"time"

	"github.com/mendrake/siteforge/browser"
	"github.com/mendrake/siteforge/engine"
	"github.com/mendrake/siteforge/fixer"
	"github.com/mendrake/siteforge/trail"
	"github.com/mendrake/siteforge/validate"
)

// State names the controller's position in the loop.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateValidating State = "validating"
	StateDebugging  State = "debugging"
	StateFixing     State = "fixing"
	StateSuccess    State = "success"
	StateExhausted  State = "exhausted"
	// StateBlocked is terminal for the current target: an anti-bot
	// block that the interactive bypass did not (or could not) clear.
	StateBlocked State = "blocked"
)

// Attempt records one repair iteration. The sequence of attempts in a
// report is strictly increasing by Iteration.
type Attempt struct {
	Iteration     int                 `json:"iteration"`
	EngineFailure engine.FailureClass `json:"engine_failure,omitempty"`
	Outcome       *validate.Outcome   `json:"outcome,omitempty"`
	Debug         []fixer.StepDebug   `json:"debug,omitempty"`
	FixAction     fixer.ActionKind    `json:"fix_action"`
}

// Report is the loop's terminal result. Whatever recipe artifacts exist
// at termination are left on disk for inspection, valid or not.
type Report struct {
	FinalState State     `json:"final_state"`
	Attempts   []Attempt `json:"attempts"`
	// SuccessIteration is the 0-based iteration at which validation
	// passed; -1 otherwise.
	SuccessIteration int `json:"success_iteration"`
	// Records holds the validated output on success.
	Records []validate.Record `json:"records,omitempty"`
}

// Succeeded reports terminal success.
func (r *Report) Succeeded() bool { return r.FinalState == StateSuccess }

// Config bounds the loop. The iteration budget and thresholds are
// configuration defaults with no derivation beyond observed behavior;
// they do not necessarily generalize across site categories.
type Config struct {
	// MaxIterations hard-bounds the loop. Default: 5.
	MaxIterations int
	// OverlapThreshold for the cross-query static-content check.
	// Default: 0.7.
	OverlapThreshold float64
	// Validation carries the validator thresholds.
	Validation validate.Config
	// DebugTimeout bounds the per-step live diagnosis phase. Default: 45s.
	DebugTimeout time.Duration
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 5
	}
	if c.OverlapThreshold <= 0 {
		c.OverlapThreshold = 0.7
	}
	if c.DebugTimeout <= 0 {
		c.DebugTimeout = 45 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller drives the repair loop for one target site. It is
// single-flow: one controller, one site, no concurrent iterations.
type Controller struct {
	cfg    Config
	drv    browser.Driver
	runner engine.Runner
	fixer  fixer.Fixer
	store  *trail.Store // optional

	// bypassDrv, when set, is a headed driver used for the interactive
	// anti-bot bypass handoff.
	bypassDrv browser.Driver
}

// Option configures optional controller collaborators.
type Option func(*Controller)

// WithTrailStore persists the attempt trail.
func WithTrailStore(s *trail.Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithBypassDriver enables the interactive anti-bot bypass handoff.
func WithBypassDriver(d browser.Driver) Option {
	return func(c *Controller) { c.bypassDrv = d }
}

// NewController wires the loop's collaborators.
func NewController(cfg Config, drv browser.Driver, runner engine.Runner, fx fixer.Fixer, opts ...Option) *Controller {
	cfg.defaults()
	c := &Controller{cfg: cfg, drv: drv, runner: runner, fixer: fx}
	for _, o := range opts {
		o(c)
	}
	return c
}
