package engine

import (
	"context"
	"time"

	"github.com/openfroyo/hostkit/pkg/host"
)

// CheckFunc is a step precondition. It must not have side effects and must
// only read the snapshot it is given.
type CheckFunc func(st *host.State) CheckStatus

// ApplyFunc establishes a step's desired state on h. It receives a private
// copy of the snapshot and returns it updated with what it changed.
type ApplyFunc func(ctx context.Context, h host.Host, st host.State) (host.State, error)

// Step is one idempotent unit of host configuration.
type Step struct {
	// ID is the unique step identifier.
	ID string `json:"id"`

	// Description is a one-line human-readable summary.
	Description string `json:"description"`

	// DependsOn lists step IDs that must be evaluated before this one.
	DependsOn []string `json:"depends_on,omitempty"`

	// Check reports whether the step's desired state already holds.
	Check CheckFunc `json:"-"`

	// Apply performs the step.
	Apply ApplyFunc `json:"-"`
}

// StepResult is the immutable record of one evaluated step.
type StepResult struct {
	// StepID is the step that produced this result.
	StepID string `json:"step_id" yaml:"step_id"`

	// Description is copied from the step.
	Description string `json:"description" yaml:"description"`

	// Outcome is applied, skipped or failed.
	Outcome Outcome `json:"outcome" yaml:"outcome"`

	// Error is the failure text when Outcome is failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// StartedAt is when the precondition was evaluated.
	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	// Duration covers the precondition and, if run, the apply action.
	Duration time.Duration `json:"duration" yaml:"duration"`

	err error
}

func newStepResult(step Step, outcome Outcome, startedAt time.Time, duration time.Duration, err error) StepResult {
	r := StepResult{
		StepID:      step.ID,
		Description: step.Description,
		Outcome:     outcome,
		StartedAt:   startedAt,
		Duration:    duration,
		err:         err,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Err returns the error that failed the step, if any.
func (r StepResult) Err() error {
	return r.err
}

// PlannedStep is one entry of a dry run.
type PlannedStep struct {
	StepID      string      `json:"step_id" yaml:"step_id"`
	Description string      `json:"description" yaml:"description"`
	Check       CheckStatus `json:"check" yaml:"check"`
	DependsOn   []string    `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Provisional marks a satisfied step with a pending dependency, direct
	// or transitive. Applying the dependency may change its check.
	Provisional bool `json:"provisional,omitempty" yaml:"provisional,omitempty"`
}

// ManualStep is an operator follow-up the engine cannot perform unattended.
type ManualStep struct {
	Title  string `json:"title" yaml:"title"`
	Detail string `json:"detail" yaml:"detail"`
}

// Observer receives run lifecycle callbacks. Implementations must not block
// for long; they run on the executor's goroutine.
type Observer interface {
	RunStarted(ctx context.Context, run *Report) context.Context
	StepStarted(ctx context.Context, step Step) context.Context
	StepFinished(ctx context.Context, result StepResult)
	RunFinished(ctx context.Context, report *Report)
}

// NopObserver implements Observer with no-ops. Embed it to implement a subset.
type NopObserver struct{}

// RunStarted implements Observer.
func (NopObserver) RunStarted(ctx context.Context, _ *Report) context.Context { return ctx }

// StepStarted implements Observer.
func (NopObserver) StepStarted(ctx context.Context, _ Step) context.Context { return ctx }

// StepFinished implements Observer.
func (NopObserver) StepFinished(context.Context, StepResult) {}

// RunFinished implements Observer.
func (NopObserver) RunFinished(context.Context, *Report) {}
