package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostkit/pkg/host"
)

// Executor runs steps against a host, one at a time.
type Executor struct {
	logger    zerolog.Logger
	observers []Observer
	manual    []ManualStep
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithObservers registers lifecycle observers, called in order.
func WithObservers(observers ...Observer) Option {
	return func(e *Executor) {
		e.observers = append(e.observers, observers...)
	}
}

// WithManualSteps sets the follow-ups attached to a completed run.
// An empty list falls back to DefaultManualSteps.
func WithManualSteps(steps []ManualStep) Option {
	return func(e *Executor) {
		e.manual = append([]ManualStep(nil), steps...)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an Executor.
func NewExecutor(logger zerolog.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger: logger.With().Str("component", "executor").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.manual) == 0 {
		e.manual = DefaultManualSteps()
	}
	return e
}

// Run evaluates steps in dependency order against h, starting from the
// snapshot initial. A step whose precondition holds is skipped; otherwise
// it is applied and the snapshot it returns becomes the current one. The
// first failed step aborts the run and nothing after it is evaluated.
//
// Run returns an error only when the run cannot start: an invalid step
// graph yields a validation error and no Report. An aborted run is
// reported through Report.Status and Report.Err.
func (e *Executor) Run(ctx context.Context, steps []Step, h host.Host, initial host.State) (*Report, error) {
	ordered, err := NewDAGBuilder().Order(steps)
	if err != nil {
		return nil, err
	}

	report := newReport(h.Name(), e.now())
	if err := report.transition(RunStatusRunning); err != nil {
		return nil, err
	}

	logger := e.logger.With().Str("run_id", report.RunID).Str("host", report.Host).Logger()
	logger.Info().Int("steps", len(ordered)).Msg("Starting provisioning run")

	for _, o := range e.observers {
		ctx = o.RunStarted(ctx, report)
	}

	current := initial.Clone()
	for _, step := range ordered {
		stepCtx := ctx
		for _, o := range e.observers {
			stepCtx = o.StepStarted(stepCtx, step)
		}

		var result StepResult
		current, result = e.evaluate(stepCtx, step, h, current)
		report.record(result)

		for _, o := range e.observers {
			o.StepFinished(stepCtx, result)
		}

		ev := logger.Info()
		if result.Outcome == OutcomeFailed {
			ev = logger.Error().Err(result.Err())
		}
		ev.Str("step", step.ID).
			Str("outcome", string(result.Outcome)).
			Dur("duration", result.Duration).
			Msg("Step finished")

		if result.Outcome == OutcomeFailed {
			if err := report.abort(result); err != nil {
				return nil, err
			}
			break
		}
	}

	if report.Status == RunStatusRunning {
		if err := report.transition(RunStatusCompleted); err != nil {
			return nil, err
		}
		report.ManualSteps = append([]ManualStep(nil), e.manual...)
	}
	report.FinishedAt = e.now()
	report.FinalState = current

	logger.Info().
		Str("status", string(report.Status)).
		Int("applied", report.Applied).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Dur("duration", report.Duration()).
		Msg("Provisioning run finished")

	for _, o := range e.observers {
		o.RunFinished(ctx, report)
	}

	return report, nil
}

// evaluate checks and, if needed, applies one step. It returns the snapshot
// to carry forward, which is unchanged unless the step was applied.
func (e *Executor) evaluate(ctx context.Context, step Step, h host.Host, current host.State) (host.State, StepResult) {
	started := e.now()
	elapsed := func() time.Duration { return e.now().Sub(started) }

	// Cancellation is honoured between steps only.
	if err := ctx.Err(); err != nil {
		cause := NewApplyError(step.ID, err).WithCode(ErrCodeInterrupted)
		return current, newStepResult(step, OutcomeFailed, started, elapsed(), cause)
	}

	if step.Check(&current) == CheckSatisfied {
		return current, newStepResult(step, OutcomeSkipped, started, elapsed(), nil)
	}

	e.logger.Debug().Str("step", step.ID).Msg("Precondition not satisfied, applying")

	next, err := e.apply(context.WithoutCancel(ctx), step, h, current.Clone())
	if err != nil {
		return current, newStepResult(step, OutcomeFailed, started, elapsed(), wrapApplyError(step.ID, err))
	}
	return next, newStepResult(step, OutcomeApplied, started, elapsed(), nil)
}

func (e *Executor) apply(ctx context.Context, step Step, h host.Host, st host.State) (next host.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewInternalError(fmt.Sprintf("step panicked: %v", r), nil).WithStep(step.ID)
		}
	}()
	return step.Apply(ctx, h, st)
}

func wrapApplyError(stepID string, err error) *EngineError {
	if e, ok := asEngineError(err); ok && e.Step == stepID {
		return e
	}
	ee := NewApplyError(stepID, err)
	var cmdErr *host.CommandError
	if errors.As(err, &cmdErr) {
		ee.WithCode(ErrCodeCommandFailed).
			WithDetail("command", cmdErr.Command).
			WithDetail("exit_code", cmdErr.ExitCode)
	}
	return ee
}

// Plan evaluates every precondition against st without applying anything.
// Steps further down the graph see st as it is now, not as earlier steps
// would leave it, so a satisfied step downstream of a pending one is
// marked Provisional.
func (e *Executor) Plan(steps []Step, st host.State) ([]PlannedStep, error) {
	ordered, err := NewDAGBuilder().Order(steps)
	if err != nil {
		return nil, err
	}

	snapshot := st.Clone()
	planned := make([]PlannedStep, 0, len(ordered))
	// unsettled holds steps that are pending or downstream of one.
	unsettled := make(map[string]bool, len(ordered))
	for _, step := range ordered {
		p := PlannedStep{
			StepID:      step.ID,
			Description: step.Description,
			Check:       step.Check(&snapshot),
			DependsOn:   step.DependsOn,
		}
		for _, dep := range step.DependsOn {
			if unsettled[dep] {
				unsettled[step.ID] = true
			}
		}
		if p.Check == CheckNeedsApply {
			unsettled[step.ID] = true
		} else {
			p.Provisional = unsettled[step.ID]
		}
		planned = append(planned, p)
	}
	return planned, nil
}

// Graph validates steps and returns their DOT representation.
func Graph(steps []Step) (string, error) {
	b := NewDAGBuilder()
	if _, err := b.Order(steps); err != nil {
		return "", err
	}
	return b.ToDOT(), nil
}
