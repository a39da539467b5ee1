package telemetry

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/hostkit/pkg/engine"
)

// Observer reports executor callbacks as log lines, spans and metrics.
// Any of its components may be nil.
type Observer struct {
	logger  *Logger
	tracer  *Tracer
	metrics *Metrics
}

var _ engine.Observer = (*Observer)(nil)

// NewObserver creates an Observer.
func NewObserver(logger *Logger, tracer *Tracer, metrics *Metrics) *Observer {
	if logger == nil {
		logger = Wrap(zerolog.Nop())
	}
	return &Observer{
		logger:  logger.NewComponentLogger("telemetry"),
		tracer:  tracer,
		metrics: metrics,
	}
}

// RunStarted opens the run span.
func (o *Observer) RunStarted(ctx context.Context, run *engine.Report) context.Context {
	if o.tracer != nil {
		ctx, _ = o.tracer.StartRunSpan(ctx, run.RunID, run.Host)
	}
	o.logger.WithRunID(run.RunID).WithField("trace_id", TraceID(ctx)).Debug("Run observed")
	return ctx
}

// StepStarted opens a step span under the run span.
func (o *Observer) StepStarted(ctx context.Context, step engine.Step) context.Context {
	if o.tracer != nil {
		ctx, _ = o.tracer.StartStepSpan(ctx, step.ID)
	}
	return ctx
}

// StepFinished closes the step span and counts the outcome.
func (o *Observer) StepFinished(ctx context.Context, result engine.StepResult) {
	if o.metrics != nil {
		o.metrics.RecordStep(result.StepID, string(result.Outcome), result.Duration)
	}
	if o.tracer == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(AttrStepOutcome.String(string(result.Outcome)))
	if err := result.Err(); err != nil {
		var ee *engine.EngineError
		if errors.As(err, &ee) {
			span.SetAttributes(AttrErrorClass.String(string(ee.Class)), AttrErrorCode.String(ee.Code))
		}
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}

// RunFinished closes the run span and records the run.
func (o *Observer) RunFinished(ctx context.Context, report *engine.Report) {
	if o.metrics != nil {
		o.metrics.RecordRun(string(report.Status), report.Duration(), report.FinishedAt, report.Succeeded())
		if err := o.metrics.WriteTextfile(""); err != nil {
			o.logger.WithRunID(report.RunID).WithError(err).Warn("Failed to write metrics textfile")
		}
	}
	if o.tracer == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(AttrRunStatus.String(string(report.Status)))
	if err := report.Err(); err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}
