package stores

import (
	"time"

	"github.com/openfroyo/hostkit/pkg/engine"
)

// Run is one journaled provisioning run.
type Run struct {
	ID     string           `json:"id" yaml:"id"`
	Host   string           `json:"host" yaml:"host"`
	Target string           `json:"target,omitempty" yaml:"target,omitempty"`
	Status engine.RunStatus `json:"status" yaml:"status"`

	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`

	Total   int `json:"total" yaml:"total"`
	Applied int `json:"applied" yaml:"applied"`
	Skipped int `json:"skipped" yaml:"skipped"`
	Failed  int `json:"failed" yaml:"failed"`

	// FailedStep and Error are set for aborted runs.
	FailedStep *string `json:"failed_step,omitempty" yaml:"failed_step,omitempty"`
	Error      *string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StepRecord is one step result of a journaled run.
type StepRecord struct {
	RunID     string         `json:"run_id" yaml:"run_id"`
	Seq       int            `json:"seq" yaml:"seq"`
	StepID    string         `json:"step_id" yaml:"step_id"`
	Outcome   engine.Outcome `json:"outcome" yaml:"outcome"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	Duration  time.Duration  `json:"duration" yaml:"duration"`
	Error     *string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunFromReport converts an engine report into a journal row.
func RunFromReport(report *engine.Report, target string) *Run {
	run := &Run{
		ID:        report.RunID,
		Host:      report.Host,
		Target:    target,
		Status:    report.Status,
		StartedAt: report.StartedAt,
		Total:     report.Total,
		Applied:   report.Applied,
		Skipped:   report.Skipped,
		Failed:    report.Failed,
	}
	if !report.FinishedAt.IsZero() {
		finished := report.FinishedAt
		run.FinishedAt = &finished
	}
	if report.Failure != nil {
		step, msg := report.Failure.StepID, report.Failure.Message
		run.FailedStep = &step
		run.Error = &msg
	}
	return run
}

// StepRecordFromResult converts a step result into a journal row.
func StepRecordFromResult(runID string, seq int, result engine.StepResult) *StepRecord {
	rec := &StepRecord{
		RunID:     runID,
		Seq:       seq,
		StepID:    result.StepID,
		Outcome:   result.Outcome,
		StartedAt: result.StartedAt,
		Duration:  result.Duration,
	}
	if result.Error != "" {
		msg := result.Error
		rec.Error = &msg
	}
	return rec
}
