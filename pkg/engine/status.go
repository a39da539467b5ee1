package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of a provisioning run.
type RunStatus string

const (
	// RunStatusNotStarted indicates the run has been created but no step was evaluated.
	RunStatusNotStarted RunStatus = "not_started"

	// RunStatusRunning indicates steps are being evaluated.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted indicates every step was applied or skipped.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusAborted indicates exactly one step failed and no later step ran.
	RunStatusAborted RunStatus = "aborted"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusAborted
}

// CanTransitionTo reports whether the run may move from s to next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusNotStarted:
		return next == RunStatusRunning
	case RunStatusRunning:
		return next == RunStatusCompleted || next == RunStatusAborted
	default:
		return false
	}
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusNotStarted, RunStatusRunning, RunStatusCompleted, RunStatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// Outcome is the result of evaluating one step.
type Outcome string

const (
	// OutcomeApplied indicates the apply action ran and succeeded.
	OutcomeApplied Outcome = "applied"

	// OutcomeSkipped indicates the precondition already held.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed indicates the apply action returned an error.
	OutcomeFailed Outcome = "failed"
)

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeApplied, OutcomeSkipped, OutcomeFailed:
		return nil
	default:
		return fmt.Errorf("invalid step outcome: %s", o)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(o))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*o = Outcome(str)
	return o.Validate()
}

// CheckStatus is the answer of a step precondition.
type CheckStatus string

const (
	// CheckSatisfied means the desired state already holds.
	CheckSatisfied CheckStatus = "satisfied"

	// CheckNeedsApply means the apply action must run.
	CheckNeedsApply CheckStatus = "needs-apply"
)

// Satisfied converts a boolean predicate into a CheckStatus.
func Satisfied(ok bool) CheckStatus {
	if ok {
		return CheckSatisfied
	}
	return CheckNeedsApply
}
