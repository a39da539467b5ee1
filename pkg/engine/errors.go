package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for run control.
type ErrorClass string

const (
	// ErrorClassValidation indicates a configuration or step graph problem.
	// It is always raised before any step runs.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassApply indicates that a step's apply action failed.
	// The run halts immediately.
	ErrorClassApply ErrorClass = "apply"

	// ErrorClassHost indicates a transport or discovery failure on the target host.
	ErrorClassHost ErrorClass = "host"

	// ErrorClassInternal indicates a bug in the engine itself.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Step is the step ID that caused the error, if applicable.
	Step string `json:"step,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Step != "" && e.Operation != "":
		msg += fmt.Sprintf(" (step=%s, operation=%s)", e.Step, e.Operation)
	case e.Step != "":
		msg += fmt.Sprintf(" (step=%s)", e.Step)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassValidation,
		Message: message,
		Code:    ErrCodeValidation,
		Err:     err,
	}
}

// NewApplyError creates a new apply error for the given step.
func NewApplyError(stepID string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassApply,
		Message: "step failed",
		Code:    ErrCodeApplyFailed,
		Step:    stepID,
		Err:     err,
	}
}

// NewHostError creates a new host error.
func NewHostError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassHost,
		Message: message,
		Code:    ErrCodeHostUnreachable,
		Err:     err,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInternal,
		Message: message,
		Code:    ErrCodeInternal,
		Err:     err,
	}
}

// WithStep adds step context to an error.
func (e *EngineError) WithStep(stepID string) *EngineError {
	e.Step = stepID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode sets the error code.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func asEngineError(err error) (*EngineError, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func classOf(err error) (ErrorClass, bool) {
	if e, ok := asEngineError(err); ok {
		return e.Class, true
	}
	return "", false
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassValidation
}

// IsApply returns true if the error is classified as an apply failure.
func IsApply(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassApply
}

// IsHost returns true if the error is classified as a host error.
func IsHost(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassHost
}

// FailedStep returns the step ID carried by err, if any.
func FailedStep(err error) string {
	if e, ok := asEngineError(err); ok {
		return e.Step
	}
	return ""
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeDuplicateStep   = "DUPLICATE_STEP"
	ErrCodeUnknownStep     = "UNKNOWN_DEPENDENCY"
	ErrCodeCycle           = "DEPENDENCY_CYCLE"
	ErrCodePolicyDenied    = "POLICY_DENIED"
	ErrCodeApplyFailed     = "APPLY_FAILED"
	ErrCodeCommandFailed   = "COMMAND_FAILED"
	ErrCodeInterrupted     = "INTERRUPTED"
	ErrCodeHostUnreachable = "HOST_UNREACHABLE"
	ErrCodeDiscovery       = "DISCOVERY_FAILED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)
