package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/hostkit/pkg/config"
	"github.com/openfroyo/hostkit/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are logged but never block a run.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the run.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity stop a run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
//
// A policy module may define a `deny` set, a `warn` set or both. Entries
// are either strings or objects with "message", "key", "severity" and
// "remediation" fields.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy finding.
type Violation struct {
	// Policy is the name of the policy that produced the finding.
	Policy string `json:"policy"`

	// Key is the configuration key concerned, e.g. "database.password".
	Key string `json:"key,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Remediation provides a suggested fix.
	Remediation string `json:"remediation,omitempty"`
}

func (v Violation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", v.Policy, v.Message)
	if v.Remediation != "" {
		fmt.Fprintf(&b, " (%s)", v.Remediation)
	}
	return b.String()
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists blocking findings from `deny` rules.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists findings that don't block the run.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Err returns a validation EngineError listing the blocking violations,
// or nil when the configuration is allowed.
func (r *Result) Err() error {
	if r.Allowed {
		return nil
	}
	msgs := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		msgs = append(msgs, v.String())
	}
	err := engine.NewValidationError("configuration denied by policy: "+strings.Join(msgs, "; "), nil).
		WithCode(engine.ErrCodePolicyDenied).
		WithOperation("policy")
	if len(r.Violations) > 0 {
		err = err.WithDetail("policy", r.Violations[0].Policy)
	}
	return err
}

// Input is the document policies see as `input`.
type Input struct {
	// Config is the complete provisioning configuration.
	Config *config.ProvisioningConfig `json:"config"`

	// Context describes the invocation.
	Context Context `json:"context"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Operation is the command being run, e.g. "apply" or "plan".
	Operation string `json:"operation,omitempty"`

	// Target is the host being provisioned.
	Target string `json:"target,omitempty"`

	// DryRun indicates that nothing will be changed.
	DryRun bool `json:"dry_run"`
}
