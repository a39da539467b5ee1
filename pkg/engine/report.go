package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/hostkit/pkg/host"
)

// Report summarises one provisioning run.
type Report struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id" yaml:"run_id"`

	// Host is the name of the provisioned host.
	Host string `json:"host" yaml:"host"`

	// Status is the run's terminal status once Run returns.
	Status RunStatus `json:"status" yaml:"status"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`

	// Results holds one entry per evaluated step, in execution order.
	Results []StepResult `json:"results" yaml:"results"`

	Total   int `json:"total" yaml:"total"`
	Applied int `json:"applied" yaml:"applied"`
	Skipped int `json:"skipped" yaml:"skipped"`
	Failed  int `json:"failed" yaml:"failed"`

	// Failure describes the step that aborted the run.
	Failure *Failure `json:"failure,omitempty" yaml:"failure,omitempty"`

	// ManualSteps lists operator follow-ups. Never empty on a completed run.
	ManualSteps []ManualStep `json:"manual_steps,omitempty" yaml:"manual_steps,omitempty"`

	// FinalState is the host snapshot after the last evaluated step.
	FinalState host.State `json:"-" yaml:"-"`

	err error
}

// Failure names the failed step and what to do about it.
type Failure struct {
	StepID  string `json:"step_id" yaml:"step_id"`
	Message string `json:"message" yaml:"message"`
	Hint    string `json:"hint" yaml:"hint"`
}

// DefaultManualSteps are the follow-ups every provisioned host needs.
func DefaultManualSteps() []ManualStep {
	return []ManualStep{
		{Title: "Upload the application", Detail: "Copy the application code into the application directory and run npm install as the application user."},
		{Title: "Replace default secrets", Detail: "Edit the environment file and change the session secret and database password."},
		{Title: "Configure TLS", Detail: "Run certbot --nginx for the site's domain."},
		{Title: "Set the server name", Detail: "Set a real server_name in the nginx site if the default catch-all is still in place."},
		{Title: "Start the application", Detail: "Start the app with pm2 start ecosystem.config.js and persist it with pm2 save."},
	}
}

func newReport(hostName string, startedAt time.Time) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Host:      hostName,
		Status:    RunStatusNotStarted,
		StartedAt: startedAt,
		Results:   make([]StepResult, 0),
	}
}

func (r *Report) transition(next RunStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return NewInternalError(fmt.Sprintf("invalid run transition %s -> %s", r.Status, next), nil)
	}
	r.Status = next
	return nil
}

func (r *Report) record(res StepResult) {
	r.Results = append(r.Results, res)
	r.Total++
	switch res.Outcome {
	case OutcomeApplied:
		r.Applied++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

// abort records the failure and moves the run to Aborted.
func (r *Report) abort(res StepResult) error {
	r.err = res.Err()
	r.Failure = &Failure{
		StepID:  res.StepID,
		Message: res.Error,
		Hint:    failureHint(res),
	}
	return r.transition(RunStatusAborted)
}

func failureHint(res StepResult) string {
	var b strings.Builder
	if code := codeOf(res.Err()); code == ErrCodeInterrupted {
		b.WriteString("The run was interrupted before this step started. ")
	} else {
		fmt.Fprintf(&b, "Fix the cause reported by step %q and run apply again; satisfied steps will be skipped. ", res.StepID)
	}
	b.WriteString("Steps applied before the failure were NOT rolled back.")
	return b.String()
}

func codeOf(err error) string {
	if e, ok := asEngineError(err); ok {
		return e.Code
	}
	return ""
}

// Err returns the error that aborted the run, or nil.
func (r *Report) Err() error {
	return r.err
}

// Succeeded reports whether the run completed.
func (r *Report) Succeeded() bool {
	return r.Status == RunStatusCompleted
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AppliedSteps returns the IDs of applied steps in execution order.
func (r *Report) AppliedSteps() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Outcome == OutcomeApplied {
			ids = append(ids, res.StepID)
		}
	}
	return ids
}

// Format selects a report rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", NewValidationError(fmt.Sprintf("unknown output format %q (want text, json or yaml)", s), nil)
	}
}

// FormatOptions controls Write.
type FormatOptions struct {
	Format Format
	Color  bool
}

// Write renders the report to w.
func (r *Report) Write(w io.Writer, opts FormatOptions) error {
	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, r.renderText(newTextStyles(opts.Color)))
		return err
	default:
		return NewValidationError(fmt.Sprintf("unknown output format %q", opts.Format), nil)
	}
}

type textStyles struct {
	title   lipgloss.Style
	section lipgloss.Style
	dim     lipgloss.Style
	applied lipgloss.Style
	skipped lipgloss.Style
	failed  lipgloss.Style
}

var (
	colorGreen = lipgloss.Color("#22c55e")
	colorRed   = lipgloss.Color("#ef4444")
	colorBlue  = lipgloss.Color("#3b82f6")
	colorDim   = lipgloss.Color("#6b7280")
)

func newTextStyles(color bool) textStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return textStyles{plain, plain, plain, plain, plain, plain}
	}
	return textStyles{
		title:   lipgloss.NewStyle().Bold(true),
		section: lipgloss.NewStyle().Bold(true).Foreground(colorBlue),
		dim:     lipgloss.NewStyle().Foreground(colorDim),
		applied: lipgloss.NewStyle().Foreground(colorGreen),
		skipped: lipgloss.NewStyle().Foreground(colorDim),
		failed:  lipgloss.NewStyle().Bold(true).Foreground(colorRed),
	}
}

func (s textStyles) outcome(o Outcome) lipgloss.Style {
	switch o {
	case OutcomeApplied:
		return s.applied
	case OutcomeFailed:
		return s.failed
	default:
		return s.skipped
	}
}

func (r *Report) renderText(s textStyles) string {
	var b strings.Builder

	b.WriteString(s.title.Render(fmt.Sprintf("Provisioning %s: %s", r.Host, r.Status)))
	b.WriteString("\n")
	b.WriteString(s.dim.Render(fmt.Sprintf("run %s, %s", r.RunID, r.Duration().Round(time.Millisecond))))
	b.WriteString("\n\n")

	width := 0
	for _, res := range r.Results {
		width = max(width, len(res.StepID))
	}
	for _, res := range r.Results {
		fmt.Fprintf(&b, "  %s %-*s  %s\n",
			s.outcome(res.Outcome).Render(fmt.Sprintf("%-8s", res.Outcome)), width, res.StepID, s.dim.Render(res.Description))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%d steps: %s, %s, %s\n", r.Total,
		s.applied.Render(fmt.Sprintf("%d applied", r.Applied)),
		s.skipped.Render(fmt.Sprintf("%d skipped", r.Skipped)),
		s.failed.Render(fmt.Sprintf("%d failed", r.Failed)))

	if r.Failure != nil {
		b.WriteString("\n")
		b.WriteString(s.failed.Render("Failed step: " + r.Failure.StepID))
		b.WriteString("\n  ")
		b.WriteString(r.Failure.Message)
		b.WriteString("\n  ")
		b.WriteString(r.Failure.Hint)
		b.WriteString("\n")
	}

	if len(r.ManualSteps) > 0 {
		b.WriteString("\n")
		b.WriteString(s.section.Render("Manual steps"))
		b.WriteString("\n")
		for i, m := range r.ManualSteps {
			fmt.Fprintf(&b, "  %d. %s\n     %s\n", i+1, m.Title, s.dim.Render(m.Detail))
		}
	}

	return b.String()
}
