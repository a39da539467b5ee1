// Package host abstracts the machine being provisioned.
//
// A Host runs commands and reads or writes files. Local drives the machine
// hostkit runs on, Remote drives a machine over SSH, and Simulated keeps
// everything in memory for tests. Discover probes a Host and returns the
// State snapshot that step preconditions are evaluated against.
package host

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Host is a target machine.
type Host interface {
	// Name identifies the host in logs and reports.
	Name() string

	// Run executes a command with argv semantics. A non-zero exit is
	// reported in the Result, not as an error; the error is reserved for
	// failures to start or transport the command.
	Run(ctx context.Context, name string, args ...string) (Result, error)

	// ReadFile returns the content of path. A missing file yields an error
	// satisfying errors.Is(err, os.ErrNotExist).
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile replaces path with data and sets its permission bits.
	WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error

	// Stat describes path without following a final symlink.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Close releases any connection held by the host.
	Close() error
}

// Result is the outcome of one command.
type Result struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Success reports whether the command exited zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// FileInfo describes a path on a host.
type FileInfo struct {
	Path       string      `json:"path"`
	Exists     bool        `json:"exists"`
	IsDir      bool        `json:"is_dir,omitempty"`
	Mode       os.FileMode `json:"mode,omitempty"`
	Owner      string      `json:"owner,omitempty"`
	Group      string      `json:"group,omitempty"`
	LinkTarget string      `json:"link_target,omitempty"`
}

// CommandError reports a command that ran and exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q exited with status %d: %s", e.Command, e.ExitCode, stderr)
}

// Exec runs a command and turns a non-zero exit into a *CommandError.
func Exec(ctx context.Context, h Host, name string, args ...string) (string, error) {
	res, err := h.Run(ctx, name, args...)
	if err != nil {
		return "", fmt.Errorf("failed to run %s: %w", name, err)
	}
	if !res.Success() {
		return res.Stdout, &CommandError{
			Command:  res.Command,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
		}
	}
	return res.Stdout, nil
}

// ExecAll runs commands in order and stops at the first failure.
func ExecAll(ctx context.Context, h Host, cmds ...[]string) error {
	for _, argv := range cmds {
		if len(argv) == 0 {
			continue
		}
		if _, err := Exec(ctx, h, argv[0], argv[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// CommandLine renders argv for display.
func CommandLine(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
