package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Local runs commands on the machine hostkit itself runs on.
type Local struct {
	name   string
	logger zerolog.Logger
}

// NewLocal creates a Local host.
func NewLocal(logger zerolog.Logger) *Local {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "localhost"
	}
	return &Local{
		name:   name,
		logger: logger.With().Str("component", "host-local").Logger(),
	}
}

// Name returns the machine's hostname.
func (l *Local) Name() string {
	return l.name
}

// Run executes name with args and no shell.
func (l *Local) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := Result{
		Command:  CommandLine(name, args...),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("failed to execute command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	l.logger.Debug().
		Str("command", result.Command).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Command finished")

	return result, nil
}

// ReadFile reads path from the local filesystem.
func (l *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to a temporary sibling and renames it over path.
func (l *Local) WriteFile(_ context.Context, path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".hostkit-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Stat describes path using lstat.
func (l *Local) Stat(_ context.Context, path string) (FileInfo, error) {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FileInfo{Path: path}, nil
	}
	if err != nil {
		return FileInfo{}, err
	}

	info := FileInfo{
		Path:   path,
		Exists: true,
		IsDir:  fi.IsDir(),
		Mode:   fi.Mode().Perm(),
	}
	info.Owner, info.Group = ownerOf(fi)

	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return FileInfo{}, err
		}
		info.LinkTarget = target
	}
	return info, nil
}

// Close is a no-op for the local host.
func (l *Local) Close() error {
	return nil
}
