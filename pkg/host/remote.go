package host

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostkit/pkg/transports/ssh"
)

// Remote provisions a machine over SSH.
type Remote struct {
	transport ssh.Transport
	name      string
	logger    zerolog.Logger
}

// NewRemote wraps an SSH transport. The transport is connected lazily.
func NewRemote(transport ssh.Transport, logger zerolog.Logger) *Remote {
	info := transport.GetConnectionInfo()
	return &Remote{
		transport: transport,
		name:      info.Host,
		logger:    logger.With().Str("component", "host-remote").Str("host", info.Host).Logger(),
	}
}

// Name returns the remote host name.
func (r *Remote) Name() string {
	return r.name
}

func (r *Remote) connect(ctx context.Context) error {
	if r.transport.IsConnected() {
		return nil
	}
	return r.transport.Connect(ctx)
}

// Run executes argv on the remote host.
func (r *Remote) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if err := r.connect(ctx); err != nil {
		return Result{}, err
	}

	argv := append([]string{name}, args...)
	res, err := r.transport.Run(ctx, argv)
	if err != nil {
		return Result{Command: CommandLine(name, args...)}, err
	}

	r.logger.Debug().
		Str("command", res.Command).
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Msg("Command finished")

	return Result{
		Command:  CommandLine(name, args...),
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
	}, nil
}

// ReadFile reads a remote file.
func (r *Remote) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := r.connect(ctx); err != nil {
		return nil, err
	}
	return r.transport.ReadFile(ctx, path)
}

// WriteFile writes a remote file.
func (r *Remote) WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	if err := r.connect(ctx); err != nil {
		return err
	}
	return r.transport.WriteFile(ctx, path, data, mode)
}

// Stat describes a remote path using stat(1), which reports owner names.
func (r *Remote) Stat(ctx context.Context, path string) (FileInfo, error) {
	res, err := r.Run(ctx, "stat", "-c", "%F|%a|%U|%G", "--", path)
	if err != nil {
		return FileInfo{}, err
	}
	if !res.Success() {
		if strings.Contains(res.Stderr, "No such file") {
			return FileInfo{Path: path}, nil
		}
		return FileInfo{}, &CommandError{Command: res.Command, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	info, err := parseStat(path, res.Stdout)
	if err != nil {
		return FileInfo{}, err
	}
	if strings.HasPrefix(strings.TrimSpace(res.Stdout), "symbolic link") {
		target, err := r.transport.ReadLink(ctx, path)
		if err != nil {
			return FileInfo{}, fmt.Errorf("failed to read link %s: %w", path, err)
		}
		info.LinkTarget = target
	}
	return info, nil
}

// parseStat parses one line of `stat -c '%F|%a|%U|%G'`.
func parseStat(path, out string) (FileInfo, error) {
	parts := strings.Split(strings.TrimSpace(out), "|")
	if len(parts) != 4 {
		return FileInfo{}, fmt.Errorf("unexpected stat output for %s: %q", path, out)
	}
	mode, err := strconv.ParseUint(parts[1], 8, 32)
	if err != nil {
		return FileInfo{}, fmt.Errorf("unexpected mode for %s: %w", path, err)
	}
	return FileInfo{
		Path:   path,
		Exists: true,
		IsDir:  parts[0] == "directory",
		Mode:   os.FileMode(mode),
		Owner:  parts[2],
		Group:  parts[3],
	}, nil
}

// Close disconnects the transport.
func (r *Remote) Close() error {
	return r.transport.Disconnect()
}
