// Package ssh provides the SSH transport used to provision remote hosts.
package ssh

import (
	"context"
	"os"
	"time"
)

// Transport defines the remote operations a provisioning run needs.
type Transport interface {
	// Connect establishes an SSH connection to the remote host.
	Connect(ctx context.Context) error

	// Disconnect closes the SSH connection and releases all resources.
	Disconnect() error

	// IsConnected returns true if the transport has an active connection.
	IsConnected() bool

	// Run executes argv on the remote host. Every argument is shell-quoted
	// before it reaches the remote shell. A non-zero exit is reported in
	// ExecResult.ExitCode rather than as an error.
	Run(ctx context.Context, argv []string) (*ExecResult, error)

	// ReadFile reads a remote file via SFTP.
	ReadFile(ctx context.Context, remotePath string) ([]byte, error)

	// WriteFile replaces a remote file via SFTP and sets its mode.
	WriteFile(ctx context.Context, remotePath string, data []byte, mode os.FileMode) error

	// Lstat describes a remote path via SFTP without following symlinks.
	Lstat(ctx context.Context, remotePath string) (os.FileInfo, error)

	// ReadLink returns the target of a remote symlink.
	ReadLink(ctx context.Context, remotePath string) (string, error)

	// GetConnectionInfo returns information about the current connection.
	GetConnectionInfo() ConnectionInfo
}

// ConnectionInfo contains details about an active SSH connection.
type ConnectionInfo struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port number
	Port int

	// User is the SSH username
	User string

	// ConnectedAt is when the connection was established
	ConnectedAt time.Time

	// LastActivity is when the connection was last used
	LastActivity time.Time
}

// ExecResult represents the result of a command execution.
type ExecResult struct {
	// Command is the quoted command line sent to the remote shell
	Command string

	// Stdout is the standard output from the command
	Stdout string

	// Stderr is the standard error output from the command
	Stderr string

	// ExitCode is the command's exit code
	ExitCode int

	// Duration is the total execution time
	Duration time.Duration
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
