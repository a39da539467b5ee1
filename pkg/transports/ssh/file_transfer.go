package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// sftpClient returns the shared SFTP client, opening it on first use.
func (c *SSHClient) sftpClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.sftp != nil {
		return c.sftp, nil
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	c.sftp = client
	return client, nil
}

// ReadFile reads a remote file. With sudo enabled the file is read with
// `sudo cat` because root-only files are not readable over SFTP.
func (c *SSHClient) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	if c.config.Sudo {
		res, err := c.Run(ctx, []string{"cat", "--", remotePath})
		if err != nil {
			return nil, err
		}
		if res.ExitCode != 0 {
			if _, statErr := c.Lstat(ctx, remotePath); os.IsNotExist(statErr) {
				return nil, &TransportError{Op: "read", Err: fmt.Errorf("%s: %w", remotePath, os.ErrNotExist)}
			}
			return nil, &TransportError{Op: "read", Err: fmt.Errorf("cat %s exited with status %d: %s", remotePath, res.ExitCode, res.Stderr)}
		}
		return []byte(res.Stdout), nil
	}

	client, err := c.sftpClient()
	if err != nil {
		return nil, err
	}

	f, err := client.Open(remotePath)
	if err != nil {
		return nil, &TransportError{Op: "read", Err: fmt.Errorf("failed to open %s: %w", remotePath, err)}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &TransportError{Op: "read", Err: fmt.Errorf("failed to read %s: %w", remotePath, err), IsTemporary: true}
	}
	return data, nil
}

// WriteFile replaces remotePath with data. With sudo enabled the content is
// staged in /tmp and moved into place with `sudo install`. The mode is set
// before any data is written, and a staged file is always 0600.
func (c *SSHClient) WriteFile(ctx context.Context, remotePath string, data []byte, mode os.FileMode) error {
	client, err := c.sftpClient()
	if err != nil {
		return err
	}

	target := remotePath
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	perm := mode.Perm()
	if c.config.Sudo {
		target = path.Join("/tmp", ".hostkit-"+uuid.NewString())
		flags |= os.O_EXCL
		perm = 0o600
	}

	log.Debug().
		Str("remote", remotePath).
		Int("bytes", len(data)).
		Str("mode", mode.String()).
		Msg("uploading file")

	f, err := client.OpenFile(target, flags)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote file: %w", err), IsTemporary: true}
	}
	if c.config.Sudo {
		defer func() { _ = client.Remove(target) }()
	}
	if err := client.Chmod(target, perm); err != nil {
		_ = f.Close()
		return &TransportError{Op: "chmod", Err: fmt.Errorf("failed to set permissions: %w", err)}
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to write remote file: %w", err), IsTemporary: true}
	}
	if err := f.Close(); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to close remote file: %w", err)}
	}

	if !c.config.Sudo {
		return nil
	}

	res, err := c.Run(ctx, []string{"install", "-m", fmt.Sprintf("%04o", mode.Perm()), target, remotePath})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &TransportError{Op: "install", Err: fmt.Errorf("install %s exited with status %d: %s", remotePath, res.ExitCode, res.Stderr)}
	}
	return nil
}

// Lstat describes remotePath without following symlinks.
func (c *SSHClient) Lstat(_ context.Context, remotePath string) (os.FileInfo, error) {
	client, err := c.sftpClient()
	if err != nil {
		return nil, err
	}
	return client.Lstat(remotePath)
}

// ReadLink returns the target of a remote symlink.
func (c *SSHClient) ReadLink(_ context.Context, remotePath string) (string, error) {
	client, err := c.sftpClient()
	if err != nil {
		return "", err
	}
	return client.ReadLink(remotePath)
}
