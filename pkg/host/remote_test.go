package host

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostkit/pkg/transports/ssh"
)

// fakeTransport answers commands by their first argument.
type fakeTransport struct {
	responses map[string]*ssh.ExecResult
	links     map[string]string
	commands  [][]string
	connected bool
}

func (f *fakeTransport) Connect(context.Context) error { f.connected = true; return nil }
func (f *fakeTransport) Disconnect() error             { f.connected = false; return nil }
func (f *fakeTransport) IsConnected() bool             { return f.connected }

func (f *fakeTransport) Run(_ context.Context, argv []string) (*ssh.ExecResult, error) {
	f.commands = append(f.commands, argv)
	key := argv[len(argv)-1]
	if res, ok := f.responses[key]; ok {
		return res, nil
	}
	return &ssh.ExecResult{ExitCode: 1, Stderr: "stat: cannot statx '" + key + "': No such file or directory"}, nil
}

func (f *fakeTransport) ReadFile(context.Context, string) ([]byte, error) {
	return nil, os.ErrNotExist
}

func (f *fakeTransport) WriteFile(context.Context, string, []byte, os.FileMode) error {
	return nil
}

func (f *fakeTransport) Lstat(context.Context, string) (os.FileInfo, error) {
	return nil, os.ErrNotExist
}

func (f *fakeTransport) ReadLink(_ context.Context, path string) (string, error) {
	target, ok := f.links[path]
	if !ok {
		return "", errors.New("not a link")
	}
	return target, nil
}

func (f *fakeTransport) GetConnectionInfo() ssh.ConnectionInfo {
	return ssh.ConnectionInfo{Host: "vps.example.com", Port: 22, User: "deploy"}
}

func TestRemote_Stat(t *testing.T) {
	const (
		site    = "/etc/nginx/sites-available/nodeapp"
		enabled = "/etc/nginx/sites-enabled/nodeapp"
	)
	transport := &fakeTransport{
		responses: map[string]*ssh.ExecResult{
			site:         {Stdout: "regular file|644|root|root\n"},
			enabled:      {Stdout: "symbolic link|777|root|root\n"},
			"/var/www/x": {Stdout: "directory|755|nodeapp|nodeapp\n"},
		},
		links: map[string]string{enabled: site},
	}
	r := NewRemote(transport, zerolog.Nop())
	ctx := context.Background()

	if r.Name() != "vps.example.com" {
		t.Errorf("Expected remote name from the connection, got %s", r.Name())
	}

	link, err := r.Stat(ctx, enabled)
	if err != nil {
		t.Fatalf("Failed to stat link: %v", err)
	}
	if !link.Exists || link.LinkTarget != site {
		t.Errorf("Expected link to %s, got %+v", site, link)
	}

	file, err := r.Stat(ctx, site)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}
	if file.LinkTarget != "" || file.Mode != 0o644 || file.Owner != "root" {
		t.Errorf("Expected a plain root-owned 0644 file, got %+v", file)
	}

	dir, err := r.Stat(ctx, "/var/www/x")
	if err != nil {
		t.Fatalf("Failed to stat dir: %v", err)
	}
	if !dir.IsDir || dir.Owner != "nodeapp" {
		t.Errorf("Expected a nodeapp-owned directory, got %+v", dir)
	}

	missing, err := r.Stat(ctx, "/nope")
	if err != nil {
		t.Fatalf("Expected a missing path not to be an error, got %v", err)
	}
	if missing.Exists {
		t.Errorf("Expected missing path to not exist, got %+v", missing)
	}

	if !transport.connected {
		t.Error("Expected the transport to be connected lazily")
	}
	if got := strings.Join(transport.commands[0], " "); got != "stat -c %F|%a|%U|%G -- "+enabled {
		t.Errorf("Expected stat argv, got %s", got)
	}
}

func TestRemote_StatBrokenLink(t *testing.T) {
	const enabled = "/etc/nginx/sites-enabled/nodeapp"
	transport := &fakeTransport{
		responses: map[string]*ssh.ExecResult{
			enabled: {Stdout: "symbolic link|777|root|root\n"},
		},
	}
	r := NewRemote(transport, zerolog.Nop())

	if _, err := r.Stat(context.Background(), enabled); err == nil {
		t.Error("Expected an unreadable link to fail")
	}
}

