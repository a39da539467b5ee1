package steps

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/openfroyo/hostkit/pkg/host"
	"github.com/openfroyo/hostkit/pkg/templates"
)

// packageBinaries lists the commands a package puts on PATH.
var packageBinaries = map[string]map[string]string{
	"curl":       {"curl": "/usr/bin/curl"},
	"wget":       {"wget": "/usr/bin/wget"},
	"git":        {"git": "/usr/bin/git"},
	"ufw":        {"ufw": "/usr/sbin/ufw"},
	"nodejs":     {"node": "/usr/bin/node", "npm": "/usr/bin/npm"},
	"postgresql": {"psql": "/usr/bin/psql"},
	"nginx":      {"nginx": "/usr/sbin/nginx"},
	"fail2ban":   {"fail2ban-client": "/usr/bin/fail2ban-client"},
}

// aptGet runs apt-get without prompts.
func aptGet(ctx context.Context, h host.Host, args ...string) error {
	argv := append([]string{"DEBIAN_FRONTEND=noninteractive", "apt-get"}, args...)
	_, err := host.Exec(ctx, h, "env", argv...)
	return err
}

// installPackages installs the packages st does not list yet and records
// them, with the binaries they provide.
func installPackages(ctx context.Context, h host.Host, st *host.State, names ...string) error {
	missing := st.MissingPackages(names...)
	if len(missing) == 0 {
		return nil
	}
	if err := aptGet(ctx, h, append([]string{"install", "-y"}, missing...)...); err != nil {
		return err
	}
	for _, name := range missing {
		recordPackage(st, name)
	}
	return nil
}

func recordPackage(st *host.State, name string) {
	if _, ok := st.Packages[name]; !ok {
		st.Packages[name] = ""
	}
	for bin, p := range packageBinaries[name] {
		st.Binaries[bin] = p
	}
	if name == "ufw" {
		st.Firewall.Installed = true
	}
}

// enableNow enables and starts a systemd unit.
func enableNow(ctx context.Context, h host.Host, st *host.State, unit string) error {
	if _, err := host.Exec(ctx, h, "systemctl", "enable", "--now", unit); err != nil {
		return err
	}
	st.Services[unit] = true
	return nil
}

// writeFile places a rendered file on h with its owner and mode and records
// it in st.
func writeFile(ctx context.Context, h host.Host, st *host.State, f templates.RenderedFile) error {
	if _, err := host.Exec(ctx, h, "install", "-d", "-m", "0755", path.Dir(f.Path)); err != nil {
		return err
	}
	if err := h.WriteFile(ctx, f.Path, []byte(f.Content), f.Mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Path, err)
	}
	if _, err := host.Exec(ctx, h, "chown", f.Owner+":"+f.Owner, f.Path); err != nil {
		return err
	}
	st.RecordFile(f.Path, f.Content, f.Owner, f.Mode)
	return nil
}

// psql runs sql as the postgres superuser. display replaces the statement
// in errors, and secrets are masked in psql's own output, so credentials
// never reach a report.
func psql(ctx context.Context, h host.Host, sql, display string, secrets ...string) error {
	res, err := host.PostgresQuery(ctx, h, sql)
	if err != nil {
		return fmt.Errorf("failed to run psql: %w", err)
	}
	if !res.Success() {
		stderr := res.Stderr
		for _, secret := range secrets {
			if secret != "" {
				stderr = strings.ReplaceAll(stderr, secret, "********")
			}
		}
		return &host.CommandError{
			Command:  "psql -c " + display,
			ExitCode: res.ExitCode,
			Stderr:   stderr,
		}
	}
	return nil
}
