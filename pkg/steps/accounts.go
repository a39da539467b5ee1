package steps

import (
	"context"
	"fmt"
	"os"

	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/host"
)

// firewallRules are the ufw application profiles the host allows.
var firewallRules = []string{"OpenSSH", "Nginx Full"}

func (r *Registry) appUser() engine.Step {
	user := r.cfg.App.User
	return engine.Step{
		ID:          IDAppUser,
		Description: fmt.Sprintf("Create the application user %s", user),
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.Users[user])
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if _, err := host.Exec(ctx, h, "useradd", "--create-home", "--shell", "/bin/bash", user); err != nil {
				return st, err
			}
			st.Users[user] = true
			st.Paths[r.paths.Home] = host.FileInfo{
				Path: r.paths.Home, Exists: true, IsDir: true, Mode: os.ModeDir | 0o750, Owner: user, Group: user,
			}
			return st, nil
		},
	}
}

type directory struct {
	path string
	mode os.FileMode
}

func (r *Registry) appDirectories() []directory {
	return []directory{
		{r.cfg.App.Dir, 0o755},
		{r.cfg.App.LogDir, 0o755},
		{r.cfg.Backup.Dir, 0o750},
	}
}

func (r *Registry) directories() engine.Step {
	user := r.cfg.App.User
	dirs := r.appDirectories()
	return engine.Step{
		ID:          IDDirectories,
		Description: "Create the application, log and backup directories",
		DependsOn:   []string{IDAppUser},
		Check: func(st *host.State) engine.CheckStatus {
			for _, d := range dirs {
				if !st.DirOwnedBy(d.path, user) {
					return engine.CheckNeedsApply
				}
			}
			return engine.CheckSatisfied
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			for _, d := range dirs {
				if st.DirOwnedBy(d.path, user) {
					continue
				}
				mode := fmt.Sprintf("%04o", d.mode.Perm())
				if _, err := host.Exec(ctx, h, "install", "-d", "-o", user, "-g", user, "-m", mode, d.path); err != nil {
					return st, err
				}
				st.Paths[d.path] = host.FileInfo{
					Path: d.path, Exists: true, IsDir: true, Mode: os.ModeDir | d.mode, Owner: user, Group: user,
				}
			}
			return st, nil
		},
	}
}

// firewallReady reports whether ufw is active with every rule allowed. A
// host without ufw has nothing to configure.
func firewallReady(st *host.State) bool {
	if !st.Firewall.Installed && !st.HasBinary("ufw") {
		return true
	}
	if !st.Firewall.Active {
		return false
	}
	for _, rule := range firewallRules {
		if !st.Firewall.Rules[rule] {
			return false
		}
	}
	return true
}

func (r *Registry) firewall() engine.Step {
	return engine.Step{
		ID:          IDFirewall,
		Description: "Allow SSH and HTTP(S) through ufw and enable it",
		DependsOn:   []string{IDEssentialTools, IDNginx},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(firewallReady(st))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			// OpenSSH is allowed before enabling so the session survives.
			for _, rule := range firewallRules {
				if _, err := host.Exec(ctx, h, "ufw", "allow", rule); err != nil {
					return st, err
				}
				st.Firewall.Rules[rule] = true
			}
			if _, err := host.Exec(ctx, h, "ufw", "--force", "enable"); err != nil {
				return st, err
			}
			st.Firewall.Installed = true
			st.Firewall.Active = true
			return st, nil
		},
	}
}
