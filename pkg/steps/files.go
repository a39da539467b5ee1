package steps

import (
	"context"
	"fmt"

	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/host"
	"github.com/openfroyo/hostkit/pkg/templates"
)

// fileStep writes a rendered file whenever its content differs. Commands
// in after run once the file is in place.
func (r *Registry) fileStep(id, tmpl, description string, deps []string, after ...[]string) engine.Step {
	f := r.file(tmpl)
	return engine.Step{
		ID:          id,
		Description: fmt.Sprintf("%s (%s)", description, f.Path),
		DependsOn:   deps,
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.FileMatches(f.Path, f.Content))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if err := writeFile(ctx, h, &st, f); err != nil {
				return st, err
			}
			return st, host.ExecAll(ctx, h, after...)
		},
	}
}

// envFile is only written when missing; operators edit its secrets in
// place.
func (r *Registry) envFile() engine.Step {
	f := r.file(templates.NameEnv)
	return engine.Step{
		ID:          IDEnvFile,
		Description: fmt.Sprintf("Create the environment file (%s)", f.Path),
		DependsOn:   []string{IDDirectories},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.PathExists(f.Path))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			return st, writeFile(ctx, h, &st, f)
		},
	}
}

func (r *Registry) nginxSite() engine.Step {
	f := r.file(templates.NameNginxSite)
	enabled, defaultSite := r.paths.NginxEnabled, r.paths.NginxDefault
	return engine.Step{
		ID:          IDNginxSite,
		Description: fmt.Sprintf("Configure the nginx site (%s)", f.Path),
		DependsOn:   []string{IDNginx},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.FileMatches(f.Path, f.Content) &&
				st.Paths[enabled].LinkTarget == f.Path &&
				!st.PathExists(defaultSite))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if err := writeFile(ctx, h, &st, f); err != nil {
				return st, err
			}
			if _, err := host.Exec(ctx, h, "ln", "-sfn", f.Path, enabled); err != nil {
				return st, err
			}
			st.Paths[enabled] = host.FileInfo{Path: enabled, Exists: true, LinkTarget: f.Path, Owner: "root", Group: "root"}

			if _, err := host.Exec(ctx, h, "rm", "-f", defaultSite); err != nil {
				return st, err
			}
			st.RecordRemoved(defaultSite)

			err := host.ExecAll(ctx, h,
				[]string{"nginx", "-t"},
				[]string{"systemctl", "reload", "nginx"},
			)
			return st, err
		},
	}
}

func (r *Registry) fail2banJail() engine.Step {
	return r.fileStep(IDFail2BanJail, templates.NameFail2BanJail, "Configure fail2ban jails",
		[]string{IDFail2Ban, IDNginx},
		[]string{"systemctl", "restart", "fail2ban"},
	)
}

func (r *Registry) pm2Startup() engine.Step {
	user, unit := r.cfg.App.User, r.paths.PM2StartupUnit
	return engine.Step{
		ID:          IDPM2Startup,
		Description: fmt.Sprintf("Start PM2 at boot as %s (%s)", user, unit),
		DependsOn:   []string{IDPM2, IDAppUser},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.Services[unit])
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if _, err := host.Exec(ctx, h, "pm2", "startup", "systemd", "-u", user, "--hp", r.paths.Home); err != nil {
				return st, err
			}
			st.Services[unit] = true
			return st, nil
		},
	}
}
