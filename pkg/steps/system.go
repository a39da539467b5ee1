package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/host"
)

// nodeSetupScript is where the NodeSource setup script is downloaded.
const nodeSetupScript = "/tmp/nodesource_setup.sh"

func (r *Registry) systemUpdate() engine.Step {
	return engine.Step{
		ID:          IDSystemUpdate,
		Description: "Update the package lists and upgrade installed packages",
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.AptFresh)
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if err := aptGet(ctx, h, "update"); err != nil {
				return st, err
			}
			if err := aptGet(ctx, h, "upgrade", "-y"); err != nil {
				return st, err
			}
			st.AptFresh = true
			return st, nil
		},
	}
}

func (r *Registry) essentialTools() engine.Step {
	return engine.Step{
		ID:          IDEssentialTools,
		Description: "Install " + strings.Join(EssentialPackages, ", "),
		DependsOn:   []string{IDSystemUpdate},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.HasPackages(EssentialPackages...))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			return st, installPackages(ctx, h, &st, EssentialPackages...)
		},
	}
}

func (r *Registry) nodeJS() engine.Step {
	want := r.cfg.Node.Version
	return engine.Step{
		ID:          IDNodeJS,
		Description: fmt.Sprintf("Install Node.js %s.x from NodeSource", want),
		DependsOn:   []string{IDEssentialTools},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.HasBinary("node") && NodeMajorMatches(st.NodeVersion, want))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			url := fmt.Sprintf("https://deb.nodesource.com/setup_%s.x", want)
			err := host.ExecAll(ctx, h,
				[]string{"curl", "-fsSL", url, "-o", nodeSetupScript},
				[]string{"bash", nodeSetupScript},
			)
			if err != nil {
				return st, err
			}
			if err := aptGet(ctx, h, "install", "-y", "nodejs"); err != nil {
				return st, err
			}
			recordPackage(&st, "nodejs")

			out, err := host.Exec(ctx, h, "node", "--version")
			if err != nil {
				return st, err
			}
			installed := strings.TrimSpace(out)
			if !NodeMajorMatches(installed, want) {
				return st, fmt.Errorf("installed node %q does not match major version %s", installed, want)
			}
			st.NodeVersion = installed
			return st, nil
		},
	}
}

// NodeMajorMatches reports whether a `node --version` string such as
// "v20.11.1" has the major version want.
func NodeMajorMatches(installed, want string) bool {
	v, err := version.NewVersion(strings.TrimSpace(installed))
	if err != nil {
		return false
	}
	major, err := strconv.Atoi(want)
	if err != nil {
		return false
	}
	segments := v.Segments()
	return len(segments) > 0 && segments[0] == major
}

func (r *Registry) postgreSQL() engine.Step {
	return engine.Step{
		ID:          IDPostgreSQL,
		Description: "Install and start PostgreSQL",
		DependsOn:   []string{IDSystemUpdate},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.HasPackages("postgresql", "postgresql-contrib"))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if err := installPackages(ctx, h, &st, "postgresql", "postgresql-contrib"); err != nil {
				return st, err
			}
			if err := enableNow(ctx, h, &st, "postgresql"); err != nil {
				return st, err
			}
			return st, nil
		},
	}
}

func (r *Registry) nginx() engine.Step {
	return engine.Step{
		ID:          IDNginx,
		Description: "Install and start nginx",
		DependsOn:   []string{IDSystemUpdate},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.HasPackages("nginx"))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if err := installPackages(ctx, h, &st, "nginx"); err != nil {
				return st, err
			}
			return st, enableNow(ctx, h, &st, "nginx")
		},
	}
}

func (r *Registry) pm2() engine.Step {
	return engine.Step{
		ID:          IDPM2,
		Description: "Install PM2 globally",
		DependsOn:   []string{IDNodeJS},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.HasBinary("pm2"))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if _, err := host.Exec(ctx, h, "npm", "install", "-g", "pm2"); err != nil {
				return st, err
			}
			st.Binaries["pm2"] = "/usr/bin/pm2"
			return st, nil
		},
	}
}

func (r *Registry) fail2ban() engine.Step {
	return engine.Step{
		ID:          IDFail2Ban,
		Description: "Install and enable fail2ban",
		DependsOn:   []string{IDSystemUpdate},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.HasPackages("fail2ban") && st.Services["fail2ban"])
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if err := installPackages(ctx, h, &st, "fail2ban"); err != nil {
				return st, err
			}
			return st, enableNow(ctx, h, &st, "fail2ban")
		},
	}
}
