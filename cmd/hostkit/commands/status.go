package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	// PostgreSQL driver
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/config"
	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/host"
	"github.com/openfroyo/hostkit/pkg/stores"
)

// statusOutput is the structured form of the status command.
type statusOutput struct {
	Host     string            `json:"host" yaml:"host"`
	Services map[string]string `json:"services" yaml:"services"`
	Database string            `json:"database" yaml:"database"`
	LastRun  *stores.Run       `json:"last_run,omitempty" yaml:"last_run,omitempty"`
}

func newStatusCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service health and the last provisioning run",
		Long: `Show whether the managed services are running, whether the
application database accepts connections, and the outcome of the last
journaled run.

The database is only pinged for local targets, where DATABASE_URL is
reachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			format, err := engine.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			s, err := loadSession(cmd, "status", true)
			if err != nil {
				return err
			}

			h, err := openTarget(false)
			if err != nil {
				return err
			}
			defer h.Close()

			out := statusOutput{
				Host:     h.Name(),
				Services: serviceStates(ctx, h, s.cfg),
				Database: "skipped (remote target)",
			}
			if target == "" || target == "local" {
				out.Database = pingDatabase(ctx, s.cfg.DatabaseURL(), timeout)
			}

			if store := openJournal(ctx); store != nil {
				defer store.Close()
				run, err := store.LastRun(ctx)
				switch {
				case err == nil:
					out.LastRun = run
				case !errors.Is(err, stores.ErrNotFound):
					return err
				}
			}

			w := cmd.OutOrStdout()
			if ok, err := writeStructured(w, format, out); ok {
				return err
			}

			printHeader(w, "Status of %s", out.Host)
			for _, name := range managedServices(s.cfg) {
				state := out.Services[name]
				style := okStyle
				if state != "active" {
					style = badStyle
				}
				fmt.Fprintf(w, "  %-20s %s\n", name, paint(style, state))
			}
			dbStyle := okStyle
			if out.Database != "ok" {
				dbStyle = changeStyle
			}
			fmt.Fprintf(w, "  %-20s %s\n", "database", paint(dbStyle, out.Database))

			if out.LastRun == nil {
				fmt.Fprintln(w, "\nNo journaled runs.")
				return nil
			}
			fmt.Fprintf(w, "\nLast run %s: %s at %s (%d applied, %d skipped)\n",
				out.LastRun.ID, out.LastRun.Status, out.LastRun.StartedAt.Local().Format(time.RFC3339),
				out.LastRun.Applied, out.LastRun.Skipped)
			if out.LastRun.FailedStep != nil {
				fmt.Fprintf(w, "  failed at %s\n", *out.LastRun.FailedStep)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "database ping timeout")

	return cmd
}

func managedServices(cfg *config.ProvisioningConfig) []string {
	return []string{"postgresql", "nginx", "fail2ban", cfg.Paths().PM2StartupUnit}
}

// serviceStates asks systemd for the state of each managed service.
func serviceStates(ctx context.Context, h host.Host, cfg *config.ProvisioningConfig) map[string]string {
	states := make(map[string]string)
	for _, name := range managedServices(cfg) {
		res, err := h.Run(ctx, "systemctl", "is-active", name)
		switch {
		case err != nil:
			states[name] = "unknown"
		case strings.TrimSpace(res.Stdout) != "":
			states[name] = strings.TrimSpace(res.Stdout)
		default:
			states[name] = "inactive"
		}
	}
	return states
}

// pingDatabase connects with the application's credentials.
func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) string {
	dsn = withLocalSSLMode(dsn)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return "error: " + err.Error()
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return "unreachable: " + err.Error()
	}
	return "ok"
}

// withLocalSSLMode disables TLS for the local connection unless the URL
// says otherwise; the provisioned server does not offer it.
func withLocalSSLMode(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
