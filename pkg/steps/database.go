package steps

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/lib/pq"

	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/host"
)

// hbaAddress is the only client address the application role may use.
const hbaAddress = "127.0.0.1/32"

func (r *Registry) databaseRole() engine.Step {
	db := r.cfg.Database
	return engine.Step{
		ID:          IDDatabaseRole,
		Description: fmt.Sprintf("Create the PostgreSQL role %s", db.User),
		DependsOn:   []string{IDPostgreSQL},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.Roles[db.User])
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			sql := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s",
				pq.QuoteIdentifier(db.User), pq.QuoteLiteral(db.Password))
			display := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '********'", pq.QuoteIdentifier(db.User))
			if err := psql(ctx, h, sql, display, db.Password); err != nil {
				return st, err
			}
			st.Roles[db.User] = true
			return st, nil
		},
	}
}

func (r *Registry) database() engine.Step {
	db := r.cfg.Database
	return engine.Step{
		ID:          IDDatabase,
		Description: fmt.Sprintf("Create the database %s", db.Name),
		DependsOn:   []string{IDDatabaseRole},
		Check: func(st *host.State) engine.CheckStatus {
			_, ok := st.Databases[db.Name]
			return engine.Satisfied(ok)
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			sql := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
				pq.QuoteIdentifier(db.Name), pq.QuoteIdentifier(db.User))
			if err := psql(ctx, h, sql, sql); err != nil {
				return st, err
			}
			st.Databases[db.Name] = db.User
			return st, nil
		},
	}
}

func (r *Registry) databaseGrants() engine.Step {
	db := r.cfg.Database
	return engine.Step{
		ID:          IDDatabaseGrants,
		Description: fmt.Sprintf("Give %s ownership of %s", db.User, db.Name),
		DependsOn:   []string{IDDatabase},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.Databases[db.Name] == db.User)
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			name, user := pq.QuoteIdentifier(db.Name), pq.QuoteIdentifier(db.User)
			for _, sql := range []string{
				fmt.Sprintf("ALTER DATABASE %s OWNER TO %s", name, user),
				fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", name, user),
			} {
				if err := psql(ctx, h, sql, sql); err != nil {
					return st, err
				}
			}
			st.Databases[db.Name] = db.User
			return st, nil
		},
	}
}

// HBARule returns the pg_hba.conf line that lets user reach db over
// loopback with a password.
func HBARule(db, user string) string {
	return strings.Join([]string{"host", db, user, hbaAddress, "scram-sha-256"}, "\t")
}

// HasHBARule reports whether content holds rule as an active line,
// ignoring whitespace differences.
func HasHBARule(content, rule string) bool {
	want := strings.Join(strings.Fields(rule), " ")
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Join(strings.Fields(line), " ") == want {
			return true
		}
	}
	return false
}

func (r *Registry) databaseClientAuth() engine.Step {
	db := r.cfg.Database
	rule := HBARule(db.Name, db.User)
	return engine.Step{
		ID:          IDDatabaseClientAuth,
		Description: fmt.Sprintf("Allow %s to reach %s from %s", db.User, db.Name, hbaAddress),
		DependsOn:   []string{IDDatabase},
		Check: func(st *host.State) engine.CheckStatus {
			if st.HBAFile == "" {
				return engine.CheckNeedsApply
			}
			content, _ := st.FileContent(st.HBAFile)
			return engine.Satisfied(HasHBARule(content, rule))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			hba, err := hbaFile(ctx, h, st.HBAFile)
			if err != nil {
				return st, err
			}
			st.HBAFile = hba

			data, err := h.ReadFile(ctx, hba)
			if err != nil {
				return st, fmt.Errorf("failed to read %s: %w", hba, err)
			}
			content := string(data)
			if !HasHBARule(content, rule) {
				if content != "" && !strings.HasSuffix(content, "\n") {
					content += "\n"
				}
				content += "# added by hostkit\n" + rule + "\n"
				if err := h.WriteFile(ctx, hba, []byte(content), 0o640); err != nil {
					return st, fmt.Errorf("failed to write %s: %w", hba, err)
				}
				if _, err := host.Exec(ctx, h, "chown", "postgres:postgres", hba); err != nil {
					return st, err
				}
			}
			if _, err := host.Exec(ctx, h, "systemctl", "reload", "postgresql"); err != nil {
				return st, err
			}
			st.RecordFile(hba, content, "postgres", 0o640)
			return st, nil
		},
	}
}

// hbaFile returns known, or asks the server where pg_hba.conf lives.
func hbaFile(ctx context.Context, h host.Host, known string) (string, error) {
	if known != "" {
		return known, nil
	}
	res, err := host.PostgresQuery(ctx, h, "SHOW hba_file")
	if err != nil {
		return "", fmt.Errorf("failed to run psql: %w", err)
	}
	if !res.Success() {
		return "", &host.CommandError{Command: res.Command, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	hba := strings.TrimSpace(res.Stdout)
	if hba == "" {
		return "", fmt.Errorf("PostgreSQL did not report its hba_file: %w", fs.ErrNotExist)
	}
	return hba, nil
}
