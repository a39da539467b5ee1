package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AptListsDir is the directory whose mtime tells when apt-get update last ran.
const AptListsDir = "/var/lib/apt/lists"

// Probe lists what Discover should look at.
type Probe struct {
	Packages  []string `json:"packages,omitempty"`
	Binaries  []string `json:"binaries,omitempty"`
	Users     []string `json:"users,omitempty"`
	Paths     []string `json:"paths,omitempty"`
	Files     []string `json:"files,omitempty"`
	Services  []string `json:"services,omitempty"`
	Postgres  bool     `json:"postgres"`
	Firewall  bool     `json:"firewall"`
	AptMaxAge time.Duration
}

// Discoverer builds a State by probing a Host.
type Discoverer struct {
	logger zerolog.Logger
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(logger zerolog.Logger) *Discoverer {
	return &Discoverer{
		logger: logger.With().Str("component", "discovery").Logger(),
	}
}

// Discover probes h and returns the observed State. Probes that find
// nothing are not errors; only failures to reach the host are.
func (d *Discoverer) Discover(ctx context.Context, h Host, probe Probe) (State, error) {
	start := time.Now()
	st := NewState()

	steps := []struct {
		name string
		fn   func(context.Context, Host, Probe, *State) error
	}{
		{"packages", d.packages},
		{"binaries", d.binaries},
		{"apt", d.apt},
		{"users", d.users},
		{"paths", d.paths},
		{"files", d.files},
		{"services", d.services},
		{"postgres", d.postgres},
		{"firewall", d.firewall},
	}

	for _, s := range steps {
		if err := s.fn(ctx, h, probe, &st); err != nil {
			return State{}, fmt.Errorf("discovery of %s failed: %w", s.name, err)
		}
	}

	d.logger.Info().
		Str("host", h.Name()).
		Int("packages", len(st.Packages)).
		Int("binaries", len(st.Binaries)).
		Int("files", len(st.Files)).
		Bool("apt_fresh", st.AptFresh).
		Dur("duration", time.Since(start)).
		Msg("Host state discovered")

	return st, nil
}

func (d *Discoverer) packages(ctx context.Context, h Host, p Probe, st *State) error {
	if len(p.Packages) == 0 {
		return nil
	}
	args := append([]string{"-W", "--showformat=${Package}|${Status}|${Version}\n"}, p.Packages...)
	res, err := h.Run(ctx, "dpkg-query", args...)
	if err != nil {
		return err
	}
	// dpkg-query exits 1 when some packages are unknown but still lists the others.
	for name, version := range parseDpkgQuery(res.Stdout) {
		st.Packages[name] = version
	}
	return nil
}

// parseDpkgQuery keeps packages whose status is "install ok installed".
func parseDpkgQuery(out string) map[string]string {
	installed := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "|")
		if len(parts) != 3 {
			continue
		}
		if parts[1] == "install ok installed" {
			installed[parts[0]] = parts[2]
		}
	}
	return installed
}

func (d *Discoverer) binaries(ctx context.Context, h Host, p Probe, st *State) error {
	for _, name := range p.Binaries {
		// The name is passed as $1 so it is never parsed by the shell.
		res, err := h.Run(ctx, "sh", "-c", `command -v "$1"`, "sh", name)
		if err != nil {
			return err
		}
		if res.Success() && strings.TrimSpace(res.Stdout) != "" {
			st.Binaries[name] = strings.TrimSpace(res.Stdout)
		}
	}

	if st.HasBinary("node") {
		res, err := h.Run(ctx, "node", "--version")
		if err != nil {
			return err
		}
		if res.Success() {
			st.NodeVersion = strings.TrimSpace(res.Stdout)
		}
	}
	return nil
}

func (d *Discoverer) apt(ctx context.Context, h Host, p Probe, st *State) error {
	if p.AptMaxAge <= 0 {
		return nil
	}
	minutes := fmt.Sprintf("-%d", int(p.AptMaxAge.Minutes()))
	res, err := h.Run(ctx, "find", AptListsDir, "-maxdepth", "0", "-mmin", minutes)
	if err != nil {
		return err
	}
	st.AptFresh = res.Success() && strings.TrimSpace(res.Stdout) != ""
	return nil
}

func (d *Discoverer) users(ctx context.Context, h Host, p Probe, st *State) error {
	for _, u := range p.Users {
		res, err := h.Run(ctx, "getent", "passwd", u)
		if err != nil {
			return err
		}
		if res.Success() {
			st.Users[u] = true
		}
	}
	return nil
}

func (d *Discoverer) paths(ctx context.Context, h Host, p Probe, st *State) error {
	for _, path := range p.Paths {
		fi, err := h.Stat(ctx, path)
		if err != nil {
			return err
		}
		st.Paths[path] = fi
	}
	return nil
}

func (d *Discoverer) files(ctx context.Context, h Host, p Probe, st *State) error {
	for _, path := range p.Files {
		fi, err := h.Stat(ctx, path)
		if err != nil {
			return err
		}
		st.Paths[path] = fi
		if !fi.Exists || fi.IsDir {
			continue
		}
		data, err := h.ReadFile(ctx, path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		st.Files[path] = string(data)
	}
	return nil
}

func (d *Discoverer) services(ctx context.Context, h Host, p Probe, st *State) error {
	for _, unit := range p.Services {
		res, err := h.Run(ctx, "systemctl", "is-enabled", unit)
		if err != nil {
			return err
		}
		if strings.TrimSpace(res.Stdout) == "enabled" {
			st.Services[unit] = true
		}
	}
	return nil
}

// PostgresQuery runs sql through psql as the postgres superuser.
func PostgresQuery(ctx context.Context, h Host, sql string) (Result, error) {
	return h.Run(ctx, "sudo", "-u", "postgres", "psql", "-X", "-q", "-tA", "-c", sql)
}

func (d *Discoverer) postgres(ctx context.Context, h Host, p Probe, st *State) error {
	if !p.Postgres || !st.HasBinary("psql") {
		return nil
	}

	res, err := PostgresQuery(ctx, h, "SELECT datname, pg_catalog.pg_get_userbyid(datdba) FROM pg_catalog.pg_database")
	if err != nil {
		return err
	}
	if !res.Success() {
		// A stopped server is an observation, not a discovery failure.
		d.logger.Warn().Str("stderr", strings.TrimSpace(res.Stderr)).Msg("PostgreSQL is not answering, assuming no databases")
		return nil
	}
	for _, line := range nonEmptyLines(res.Stdout) {
		name, owner, _ := strings.Cut(line, "|")
		st.Databases[name] = owner
	}

	res, err = PostgresQuery(ctx, h, "SELECT rolname FROM pg_catalog.pg_roles")
	if err != nil {
		return err
	}
	if res.Success() {
		for _, line := range nonEmptyLines(res.Stdout) {
			st.Roles[line] = true
		}
	}

	res, err = PostgresQuery(ctx, h, "SHOW hba_file")
	if err != nil {
		return err
	}
	if res.Success() {
		st.HBAFile = strings.TrimSpace(res.Stdout)
	}
	if st.HBAFile != "" {
		data, err := h.ReadFile(ctx, st.HBAFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err == nil {
			st.Files[st.HBAFile] = string(data)
		}
	}
	return nil
}

var ufwColumns = regexp.MustCompile(`\s{2,}`)

func (d *Discoverer) firewall(ctx context.Context, h Host, p Probe, st *State) error {
	if !p.Firewall || !st.HasBinary("ufw") {
		return nil
	}
	st.Firewall.Installed = true

	res, err := h.Run(ctx, "ufw", "status")
	if err != nil {
		return err
	}
	if !res.Success() {
		return nil
	}
	st.Firewall.Active, st.Firewall.Rules = ParseUFWStatus(res.Stdout)
	return nil
}

// ParseUFWStatus parses `ufw status` output into the active flag and the
// set of allowed rule targets. IPv6 duplicates collapse into one entry.
func ParseUFWStatus(out string) (bool, map[string]bool) {
	active := false
	rules := make(map[string]bool)
	for _, line := range nonEmptyLines(out) {
		if strings.HasPrefix(line, "Status:") {
			active = strings.TrimSpace(strings.TrimPrefix(line, "Status:")) == "active"
			continue
		}
		cols := ufwColumns.Split(line, -1)
		if len(cols) < 2 || !strings.HasPrefix(cols[1], "ALLOW") {
			continue
		}
		rules[strings.TrimSuffix(cols[0], " (v6)")] = true
	}
	return active, rules
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
