package host

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseUFWStatus(t *testing.T) {
	out := `Status: active

To                         Action      From
--                         ------      ----
OpenSSH                    ALLOW       Anywhere
Nginx Full                 ALLOW       Anywhere
8080/tcp                   DENY        Anywhere
OpenSSH (v6)               ALLOW       Anywhere (v6)
Nginx Full (v6)            ALLOW       Anywhere (v6)
`
	active, rules := ParseUFWStatus(out)
	if !active {
		t.Error("Expected firewall to be active")
	}
	if len(rules) != 2 {
		t.Errorf("Expected 2 rules, got %d: %v", len(rules), rules)
	}
	for _, want := range []string{"OpenSSH", "Nginx Full"} {
		if !rules[want] {
			t.Errorf("Expected rule %q, got %v", want, rules)
		}
	}
	if rules["8080/tcp"] {
		t.Error("Expected DENY rule to be ignored")
	}

	active, rules = ParseUFWStatus("Status: inactive\n")
	if active || len(rules) != 0 {
		t.Errorf("Expected inactive with no rules, got %v %v", active, rules)
	}
}

func TestParseDpkgQuery(t *testing.T) {
	out := "nginx|install ok installed|1.24.0-2ubuntu7\n" +
		"curl|deinstall ok config-files|8.5.0\n" +
		"git|install ok installed|1:2.43.0-1ubuntu7\n" +
		"garbage line\n"

	got := parseDpkgQuery(out)
	if len(got) != 2 {
		t.Fatalf("Expected 2 installed packages, got %v", got)
	}
	if got["nginx"] != "1.24.0-2ubuntu7" {
		t.Errorf("Expected nginx version, got %q", got["nginx"])
	}
	if _, ok := got["curl"]; ok {
		t.Error("Expected removed package to be ignored")
	}
}

func TestParseStat(t *testing.T) {
	fi, err := parseStat("/var/www/app", "directory|755|nodeapp|nodeapp\n")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !fi.Exists || !fi.IsDir || fi.Owner != "nodeapp" || fi.Mode != 0o755 {
		t.Errorf("Unexpected file info: %+v", fi)
	}

	fi, err = parseStat("/etc/app.env", "regular file|600|root|root")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if fi.IsDir || fi.Mode != 0o600 {
		t.Errorf("Unexpected file info: %+v", fi)
	}

	if _, err := parseStat("/x", "nonsense"); err == nil {
		t.Error("Expected error for malformed output")
	}
}

func TestDiscover(t *testing.T) {
	sim := NewSimulated("web1")
	ctx := context.Background()

	sim.Respond(CommandLine("dpkg-query", "-W", "--showformat=${Package}|${Status}|${Version}\n", "nginx", "curl"),
		"nginx|install ok installed|1.24.0\n")
	sim.Respond(CommandLine("sh", "-c", `command -v "$1"`, "sh", "node"), "/usr/bin/node\n")
	sim.FailOn(CommandLine("sh", "-c", `command -v "$1"`, "sh", "pm2"), "")
	sim.Respond(CommandLine("sh", "-c", `command -v "$1"`, "sh", "psql"), "/usr/bin/psql\n")
	sim.Respond(CommandLine("sh", "-c", `command -v "$1"`, "sh", "ufw"), "/usr/sbin/ufw\n")
	sim.Respond("node --version", "v20.11.1\n")
	sim.Respond(CommandLine("find", AptListsDir, "-maxdepth", "0", "-mmin", "-1440"), AptListsDir+"\n")
	sim.FailOn("getent passwd ghost", "")
	sim.Respond("systemctl is-enabled fail2ban", "enabled\n")
	sim.Respond(CommandLine("sudo", "-u", "postgres", "psql", "-X", "-q", "-tA", "-c",
		"SELECT datname, pg_catalog.pg_get_userbyid(datdba) FROM pg_catalog.pg_database"),
		"postgres|postgres\nappdb|postgres\n")
	sim.Respond(CommandLine("sudo", "-u", "postgres", "psql", "-X", "-q", "-tA", "-c",
		"SELECT rolname FROM pg_catalog.pg_roles"), "postgres\n")
	sim.Respond(CommandLine("sudo", "-u", "postgres", "psql", "-X", "-q", "-tA", "-c", "SHOW hba_file"),
		"/etc/postgresql/16/main/pg_hba.conf\n")
	sim.Respond("ufw status", "Status: active\n\nTo  Action  From\nOpenSSH                    ALLOW       Anywhere\n")

	if err := sim.WriteFile(ctx, "/etc/postgresql/16/main/pg_hba.conf", []byte("local all postgres peer\n"), 0o640); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := sim.WriteFile(ctx, "/etc/app.env", []byte("PORT=3000\n"), 0o600); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	probe := Probe{
		Packages:  []string{"nginx", "curl"},
		Binaries:  []string{"node", "pm2", "psql", "ufw"},
		Users:     []string{"nodeapp", "ghost"},
		Files:     []string{"/etc/app.env", "/etc/missing"},
		Services:  []string{"fail2ban", "postgresql"},
		Postgres:  true,
		Firewall:  true,
		AptMaxAge: 24 * time.Hour,
	}

	st, err := NewDiscoverer(zerolog.Nop()).Discover(ctx, sim, probe)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !st.HasPackages("nginx") || st.HasPackages("curl") {
		t.Errorf("Unexpected packages: %v", st.Packages)
	}
	if !st.HasBinary("node") || st.HasBinary("pm2") {
		t.Errorf("Unexpected binaries: %v", st.Binaries)
	}
	if st.NodeVersion != "v20.11.1" {
		t.Errorf("Expected node version v20.11.1, got %q", st.NodeVersion)
	}
	if !st.AptFresh {
		t.Error("Expected apt lists to be fresh")
	}
	if !st.Users["nodeapp"] || st.Users["ghost"] {
		t.Errorf("Unexpected users: %v", st.Users)
	}
	if !st.FileMatches("/etc/app.env", "PORT=3000\n") {
		t.Errorf("Expected env file content, got %q", st.Files["/etc/app.env"])
	}
	if st.PathExists("/etc/missing") {
		t.Error("Expected missing file to be reported absent")
	}
	if !st.Services["fail2ban"] || st.Services["postgresql"] {
		t.Errorf("Unexpected services: %v", st.Services)
	}
	if st.Databases["appdb"] != "postgres" {
		t.Errorf("Expected appdb owned by postgres, got %v", st.Databases)
	}
	if !st.Roles["postgres"] || st.Roles["nodeapp"] {
		t.Errorf("Unexpected roles: %v", st.Roles)
	}
	if st.HBAFile != "/etc/postgresql/16/main/pg_hba.conf" {
		t.Errorf("Unexpected hba file: %q", st.HBAFile)
	}
	if !st.FileMatches(st.HBAFile, "local all postgres peer\n") {
		t.Errorf("Expected hba content to be read, got %q", st.Files[st.HBAFile])
	}
	if !st.Firewall.Installed || !st.Firewall.Active || !st.Firewall.Rules["OpenSSH"] {
		t.Errorf("Unexpected firewall: %+v", st.Firewall)
	}
}

func TestDiscover_PostgresDown(t *testing.T) {
	sim := NewSimulated("web1")
	sim.Respond(CommandLine("sh", "-c", `command -v "$1"`, "sh", "psql"), "/usr/bin/psql\n")
	sim.FailOn("sudo -u postgres psql", "could not connect to server")

	st, err := NewDiscoverer(zerolog.Nop()).Discover(context.Background(), sim, Probe{
		Binaries: []string{"psql"},
		Postgres: true,
	})
	if err != nil {
		t.Fatalf("Expected a stopped server not to fail discovery, got: %v", err)
	}
	if len(st.Databases) != 0 || len(st.Roles) != 0 {
		t.Errorf("Expected no databases or roles, got %v %v", st.Databases, st.Roles)
	}
}

func TestDiscover_SkipsAbsentTools(t *testing.T) {
	sim := NewSimulated("web1")
	sim.FailOn("sh -c", "")

	_, err := NewDiscoverer(zerolog.Nop()).Discover(context.Background(), sim, Probe{
		Binaries: []string{"psql", "ufw"},
		Postgres: true,
		Firewall: true,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sim.Ran("sudo -u postgres") || sim.Ran("ufw status") {
		t.Errorf("Expected no postgres or ufw probes, got %v", sim.Commands())
	}
}
