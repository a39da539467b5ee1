package steps

import (
	"fmt"
	"time"

	"github.com/openfroyo/hostkit/pkg/config"
	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/host"
	"github.com/openfroyo/hostkit/pkg/templates"
)

// Step IDs.
const (
	IDSystemUpdate       = "system-update"
	IDEssentialTools     = "essential-tools"
	IDNodeJS             = "nodejs"
	IDPostgreSQL         = "postgresql"
	IDDatabaseRole       = "database-role"
	IDDatabase           = "database"
	IDDatabaseGrants     = "database-grants"
	IDDatabaseClientAuth = "database-client-auth"
	IDNginx              = "nginx"
	IDPM2                = "pm2"
	IDAppUser            = "app-user"
	IDDirectories        = "directories"
	IDFirewall           = "firewall"
	IDEnvFile            = "env-file"
	IDEcosystem          = "pm2-ecosystem"
	IDNginxSite          = "nginx-site"
	IDBackupScript       = "backup-script"
	IDStatusScript       = "status-script"
	IDUpdateScript       = "update-script"
	IDLogrotate          = "logrotate"
	IDFail2Ban           = "fail2ban"
	IDFail2BanJail       = "fail2ban-jail"
	IDPM2Startup         = "pm2-startup"
	IDBackupSchedule     = "backup-schedule"
)

// EssentialPackages are installed by the essential-tools step.
var EssentialPackages = []string{
	"curl", "wget", "git", "build-essential", "ufw", "ca-certificates", "gnupg", "unzip",
}

// Registry is the declared set of provisioning steps for one configuration.
type Registry struct {
	cfg   *config.ProvisioningConfig
	paths config.Paths
	files []templates.RenderedFile
	byTpl map[string]templates.RenderedFile
	steps []engine.Step
}

// NewRegistry renders every template in catalog for cfg and declares the
// steps that bring a host to that configuration. A template that fails to
// render fails the registry.
func NewRegistry(cfg *config.ProvisioningConfig, catalog *templates.Catalog) (*Registry, error) {
	files, err := catalog.RenderAll(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render templates: %w", err)
	}

	r := &Registry{
		cfg:   cfg,
		paths: cfg.Paths(),
		files: files,
		byTpl: make(map[string]templates.RenderedFile, len(files)),
	}
	for _, f := range files {
		r.byTpl[f.Name] = f
	}

	r.steps = []engine.Step{
		r.systemUpdate(),
		r.essentialTools(),
		r.nodeJS(),
		r.postgreSQL(),
		r.databaseRole(),
		r.database(),
		r.databaseGrants(),
		r.databaseClientAuth(),
		r.nginx(),
		r.pm2(),
		r.appUser(),
		r.directories(),
		r.firewall(),
		r.envFile(),
		r.fileStep(IDEcosystem, templates.NameEcosystem, "Write the PM2 ecosystem file", []string{IDDirectories}),
		r.nginxSite(),
		r.fileStep(IDBackupScript, templates.NameBackupScript, "Install the backup script", []string{IDDatabase, IDDirectories}),
		r.fileStep(IDStatusScript, templates.NameStatusScript, "Install the status script", []string{IDPM2, IDNginx}),
		r.fileStep(IDUpdateScript, templates.NameUpdateScript, "Install the update script", []string{IDPM2, IDDirectories}),
		r.fileStep(IDLogrotate, templates.NameLogrotate, "Configure log rotation", []string{IDDirectories}),
		r.fail2ban(),
		r.fail2banJail(),
		r.pm2Startup(),
		r.fileStep(IDBackupSchedule, templates.NameBackupCron, "Schedule the nightly backup", []string{IDBackupScript}),
	}
	return r, nil
}

// Steps returns the steps in declared order.
func (r *Registry) Steps() []engine.Step {
	out := make([]engine.Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Lookup returns the step with id.
func (r *Registry) Lookup(id string) (engine.Step, bool) {
	for _, s := range r.steps {
		if s.ID == id {
			return s, true
		}
	}
	return engine.Step{}, false
}

// Files returns the rendered files in catalog order.
func (r *Registry) Files() []templates.RenderedFile {
	out := make([]templates.RenderedFile, len(r.files))
	copy(out, r.files)
	return out
}

// Probe lists what the preconditions read, for host discovery.
func (r *Registry) Probe() host.Probe {
	p := host.Probe{
		Packages: append(append([]string(nil), EssentialPackages...),
			"nodejs", "postgresql", "postgresql-contrib", "nginx", "fail2ban"),
		Binaries: []string{"curl", "git", "ufw", "node", "npm", "pm2", "psql", "nginx"},
		Users:    []string{r.cfg.App.User},
		Paths: []string{
			r.cfg.App.Dir, r.cfg.App.LogDir, r.cfg.Backup.Dir,
			r.paths.NginxEnabled, r.paths.NginxDefault,
		},
		Services: []string{
			"postgresql", "nginx", "fail2ban", r.paths.PM2StartupUnit,
		},
		Postgres:  true,
		Firewall:  true,
		AptMaxAge: time.Duration(r.cfg.System.AptMaxAgeHours) * time.Hour,
	}
	for _, f := range r.files {
		p.Files = append(p.Files, f.Path)
	}
	return p
}

// ManualSteps returns the operator follow-ups for a provisioned host.
func (r *Registry) ManualSteps() []engine.ManualStep {
	app := r.cfg.App
	return []engine.ManualStep{
		{
			Title:  "Upload the application",
			Detail: fmt.Sprintf("Copy the code into %s, then run npm install --omit=dev as %s.", app.Dir, app.User),
		},
		{
			Title:  "Replace default secrets",
			Detail: fmt.Sprintf("Edit %s and change SESSION_SECRET and DB_PASSWORD; update the role with ALTER ROLE if the password changes.", r.paths.EnvFile),
		},
		{
			Title:  "Configure TLS",
			Detail: "Point DNS at this host and run certbot --nginx -d <domain>.",
		},
		{
			Title:  "Set the server name",
			Detail: fmt.Sprintf("Set server_name in %s (currently %q) and reload nginx.", r.paths.NginxSite, r.cfg.Nginx.ServerName),
		},
		{
			Title:  "Start the application",
			Detail: fmt.Sprintf("As %s, run pm2 start %s and pm2 save.", app.User, r.paths.Ecosystem),
		},
	}
}

func (r *Registry) file(name string) templates.RenderedFile {
	f, ok := r.byTpl[name]
	if !ok {
		panic(fmt.Sprintf("template %s was not rendered", name))
	}
	return f
}
