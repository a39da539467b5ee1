package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
)

// Paths holds every host path derived from the configuration.
type Paths struct {
	Home           string
	EnvFile        string
	Ecosystem      string
	ErrorLog       string
	OutLog         string
	CombinedLog    string
	NginxSite      string
	NginxEnabled   string
	NginxDefault   string
	Logrotate      string
	Fail2BanJail   string
	BackupScript   string
	StatusScript   string
	UpdateScript   string
	BackupCron     string
	PM2StartupUnit string
}

// Paths derives host paths from the configuration.
func (c *ProvisioningConfig) Paths() Paths {
	name := c.App.Name
	return Paths{
		Home:           path.Join("/home", c.App.User),
		EnvFile:        path.Join(c.App.Dir, ".env"),
		Ecosystem:      path.Join(c.App.Dir, "ecosystem.config.js"),
		ErrorLog:       path.Join(c.App.LogDir, "error.log"),
		OutLog:         path.Join(c.App.LogDir, "out.log"),
		CombinedLog:    path.Join(c.App.LogDir, "combined.log"),
		NginxSite:      path.Join("/etc/nginx/sites-available", name),
		NginxEnabled:   path.Join("/etc/nginx/sites-enabled", name),
		NginxDefault:   "/etc/nginx/sites-enabled/default",
		Logrotate:      path.Join("/etc/logrotate.d", name),
		Fail2BanJail:   "/etc/fail2ban/jail.local",
		BackupScript:   path.Join("/usr/local/bin", name+"-backup"),
		StatusScript:   path.Join("/usr/local/bin", name+"-status"),
		UpdateScript:   path.Join("/usr/local/bin", name+"-update"),
		BackupCron:     path.Join("/etc/cron.d", name+"-backup"),
		PM2StartupUnit: "pm2-" + c.App.User,
	}
}

// DatabaseURL returns the connection string written to the env file.
// Credentials are percent-encoded, so reserved characters in the password
// survive a URL parse.
func (c *ProvisioningConfig) DatabaseURL() string {
	return fmt.Sprintf("postgresql://%s@%s/%s",
		url.UserPassword(c.Database.User, c.Database.Password).String(),
		net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port)),
		c.Database.Name)
}
