package config

import (
	"path"

	"github.com/spf13/viper"
)

// Built-in defaults. Directory and account defaults that follow the
// application name are filled in by complete.
const (
	DefaultAppName           = "nodeapp"
	DefaultScript            = "server.js"
	DefaultPort              = 3000
	DefaultNodeEnv           = "production"
	DefaultNodeVersion       = "20"
	DefaultMaxMemory         = "500M"
	DefaultDatabaseHost      = "localhost"
	DefaultDatabasePort      = 5432
	DefaultDatabasePassword  = "change-this-password"
	DefaultSessionSecret     = "change-this-secret-in-production"
	DefaultServerName        = "_"
	DefaultClientMaxBodySize = "10M"
	DefaultBanTime           = 3600
	DefaultFindTime          = 600
	DefaultMaxRetry          = 5
	DefaultLogRetention      = 30
	DefaultBackupRetention   = 7
	DefaultBackupSchedule    = "0 2 * * *"
	DefaultAptMaxAgeHours    = 24
)

// Default returns a fully populated configuration for DefaultAppName.
func Default() *ProvisioningConfig {
	cfg := &ProvisioningConfig{}
	applyStaticDefaults(cfg)
	cfg.complete()
	return cfg
}

func applyStaticDefaults(cfg *ProvisioningConfig) {
	cfg.App = AppConfig{
		Name:          DefaultAppName,
		Script:        DefaultScript,
		Port:          DefaultPort,
		Env:           DefaultNodeEnv,
		Instances:     1,
		MaxMemory:     DefaultMaxMemory,
		SessionSecret: DefaultSessionSecret,
	}
	cfg.Database = DatabaseConfig{
		Password: DefaultDatabasePassword,
		Host:     DefaultDatabaseHost,
		Port:     DefaultDatabasePort,
	}
	cfg.Node = NodeConfig{Version: DefaultNodeVersion}
	cfg.Nginx = NginxConfig{ServerName: DefaultServerName, ClientMaxBodySize: DefaultClientMaxBodySize}
	cfg.Fail2Ban = Fail2BanConfig{BanTime: DefaultBanTime, FindTime: DefaultFindTime, MaxRetry: DefaultMaxRetry}
	cfg.Logs = LogsConfig{Retention: DefaultLogRetention}
	cfg.Backup = BackupConfig{RetentionDays: DefaultBackupRetention, Schedule: DefaultBackupSchedule}
	cfg.System = SystemConfig{AptMaxAgeHours: DefaultAptMaxAgeHours}
}

// setDefaults registers every key with viper. Keys must be known to viper
// for environment variables to reach Unmarshal.
func setDefaults(v *viper.Viper) {
	d := &ProvisioningConfig{}
	applyStaticDefaults(d)

	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.user", "")
	v.SetDefault("app.dir", "")
	v.SetDefault("app.log_dir", "")
	v.SetDefault("app.script", d.App.Script)
	v.SetDefault("app.port", d.App.Port)
	v.SetDefault("app.env", d.App.Env)
	v.SetDefault("app.instances", d.App.Instances)
	v.SetDefault("app.max_memory", d.App.MaxMemory)
	v.SetDefault("app.session_secret", d.App.SessionSecret)

	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)

	v.SetDefault("node.version", d.Node.Version)

	v.SetDefault("nginx.server_name", d.Nginx.ServerName)
	v.SetDefault("nginx.client_max_body_size", d.Nginx.ClientMaxBodySize)

	v.SetDefault("fail2ban.bantime", d.Fail2Ban.BanTime)
	v.SetDefault("fail2ban.findtime", d.Fail2Ban.FindTime)
	v.SetDefault("fail2ban.maxretry", d.Fail2Ban.MaxRetry)

	v.SetDefault("logs.retention", d.Logs.Retention)

	v.SetDefault("backup.dir", "")
	v.SetDefault("backup.retention_days", d.Backup.RetentionDays)
	v.SetDefault("backup.schedule", d.Backup.Schedule)

	v.SetDefault("system.apt_max_age_hours", d.System.AptMaxAgeHours)

	v.SetDefault("templates.dir", "")
	v.SetDefault("policy.dir", "")
}

// complete fills values derived from the application name.
func (c *ProvisioningConfig) complete() {
	name := c.App.Name
	if c.App.User == "" {
		c.App.User = name
	}
	if c.App.Dir == "" {
		c.App.Dir = path.Join("/var/www", name)
	}
	if c.App.LogDir == "" {
		c.App.LogDir = path.Join("/var/log", name)
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = path.Join("/var/backups", name)
	}
	if c.Database.Name == "" {
		c.Database.Name = pgName(name) + "_production"
	}
	if c.Database.User == "" {
		c.Database.User = pgName(name) + "_user"
	}
}

// pgName turns an application name into a PostgreSQL-friendly identifier.
func pgName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c == '-' || c == '.' {
			b[i] = '_'
		}
	}
	return string(b)
}
