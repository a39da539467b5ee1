package config

import (
	"fmt"
	"strings"
)

// ProvisioningConfig is everything a provisioning run needs to know about
// the application and the host. It is loaded once and never mutated.
type ProvisioningConfig struct {
	// App describes the Node.js application.
	App AppConfig `mapstructure:"app" json:"app" yaml:"app"`

	// Database describes the PostgreSQL database and role.
	Database DatabaseConfig `mapstructure:"database" json:"database" yaml:"database"`

	// Node selects the Node.js release line.
	Node NodeConfig `mapstructure:"node" json:"node" yaml:"node"`

	// Nginx configures the reverse proxy.
	Nginx NginxConfig `mapstructure:"nginx" json:"nginx" yaml:"nginx"`

	// Fail2Ban configures the intrusion-prevention jail.
	Fail2Ban Fail2BanConfig `mapstructure:"fail2ban" json:"fail2ban" yaml:"fail2ban"`

	// Logs configures log rotation.
	Logs LogsConfig `mapstructure:"logs" json:"logs" yaml:"logs"`

	// Backup configures the backup script and its schedule.
	Backup BackupConfig `mapstructure:"backup" json:"backup" yaml:"backup"`

	// System configures package maintenance.
	System SystemConfig `mapstructure:"system" json:"system" yaml:"system"`

	// Templates points at optional template overrides.
	Templates TemplatesConfig `mapstructure:"templates" json:"templates" yaml:"templates"`

	// Policy points at optional extra rego policies.
	Policy PolicyConfig `mapstructure:"policy" json:"policy" yaml:"policy"`
}

// AppConfig describes the application and the account it runs as.
type AppConfig struct {
	// Name names the PM2 process, the nginx site and the helper scripts.
	Name string `mapstructure:"name" json:"name" yaml:"name" validate:"required,unixname"`

	// User is the system account that owns and runs the application.
	User string `mapstructure:"user" json:"user" yaml:"user" validate:"required,unixname"`

	// Dir is where the application code lives.
	Dir string `mapstructure:"dir" json:"dir" yaml:"dir" validate:"required,abspath"`

	// LogDir receives the PM2 log files.
	LogDir string `mapstructure:"log_dir" json:"log_dir" yaml:"log_dir" validate:"required,abspath"`

	// Script is the entry point, relative to Dir.
	Script string `mapstructure:"script" json:"script" yaml:"script" validate:"required"`

	// Port is the port the application listens on behind nginx.
	Port int `mapstructure:"port" json:"port" yaml:"port" validate:"required,min=1,max=65535"`

	// Env is the NODE_ENV value.
	Env string `mapstructure:"env" json:"env" yaml:"env" validate:"required"`

	// Instances is the PM2 instance count.
	Instances int `mapstructure:"instances" json:"instances" yaml:"instances" validate:"min=1"`

	// MaxMemory is the PM2 max_memory_restart threshold, e.g. 500M.
	MaxMemory string `mapstructure:"max_memory" json:"max_memory" yaml:"max_memory" validate:"required,memsize"`

	// SessionSecret is written to the env file as a placeholder to replace.
	SessionSecret string `mapstructure:"session_secret" json:"session_secret" yaml:"session_secret" validate:"required"`
}

// DatabaseConfig describes the application's PostgreSQL database.
type DatabaseConfig struct {
	Name     string `mapstructure:"name" json:"name" yaml:"name" validate:"required,pgident"`
	User     string `mapstructure:"user" json:"user" yaml:"user" validate:"required,pgident"`
	Password string `mapstructure:"password" json:"password" yaml:"password" validate:"required"`
	Host     string `mapstructure:"host" json:"host" yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port" validate:"required,min=1,max=65535"`
}

// NodeConfig selects the Node.js version.
type NodeConfig struct {
	// Version is the NodeSource major release, e.g. "20".
	Version string `mapstructure:"version" json:"version" yaml:"version" validate:"required,numeric"`
}

// NginxConfig configures the site.
type NginxConfig struct {
	// ServerName is the nginx server_name; "_" matches any host.
	ServerName string `mapstructure:"server_name" json:"server_name" yaml:"server_name" validate:"required,servernames"`

	// ClientMaxBodySize is the request body limit, e.g. 10M.
	ClientMaxBodySize string `mapstructure:"client_max_body_size" json:"client_max_body_size" yaml:"client_max_body_size" validate:"required,memsize"`
}

// Fail2BanConfig configures jail.local.
type Fail2BanConfig struct {
	// BanTime is how long an offending address is banned, in seconds.
	BanTime int `mapstructure:"bantime" json:"bantime" yaml:"bantime" validate:"min=1"`

	// FindTime is the window in which MaxRetry failures cause a ban, in seconds.
	FindTime int `mapstructure:"findtime" json:"findtime" yaml:"findtime" validate:"min=1"`

	MaxRetry int `mapstructure:"maxretry" json:"maxretry" yaml:"maxretry" validate:"min=1"`
}

// LogsConfig configures logrotate.
type LogsConfig struct {
	// Retention is the number of daily rotations kept.
	Retention int `mapstructure:"retention" json:"retention" yaml:"retention" validate:"min=1"`
}

// BackupConfig configures backups.
type BackupConfig struct {
	Dir string `mapstructure:"dir" json:"dir" yaml:"dir" validate:"required,abspath"`

	// RetentionDays is how long backup archives are kept.
	RetentionDays int `mapstructure:"retention_days" json:"retention_days" yaml:"retention_days" validate:"min=1"`

	// Schedule is the cron expression for the nightly backup.
	Schedule string `mapstructure:"schedule" json:"schedule" yaml:"schedule" validate:"required,cronspec"`
}

// SystemConfig configures package maintenance.
type SystemConfig struct {
	// AptMaxAgeHours is how old the apt lists may be before system-update
	// runs apt-get update and upgrade again. A re-run inside the window is
	// a no-op; after it the host is upgraded.
	AptMaxAgeHours int `mapstructure:"apt_max_age_hours" json:"apt_max_age_hours" yaml:"apt_max_age_hours" validate:"min=1"`
}

// TemplatesConfig configures template overrides.
type TemplatesConfig struct {
	// Dir holds <name>.tmpl files that replace built-in template bodies.
	Dir string `mapstructure:"dir" json:"dir,omitempty" yaml:"dir,omitempty" validate:"omitempty,abspath"`
}

// PolicyConfig configures extra policies.
type PolicyConfig struct {
	// Dir holds extra .rego files evaluated alongside the built-in policies.
	Dir string `mapstructure:"dir" json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Redacted returns a copy with secrets masked, safe to log or print.
func (c ProvisioningConfig) Redacted() ProvisioningConfig {
	const mask = "********"
	if c.Database.Password != "" {
		c.Database.Password = mask
	}
	if c.App.SessionSecret != "" {
		c.App.SessionSecret = mask
	}
	return c
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the config key of the error (e.g., "database.user").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is "error" or "warning".
	Severity string `json:"severity"`
}

func (e ValidationError) Error() string {
	var loc string
	switch {
	case e.File != "" && e.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", e.File, e.Line, e.Column)
	case e.Path != "":
		loc = e.Path + ": "
	}
	return loc + e.Message
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
