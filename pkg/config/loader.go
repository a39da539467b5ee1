package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HOSTKIT_APP_PORT.
const EnvPrefix = "HOSTKIT"

// DefaultEnvFile is loaded when no env file is named and it exists.
const DefaultEnvFile = ".env"

// flagKeys maps the flags registered by RegisterFlags to config keys.
var flagKeys = map[string]string{
	"app-name":     "app.name",
	"app-user":     "app.user",
	"app-dir":      "app.dir",
	"port":         "app.port",
	"node-version": "node.version",
	"server-name":  "nginx.server_name",
	"db-name":      "database.name",
	"db-user":      "database.user",
	"db-host":      "database.host",
	"db-port":      "database.port",
	"apt-max-age":  "system.apt_max_age_hours",
	"templates":    "templates.dir",
	"policy-dir":   "policy.dir",
}

// RegisterFlags adds the flags that override configuration keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("app-name", DefaultAppName, "application name")
	fs.String("app-user", "", "system user that runs the application (default: app name)")
	fs.String("app-dir", "", "application directory (default: /var/www/<app>)")
	fs.Int("port", DefaultPort, "port the application listens on")
	fs.String("node-version", DefaultNodeVersion, "Node.js major version")
	fs.String("server-name", DefaultServerName, "nginx server_name")
	fs.String("db-name", "", "database name (default: <app>_production)")
	fs.String("db-user", "", "database role (default: <app>_user)")
	fs.String("db-host", DefaultDatabaseHost, "database host")
	fs.Int("db-port", DefaultDatabasePort, "database port")
	fs.Int("apt-max-age", DefaultAptMaxAgeHours, "hours before system-update refreshes and upgrades packages again")
	fs.String("templates", "", "directory of template overrides")
	fs.String("policy-dir", "", "directory of extra rego policies")
}

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// File is a .cue, .yaml, .json or .toml configuration file. Optional.
	File string

	// EnvFiles are dotenv files loaded before the environment is read.
	// When empty, DefaultEnvFile is loaded if present.
	EnvFiles []string

	// Flags overrides keys registered by RegisterFlags. Only flags the
	// user changed take effect.
	Flags *pflag.FlagSet
}

// Loader assembles a ProvisioningConfig from defaults, a file, the
// environment and flags, in increasing precedence.
type Loader struct {
	logger zerolog.Logger
	parser *CUEParser
}

// NewLoader creates a configuration loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "config").Logger(),
		parser: NewCUEParser(),
	}
}

// Load reads, merges and validates the configuration. The returned value
// is complete: derived defaults are filled and every field is valid.
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (*ProvisioningConfig, error) {
	v := viper.New()
	setDefaults(v)

	if err := l.loadEnvFiles(opts.EnvFiles); err != nil {
		return nil, err
	}

	if opts.File != "" {
		if err := l.readFile(v, opts.File); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range flagKeys {
			f := opts.Flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg ProvisioningConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.complete()

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := l.parser.SchemaRegistry().ValidateAgainstSchema(ctx, ProvisioningSchema, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	redacted := cfg.Redacted()
	l.logger.Debug().
		Str("file", opts.File).
		Str("app", redacted.App.Name).
		Str("user", redacted.App.User).
		Int("port", redacted.App.Port).
		Str("database", redacted.Database.Name).
		Msg("Configuration loaded")

	return &cfg, nil
}

func (l *Loader) loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("failed to stat %s: %w", DefaultEnvFile, err)
		}
		files = []string{DefaultEnvFile}
	}

	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files %s: %w", strings.Join(files, ", "), err)
	}
	l.logger.Debug().Strs("files", files).Msg("Env files loaded")
	return nil
}

func (l *Loader) readFile(v *viper.Viper, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		values, err := l.parser.ParseFile(path)
		if err != nil {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
		if err := v.MergeConfigMap(values); err != nil {
			return fmt.Errorf("failed to merge %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}
