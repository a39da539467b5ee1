package templates

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/joho/godotenv"
	"mvdan.cc/sh/v3/syntax"

	"github.com/openfroyo/hostkit/pkg/config"
)

// Kind selects how values are embedded and which check runs after
// rendering.
type Kind string

const (
	// KindEnv is a dotenv file. Values are inserted verbatim and must
	// survive a godotenv parse unchanged.
	KindEnv Kind = "env"

	// KindShell is a bash script. Parameters appear only as assignments
	// quoted with shquote, and the output must parse.
	KindShell Kind = "shell"

	// KindPlain is any other config format.
	KindPlain Kind = "plain"
)

// Template is a named blueprint for one file on the host. Path and Owner
// are templates themselves.
type Template struct {
	Name  string      `json:"name" yaml:"name"`
	Path  string      `json:"path" yaml:"path"`
	Owner string      `json:"owner" yaml:"owner"`
	Mode  os.FileMode `json:"mode" yaml:"mode"`
	Kind  Kind        `json:"kind" yaml:"kind"`
	Body  string      `json:"-" yaml:"-"`
}

// RenderedFile is a template bound to a configuration.
type RenderedFile struct {
	Name    string      `json:"name" yaml:"name"`
	Path    string      `json:"path" yaml:"path"`
	Content string      `json:"content" yaml:"content"`
	Owner   string      `json:"owner" yaml:"owner"`
	Mode    os.FileMode `json:"mode" yaml:"mode"`
	Kind    Kind        `json:"kind" yaml:"kind"`
}

// Data is what templates see as the dot.
type Data struct {
	App      config.AppConfig
	Database config.DatabaseConfig
	Node     config.NodeConfig
	Nginx    config.NginxConfig
	Fail2Ban config.Fail2BanConfig
	Logs     config.LogsConfig
	Backup   config.BackupConfig
	Paths    config.Paths

	// DatabaseURL is the connection string for the env file.
	DatabaseURL string
}

// NewData binds cfg and its derived values.
func NewData(cfg *config.ProvisioningConfig) Data {
	return Data{
		App:         cfg.App,
		Database:    cfg.Database,
		Node:        cfg.Node,
		Nginx:       cfg.Nginx,
		Fail2Ban:    cfg.Fail2Ban,
		Logs:        cfg.Logs,
		Backup:      cfg.Backup,
		Paths:       cfg.Paths(),
		DatabaseURL: cfg.DatabaseURL(),
	}
}

// EnvValues returns the variables the env file carries and the values
// they must parse back to.
func EnvValues(cfg *config.ProvisioningConfig) map[string]string {
	return map[string]string{
		"NODE_ENV":       cfg.App.Env,
		"PORT":           strconv.Itoa(cfg.App.Port),
		"DATABASE_URL":   cfg.DatabaseURL(),
		"DB_HOST":        cfg.Database.Host,
		"DB_PORT":        strconv.Itoa(cfg.Database.Port),
		"DB_NAME":        cfg.Database.Name,
		"DB_USER":        cfg.Database.User,
		"DB_PASSWORD":    cfg.Database.Password,
		"SESSION_SECRET": cfg.App.SessionSecret,
	}
}

// Render binds t to cfg. It is pure: the same inputs always give the same
// file, and nothing outside the arguments is read.
func Render(t Template, cfg *config.ProvisioningConfig) (RenderedFile, error) {
	data := NewData(cfg)

	content, err := execute(t.Name, t.Body, data)
	if err != nil {
		return RenderedFile{}, err
	}
	target, err := execute(t.Name+".path", t.Path, data)
	if err != nil {
		return RenderedFile{}, err
	}
	owner, err := execute(t.Name+".owner", t.Owner, data)
	if err != nil {
		return RenderedFile{}, err
	}

	target = strings.TrimSpace(target)
	owner = strings.TrimSpace(owner)
	if !path.IsAbs(target) || path.Clean(target) != target {
		return RenderedFile{}, fmt.Errorf("template %s: target %q is not a clean absolute path", t.Name, target)
	}
	if owner == "" {
		return RenderedFile{}, fmt.Errorf("template %s: owner is empty", t.Name)
	}

	f := RenderedFile{
		Name:    t.Name,
		Path:    target,
		Content: content,
		Owner:   owner,
		Mode:    t.Mode,
		Kind:    t.Kind,
	}
	if err := check(f, cfg); err != nil {
		return RenderedFile{}, fmt.Errorf("template %s: %w", t.Name, err)
	}
	return f, nil
}

func execute(name, text string, data Data) (string, error) {
	tmpl, err := template.New(name).
		Funcs(FuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

// check verifies the rendered output for its kind.
func check(f RenderedFile, cfg *config.ProvisioningConfig) error {
	switch f.Kind {
	case KindShell:
		if _, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(f.Content), f.Path); err != nil {
			return fmt.Errorf("rendered script does not parse: %w", err)
		}
	case KindEnv:
		parsed, err := godotenv.Unmarshal(f.Content)
		if err != nil {
			return fmt.Errorf("rendered env file does not parse: %w", err)
		}
		want := EnvValues(cfg)
		keys := make([]string, 0, len(want))
		for key := range want {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			// Values are never printed; they may be secrets.
			if got, ok := parsed[key]; ok && got != want[key] {
				return fmt.Errorf("value of %s changes when the env file is parsed; avoid quotes, '#', '$' and newlines", key)
			}
		}
	case KindPlain:
	default:
		return fmt.Errorf("unknown kind %q", f.Kind)
	}
	return nil
}
