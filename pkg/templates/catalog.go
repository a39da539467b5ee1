package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/openfroyo/hostkit/pkg/config"
)

// Built-in template names.
const (
	NameEnv          = "env"
	NameEcosystem    = "pm2-ecosystem"
	NameNginxSite    = "nginx-site"
	NameLogrotate    = "logrotate"
	NameFail2BanJail = "fail2ban-jail"
	NameBackupScript = "backup-script"
	NameStatusScript = "status-script"
	NameUpdateScript = "update-script"
	NameBackupCron   = "backup-cron"
)

// OverridePattern selects override files in a templates directory.
const OverridePattern = "**/*.tmpl"

//go:embed files/*.tmpl
var builtinFS embed.FS

// builtins describes where each built-in template lands. Bodies come from
// files/<name>.tmpl.
var builtins = []Template{
	{Name: NameEnv, Path: "{{ .Paths.EnvFile }}", Owner: "{{ .App.User }}", Mode: 0o600, Kind: KindEnv},
	{Name: NameEcosystem, Path: "{{ .Paths.Ecosystem }}", Owner: "{{ .App.User }}", Mode: 0o644, Kind: KindPlain},
	{Name: NameNginxSite, Path: "{{ .Paths.NginxSite }}", Owner: "root", Mode: 0o644, Kind: KindPlain},
	{Name: NameLogrotate, Path: "{{ .Paths.Logrotate }}", Owner: "root", Mode: 0o644, Kind: KindPlain},
	{Name: NameFail2BanJail, Path: "{{ .Paths.Fail2BanJail }}", Owner: "root", Mode: 0o644, Kind: KindPlain},
	{Name: NameBackupScript, Path: "{{ .Paths.BackupScript }}", Owner: "root", Mode: 0o750, Kind: KindShell},
	{Name: NameStatusScript, Path: "{{ .Paths.StatusScript }}", Owner: "root", Mode: 0o755, Kind: KindShell},
	{Name: NameUpdateScript, Path: "{{ .Paths.UpdateScript }}", Owner: "root", Mode: 0o750, Kind: KindShell},
	{Name: NameBackupCron, Path: "{{ .Paths.BackupCron }}", Owner: "root", Mode: 0o644, Kind: KindPlain},
}

// Catalog holds the templates a provisioning run writes.
type Catalog struct {
	templates []Template
	byName    map[string]int
	overrides map[string]string
}

// NewCatalog returns the built-in templates.
func NewCatalog() *Catalog {
	c := &Catalog{
		byName:    make(map[string]int, len(builtins)),
		overrides: make(map[string]string),
	}
	for i, t := range builtins {
		body, err := fs.ReadFile(builtinFS, "files/"+t.Name+".tmpl")
		if err != nil {
			panic(fmt.Sprintf("built-in template %s is missing: %v", t.Name, err))
		}
		t.Body = string(body)
		c.templates = append(c.templates, t)
		c.byName[t.Name] = i
	}
	return c
}

// LoadCatalog returns the built-in templates with bodies replaced by any
// <name>.tmpl found under dir. An empty dir means no overrides. Override
// files must be named after a built-in template.
func LoadCatalog(dir string) (*Catalog, error) {
	c := NewCatalog()
	if dir == "" {
		return c, nil
	}

	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, OverridePattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q in %s: %w", OverridePattern, dir, err)
	}
	sort.Strings(matches)

	for _, match := range matches {
		name := strings.TrimSuffix(path.Base(match), ".tmpl")
		i, ok := c.byName[name]
		if !ok {
			return nil, fmt.Errorf("override %s does not name a template (known: %s)", match, strings.Join(c.Names(), ", "))
		}
		if prev, dup := c.overrides[name]; dup {
			return nil, fmt.Errorf("template %s is overridden twice: %s and %s", name, prev, match)
		}

		body, err := fs.ReadFile(fsys, match)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", match, err)
		}
		c.templates[i].Body = string(body)
		c.overrides[name] = match
	}
	return c, nil
}

// Names returns template names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for _, t := range c.templates {
		names = append(names, t.Name)
	}
	return names
}

// Get returns a template by name.
func (c *Catalog) Get(name string) (Template, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Template{}, false
	}
	return c.templates[i], true
}

// Templates returns every template in catalog order.
func (c *Catalog) Templates() []Template {
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Overridden reports the override file used for name, if any.
func (c *Catalog) Overridden(name string) (string, bool) {
	f, ok := c.overrides[name]
	return f, ok
}

// Render renders the named template.
func (c *Catalog) Render(name string, cfg *config.ProvisioningConfig) (RenderedFile, error) {
	t, ok := c.Get(name)
	if !ok {
		return RenderedFile{}, fmt.Errorf("unknown template %q", name)
	}
	return Render(t, cfg)
}

// RenderAll renders every template, stopping at the first error. It is
// the dry render run during validation.
func (c *Catalog) RenderAll(cfg *config.ProvisioningConfig) ([]RenderedFile, error) {
	files := make([]RenderedFile, 0, len(c.templates))
	for _, t := range c.templates {
		f, err := Render(t, cfg)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}
