package templates

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/openfroyo/hostkit/pkg/config"
)

func writeOverride(t *testing.T, dir, rel, body string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", full, err)
	}
}

func TestNewCatalog(t *testing.T) {
	c := NewCatalog()

	want := []string{
		NameEnv, NameEcosystem, NameNginxSite, NameLogrotate, NameFail2BanJail,
		NameBackupScript, NameStatusScript, NameUpdateScript, NameBackupCron,
	}
	if got := c.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected names %v, got %v", want, got)
	}

	for _, tmpl := range c.Templates() {
		if strings.TrimSpace(tmpl.Body) == "" {
			t.Errorf("Expected built-in %s to have a body", tmpl.Name)
		}
		if _, ok := c.Overridden(tmpl.Name); ok {
			t.Errorf("Expected %s not to be overridden", tmpl.Name)
		}
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected unknown template lookup to fail")
	}
	if _, err := c.Render("missing", config.Default()); err == nil {
		t.Error("Expected rendering an unknown template to fail")
	}
}

func TestCatalog_TemplatesIsACopy(t *testing.T) {
	c := NewCatalog()

	list := c.Templates()
	list[0].Body = "mutated"

	tmpl, _ := c.Get(list[0].Name)
	if tmpl.Body == "mutated" {
		t.Error("Expected Templates to return a copy")
	}
}

func TestCatalog_RenderAll(t *testing.T) {
	files, err := NewCatalog().RenderAll(config.Default())
	if err != nil {
		t.Fatalf("Failed to render catalog: %v", err)
	}
	if len(files) != 9 {
		t.Fatalf("Expected 9 files, got %d", len(files))
	}

	seen := make(map[string]bool)
	for _, f := range files {
		if seen[f.Path] {
			t.Errorf("Expected unique targets, %s appears twice", f.Path)
		}
		seen[f.Path] = true
	}
}

func TestCatalog_RenderAllStopsAtFirstError(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Password = "has $dollar"

	if _, err := NewCatalog().RenderAll(cfg); err == nil {
		t.Error("Expected the env check to fail the dry render")
	}
}

func TestLoadCatalog_Empty(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	if len(c.Names()) != 9 {
		t.Errorf("Expected 9 templates, got %d", len(c.Names()))
	}
}

func TestLoadCatalog_Overrides(t *testing.T) {
	dir := t.TempDir()
	writeOverride(t, dir, "nginx-site.tmpl", "server { listen 8080; proxy_pass http://localhost:{{ .App.Port }}; }\n")
	writeOverride(t, dir, "scripts/status-script.tmpl", "#!/usr/bin/env bash\necho {{ shquote .App.Name }}\n")
	writeOverride(t, dir, "README.md", "ignored")

	c, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	site, err := c.Render(NameNginxSite, config.Default())
	if err != nil {
		t.Fatalf("Failed to render override: %v", err)
	}
	if !strings.Contains(site.Content, "listen 8080;") {
		t.Errorf("Expected override body, got %q", site.Content)
	}
	if site.Path != "/etc/nginx/sites-available/nodeapp" || site.Mode != 0o644 {
		t.Errorf("Expected override to keep target and mode, got %s %o", site.Path, site.Mode)
	}

	if src, ok := c.Overridden(NameStatusScript); !ok || src != "scripts/status-script.tmpl" {
		t.Errorf("Expected nested override to be found, got %q %v", src, ok)
	}
	if _, ok := c.Overridden(NameBackupScript); ok {
		t.Error("Expected backup script to stay built-in")
	}
}

func TestLoadCatalog_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"unknown name", map[string]string{"nginx.tmpl": "x"}},
		{"duplicate", map[string]string{"a/env.tmpl": "x", "b/env.tmpl": "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for rel, body := range tt.files {
				writeOverride(t, dir, rel, body)
			}
			if _, err := LoadCatalog(dir); err == nil {
				t.Error("Expected LoadCatalog to fail")
			}
		})
	}
}

func TestLoadCatalog_OverrideIsChecked(t *testing.T) {
	dir := t.TempDir()
	writeOverride(t, dir, "backup-script.tmpl", "#!/usr/bin/env bash\nif then (\n")

	c, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	if _, err := c.RenderAll(config.Default()); err == nil {
		t.Error("Expected a broken override script to fail the dry render")
	}
}
