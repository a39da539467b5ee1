package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCUEParser_ParseInline(t *testing.T) {
	parser := NewCUEParser()

	tests := []struct {
		name      string
		content   string
		wantErr   string
		checkFunc func(*testing.T, map[string]interface{})
	}{
		{
			name: "valid partial config",
			content: `
app: {
	name: "shop"
	port: 8080
}
nginx: server_name: "shop.example.com"
`,
			checkFunc: func(t *testing.T, m map[string]interface{}) {
				app, ok := m["app"].(map[string]interface{})
				if !ok {
					t.Fatalf("expected app section, got %T", m["app"])
				}
				if app["name"] != "shop" {
					t.Errorf("expected app name 'shop', got %v", app["name"])
				}
				if fmt.Sprint(app["port"]) != "8080" {
					t.Errorf("expected port 8080, got %v", app["port"])
				}
				if _, ok := m["database"]; ok {
					t.Errorf("expected unset sections to be absent, got %v", m["database"])
				}
			},
		},
		{
			name:    "empty file",
			content: ``,
			checkFunc: func(t *testing.T, m map[string]interface{}) {
				if len(m) != 0 {
					t.Errorf("expected empty map, got %v", m)
				}
			},
		},
		{
			name: "invalid syntax",
			content: `
app: {
	name: "shop"
	invalid syntax here
}
`,
			wantErr: "",
		},
		{
			name:    "port out of range",
			content: `app: port: 70000`,
			wantErr: "app.port",
		},
		{
			name:    "unknown key",
			content: `app: colour: "red"`,
			wantErr: "colour",
		},
		{
			name:    "bad application name",
			content: `app: name: "Bad Name"`,
			wantErr: "app.name",
		},
		{
			name:    "wrong type",
			content: `fail2ban: maxretry: "five"`,
			wantErr: "fail2ban.maxretry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := parser.ParseInline(tt.content)

			if tt.checkFunc != nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				tt.checkFunc(t, m)
				return
			}

			if err == nil {
				t.Fatal("expected error, got none")
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) || len(verrs) == 0 {
				t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
			}
			if tt.wantErr == "" {
				return
			}
			for _, e := range verrs {
				if strings.Contains(e.Path, tt.wantErr) || strings.Contains(e.Message, tt.wantErr) {
					return
				}
			}
			t.Errorf("expected an error about %q, got %v", tt.wantErr, verrs)
		})
	}
}

func TestCUEParser_ParseFile(t *testing.T) {
	parser := NewCUEParser()

	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "hostkit.cue")

	content := `
app: {
	name:      "shop"
	instances: 2
}
database: password: "s3cret"
`
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	m, err := parser.ParseFile(testFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	db, ok := m["database"].(map[string]interface{})
	if !ok || db["password"] != "s3cret" {
		t.Errorf("expected database password 's3cret', got %v", m["database"])
	}
}

func TestCUEParser_ParseFile_ErrorPosition(t *testing.T) {
	parser := NewCUEParser()

	testFile := filepath.Join(t.TempDir(), "bad.cue")
	content := "app: {\n\tname: \"shop\"\n\tport: 0\n}\n"
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, err := parser.ParseFile(testFile)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}

	found := false
	for _, e := range verrs {
		if e.File == testFile && e.Line > 0 {
			found = true
		}
		if e.Severity != "error" {
			t.Errorf("expected severity 'error', got %s", e.Severity)
		}
	}
	if !found {
		t.Errorf("expected an error positioned in %s, got %v", testFile, verrs)
	}
}

func TestCUEParser_ParseFile_Missing(t *testing.T) {
	parser := NewCUEParser()

	_, err := parser.ParseFile(filepath.Join(t.TempDir(), "missing.cue"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
