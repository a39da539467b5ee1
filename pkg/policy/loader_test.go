package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadFromFile_Rego(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "test-policy.rego")

	regoContent := `# Test policy for validation
# spanning two lines
package test.policy

import rego.v1

deny contains "no" if {
	input.config.app.name == "invalid"
}`

	if err := os.WriteFile(policyFile, []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "test-policy" {
		t.Errorf("Expected name 'test-policy', got %s", policy.Name)
	}
	if policy.Description != "Test policy for validation spanning two lines" {
		t.Errorf("Expected description from comments, got %q", policy.Description)
	}
	if !policy.Enabled {
		t.Error("Expected policy to be enabled")
	}
	if policy.Source != policyFile {
		t.Errorf("Expected source %s, got %s", policyFile, policy.Source)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "bundle.json")
	content := `{"description": "from json", "rego": "package j\n"}`
	if err := os.WriteFile(policyFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "bundle" {
		t.Errorf("Expected name from file, got %s", policy.Name)
	}
	if !policy.Enabled || policy.Description != "from json" {
		t.Errorf("Expected enabled policy with description, got %+v", policy)
	}

	empty := filepath.Join(tmpDir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"name": "empty"}`), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := loader.loadFromFile(context.Background(), empty); err == nil {
		t.Error("Expected error for a JSON policy without rego")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "nested")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	files := map[string]string{
		filepath.Join(tmpDir, "b.rego"):   "package b\n",
		filepath.Join(nested, "a.rego"):   "package a\n",
		filepath.Join(tmpDir, "README.md"): "ignored",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	policies, err := loader.LoadFromPaths(context.Background(), []string{tmpDir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Name != "b" || policies[1].Name != "a" {
		t.Errorf("Expected lexical path order [b a], got [%s %s]", policies[0].Name, policies[1].Name)
	}
}

func TestLoadFromPaths_Missing(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	_, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
}

func TestLoader_Cache(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	path := filepath.Join(t.TempDir(), "cached.rego")
	if err := os.WriteFile(path, []byte("package v1\n"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	ctx := context.Background()
	if _, err := loader.loadFromFile(ctx, path); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if err := os.WriteFile(path, []byte("package v2\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite test file: %v", err)
	}

	policy, _ := loader.loadFromFile(ctx, path)
	if policy.Rego != "package v1\n" {
		t.Errorf("Expected cached content, got %q", policy.Rego)
	}

	loader.ClearCache()
	policy, _ = loader.loadFromFile(ctx, path)
	if policy.Rego != "package v2\n" {
		t.Errorf("Expected fresh content after ClearCache, got %q", policy.Rego)
	}
}
