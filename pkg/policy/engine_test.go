package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostkit/pkg/config"
	"github.com/openfroyo/hostkit/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

// safeConfig returns a config that triggers no built-in finding.
func safeConfig() *config.ProvisioningConfig {
	cfg := config.Default()
	cfg.Database.Password = "a-long-unique-password"
	cfg.App.SessionSecret = "a-real-secret"
	return cfg
}

func hasKey(vs []Violation, key string) bool {
	for _, v := range vs {
		if v.Key == key {
			return true
		}
	}
	return false
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"default-secrets",
		"database-safety",
		"port-safety",
		"account-safety",
		"hardening",
	}

	for _, expected := range expectedPolicies {
		if _, err := eng.GetPolicy(expected); err != nil {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluate_SafeConfig(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), safeConfig(), Context{Operation: "apply"})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("Expected allowed, got violations: %+v", result.Violations)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %+v", result.Warnings)
	}
	if len(result.EvaluatedPolicies) != 5 {
		t.Errorf("Expected 5 evaluated policies, got %v", result.EvaluatedPolicies)
	}
	if result.Err() != nil {
		t.Errorf("Expected nil error, got %v", result.Err())
	}
}

func TestEvaluate_DefaultSecretsWarn(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), config.Default(), Context{Operation: "plan", DryRun: true})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Fatalf("Expected placeholders to warn only, got violations: %+v", result.Violations)
	}
	if !hasKey(result.Warnings, "database.password") || !hasKey(result.Warnings, "app.session_secret") {
		t.Errorf("Expected warnings for both placeholders, got %+v", result.Warnings)
	}
	for _, w := range result.Warnings {
		if w.Severity != SeverityWarning {
			t.Errorf("Expected warning severity, got %s", w.Severity)
		}
	}
}

func TestEvaluate_Denials(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name   string
		mutate func(*config.ProvisioningConfig)
		key    string
	}{
		{"system database", func(c *config.ProvisioningConfig) { c.Database.Name = "postgres" }, "database.name"},
		{"superuser role", func(c *config.ProvisioningConfig) { c.Database.User = "postgres" }, "database.user"},
		{"remote database", func(c *config.ProvisioningConfig) { c.Database.Host = "db.example.com" }, "database.host"},
		{"ssh port", func(c *config.ProvisioningConfig) { c.App.Port = 22 }, "app.port"},
		{"postgres port", func(c *config.ProvisioningConfig) { c.App.Port = 5432 }, "app.port"},
		{"root user", func(c *config.ProvisioningConfig) { c.App.User = "root" }, "app.user"},
		{"app dir in etc", func(c *config.ProvisioningConfig) { c.App.Dir = "/etc/app" }, "app.dir"},
		{"log dir is usr", func(c *config.ProvisioningConfig) { c.App.LogDir = "/usr" }, "app.log_dir"},
		{"backup in root home", func(c *config.ProvisioningConfig) { c.Backup.Dir = "/root/backups" }, "backup.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := safeConfig()
			tt.mutate(cfg)

			result, err := eng.Evaluate(context.Background(), cfg, Context{Operation: "apply"})
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed {
				t.Fatal("Expected configuration to be denied")
			}
			if !hasKey(result.Violations, tt.key) {
				t.Errorf("Expected violation for %s, got %+v", tt.key, result.Violations)
			}

			err = result.Err()
			if !engine.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
			if !errors.Is(err, &engine.EngineError{Class: engine.ErrorClassValidation, Code: engine.ErrCodePolicyDenied}) {
				t.Errorf("Expected policy denied code, got %v", err)
			}
		})
	}
}

func TestEvaluate_Warnings(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name   string
		mutate func(*config.ProvisioningConfig)
		key    string
	}{
		{"privileged port", func(c *config.ProvisioningConfig) { c.App.Port = 1000 }, "app.port"},
		{"short password", func(c *config.ProvisioningConfig) { c.Database.Password = "short" }, "database.password"},
		{"many retries", func(c *config.ProvisioningConfig) { c.Fail2Ban.MaxRetry = 50 }, "fail2ban.maxretry"},
		{"short ban", func(c *config.ProvisioningConfig) { c.Fail2Ban.BanTime = 60 }, "fail2ban.bantime"},
		{"short backup retention", func(c *config.ProvisioningConfig) { c.Backup.RetentionDays = 1 }, "backup.retention_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := safeConfig()
			tt.mutate(cfg)

			result, err := eng.Evaluate(context.Background(), cfg, Context{Operation: "apply"})
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if !result.Allowed {
				t.Fatalf("Expected warnings only, got violations: %+v", result.Violations)
			}
			if !hasKey(result.Warnings, tt.key) {
				t.Errorf("Expected warning for %s, got %+v", tt.key, result.Warnings)
			}
		})
	}
}

func TestEvaluate_DisabledPolicy(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.DisablePolicy("port-safety"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	cfg := safeConfig()
	cfg.App.Port = 22
	result, err := eng.Evaluate(context.Background(), cfg, Context{})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected disabled policy to be skipped, got %+v", result.Violations)
	}

	if err := eng.EnablePolicy("port-safety"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}
	result, err = eng.Evaluate(context.Background(), cfg, Context{})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected re-enabled policy to deny")
	}

	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestLoadPolicies_Custom(t *testing.T) {
	eng := newTestEngine(t)

	dir := t.TempDir()
	rego := `# Requires a real server name.
package custom.naming

import rego.v1

deny contains "nginx server_name must be set" if {
	input.config.nginx.server_name == "_"
	input.context.operation == "apply"
}
`
	if err := os.WriteFile(filepath.Join(dir, "server-name.rego"), []byte(rego), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	ctx := context.Background()
	if err := eng.LoadPolicies(ctx, []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	p, err := eng.GetPolicy("server-name")
	if err != nil {
		t.Fatalf("Expected custom policy, got %v", err)
	}
	if p.Description != "Requires a real server name." {
		t.Errorf("Expected description from comment, got %q", p.Description)
	}

	result, err := eng.Evaluate(ctx, safeConfig(), Context{Operation: "apply"})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed || len(result.Violations) != 1 {
		t.Fatalf("Expected one violation, got %+v", result.Violations)
	}
	if result.Violations[0].Message != "nginx server_name must be set" {
		t.Errorf("Expected string entry as message, got %q", result.Violations[0].Message)
	}

	result, err = eng.Evaluate(ctx, safeConfig(), Context{Operation: "plan"})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Error("Expected context to be visible to policies")
	}

	if err := eng.ReloadPolicies(ctx, nil); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if _, err := eng.GetPolicy("server-name"); err == nil {
		t.Error("Expected reload without paths to drop custom policies")
	}
}

func TestLoadPolicies_InvalidRego(t *testing.T) {
	eng := newTestEngine(t)

	path := filepath.Join(t.TempDir(), "broken.rego")
	if err := os.WriteFile(path, []byte("package broken\n\ndeny contains if {"), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{path}); err == nil {
		t.Fatal("Expected compile error")
	}
}
