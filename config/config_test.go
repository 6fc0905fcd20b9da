package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Provider != "openrouter" {
		t.Errorf("expected openrouter, got %q", cfg.Provider)
	}
	if cfg.MaxIterations != 25 {
		t.Errorf("expected 25 iterations, got %d", cfg.MaxIterations)
	}
	if cfg.TokenThreshold != 100000 {
		t.Errorf("expected 100000 token threshold, got %d", cfg.TokenThreshold)
	}
	if cfg.ToolAttempts != 3 {
		t.Errorf("expected 3 tool attempts, got %d", cfg.ToolAttempts)
	}
	if cfg.MCP.URL == "" {
		t.Error("expected a default MCP endpoint")
	}
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	confDir := filepath.Join(dir, ".taskhelm")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMergesUserAndProjectConfig(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(project)

	writeConfig(t, home, "model: user-model\nmax_iterations: 10\n")
	writeConfig(t, project, "model: project-model\ntool_attempts: 5\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Project file wins over the user file.
	if cfg.Model != "project-model" {
		t.Errorf("expected project model to win, got %q", cfg.Model)
	}
	// User file wins over the defaults where the project file is silent.
	if cfg.MaxIterations != 10 {
		t.Errorf("expected user max_iterations, got %d", cfg.MaxIterations)
	}
	if cfg.ToolAttempts != 5 {
		t.Errorf("expected project tool_attempts, got %d", cfg.ToolAttempts)
	}
	// Untouched fields keep their defaults.
	if cfg.Provider != "openrouter" {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
}

func TestLoadWithoutFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != Default().Model {
		t.Errorf("expected defaults, got %q", cfg.Model)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	writeConfig(t, home, "model: [unclosed\n")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestAPIKey(t *testing.T) {
	cfg := Default()
	if cfg.APIKey() != "" {
		t.Error("expected empty key with no env configured")
	}

	cfg.APIKeyEnv = "TASKHELM_TEST_KEY"
	t.Setenv("TASKHELM_TEST_KEY", "secret")
	if cfg.APIKey() != "secret" {
		t.Errorf("expected key from environment, got %q", cfg.APIKey())
	}
}
