// Package config loads taskhelm configuration from YAML files. The
// user-level file in the home directory is loaded first, then the
// project-level file in the working directory, with the latter taking
// precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MCPServer describes how to reach the remote tool service: either a URL
// for streamable HTTP or a command to spawn for stdio transport.
type MCPServer struct {
	URL     string   `yaml:"url"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Config is the full taskhelm configuration.
type Config struct {
	Provider       string    `yaml:"provider"`
	Model          string    `yaml:"model"`
	BaseURL        string    `yaml:"base_url"`
	APIKeyEnv      string    `yaml:"api_key_env"`
	MCP            MCPServer `yaml:"mcp"`
	MaxIterations  int       `yaml:"max_iterations"`
	TokenThreshold int       `yaml:"token_threshold"`
	ToolAttempts   int       `yaml:"tool_attempts"`
}

// Default returns the built-in defaults: an OpenRouter-hosted model and
// the local MCP endpoint.
func Default() *Config {
	return &Config{
		Provider:       "openrouter",
		Model:          "google/gemini-2.5-flash-lite",
		MCP:            MCPServer{URL: "http://localhost:8931/mcp"},
		MaxIterations:  25,
		TokenThreshold: 100000,
		ToolAttempts:   3,
	}
}

// Load reads configuration from the user's home directory and the current
// working directory, with the latter taking precedence over the former,
// and both over the built-in defaults.
func Load() (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".taskhelm", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, fmt.Errorf("loading user config: %w", err)
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("could not get working directory: %w", err)
	}
	projectPath := filepath.Join(wd, ".taskhelm", "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// APIKey resolves the API key from the configured environment variable,
// if any.
func (c *Config) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, giving a simple
	// merge where later files replace earlier values.
	return yaml.Unmarshal(data, cfg)
}
