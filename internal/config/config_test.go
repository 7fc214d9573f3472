package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
generation:
  provider: anthropic
  api_key: ${LOOM_TEST_KEY}
  model: claude-sonnet-4-5
  budget: 2000
embedding:
  provider: openai
  model: text-embedding-3-small
retrieval:
  k: 12
  mode: contextual
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOOM_TEST_KEY", "sk-test-1234567890")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Generation.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.Generation.Provider)
	}
	if cfg.Generation.APIKey != "sk-test-1234567890" {
		t.Errorf("api key not expanded: %q", cfg.Generation.APIKey)
	}
	if cfg.Generation.Budget != 2000 {
		t.Errorf("budget = %d", cfg.Generation.Budget)
	}
	if cfg.Retrieval.K != 12 || cfg.Retrieval.Mode != "contextual" {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.Generation.Provider = "skynet" }},
		{"bad embedding provider", func(c *Config) { c.Embedding.Provider = "psychic" }},
		{"negative budget", func(c *Config) { c.Generation.Budget = -1 }},
		{"bad mode", func(c *Config) { c.Retrieval.Mode = "vibes" }},
		{"bad level", func(c *Config) { c.Logging.Level = "screaming" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRedactedAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", "(set)"},
		{"sk-abcdefghijklmnop", "sk-a...mnop"},
	}
	for _, tt := range tests {
		c := GenerationConfig{APIKey: tt.key}
		if got := c.RedactedAPIKey(); got != tt.want {
			t.Errorf("RedactedAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
