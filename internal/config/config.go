// Package config provides unified configuration loading for loom.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all loom configuration settings.
type Config struct {
	// Generation contains settings for the code-generation model.
	Generation GenerationConfig `json:"generation" yaml:"generation"`

	// Embedding contains settings for the embedding provider.
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`

	// Retrieval contains settings for query-time retrieval.
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// GenerationConfig configures the chat model used for code generation.
type GenerationConfig struct {
	// Provider identifies the backend: "anthropic", "openai", "ollama", or
	// "" for disabled.
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the provider. Supports ${VAR} syntax for
	// env vars. Not required for ollama.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL is the API endpoint URL. Used for ollama or custom
	// OpenAI-compatible endpoints.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the model identifier to use for generation.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Timeout is the maximum duration to wait for model responses.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Budget is the token budget for retrieved context. Always-on rules
	// and guidelines are exempt.
	Budget int `json:"budget,omitempty" yaml:"budget,omitempty"`
}

// RedactedAPIKey returns the API key with most characters masked.
// Shows first 4 and last 4 characters, e.g., "sk-a...xyz9".
// Returns "" for empty keys and "(set)" for keys shorter than 12 chars.
func (c GenerationConfig) RedactedAPIKey() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) < 12 {
		return "(set)"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}

// String implements fmt.Stringer to prevent accidental API key logging.
func (c GenerationConfig) String() string {
	return fmt.Sprintf("GenerationConfig{Provider:%s, APIKey:%s, Model:%s}",
		c.Provider, c.RedactedAPIKey(), c.Model)
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider identifies the backend: "openai", "local", "hash", or "" to
	// follow Generation.Provider where possible.
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for API-backed providers. Supports ${VAR}.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL is the API endpoint URL for OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the embedding model identifier.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Dimension overrides the model's embedding width. Required for models
	// the provider does not know.
	Dimension int `json:"dimension,omitempty" yaml:"dimension,omitempty"`

	// LocalModelPath is the path to a GGUF embedding model file. Only used
	// when provider is "local". Requires building with -tags llamacpp.
	LocalModelPath string `json:"local_model_path,omitempty" yaml:"local_model_path,omitempty"`

	// LocalGPULayers is the number of model layers to offload to GPU
	// (0 = CPU only). Only used when provider is "local".
	LocalGPULayers int `json:"local_gpu_layers,omitempty" yaml:"local_gpu_layers,omitempty"`
}

// RetrievalConfig configures query-time retrieval.
type RetrievalConfig struct {
	// K is the default number of results per query.
	K int `json:"k,omitempty" yaml:"k,omitempty"`

	// Mode is the default strategy: "similarity", "hybrid", or "contextual".
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Cache enables the read-through query cache.
	Cache bool `json:"cache" yaml:"cache"`
}

// LoggingConfig configures loom's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to .loom/decisions.jsonl.
	// "trace" additionally includes full model prompt/response content.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Generation: GenerationConfig{
			Provider: "",
			Timeout:  120 * time.Second,
			Budget:   4000,
		},
		Embedding: EmbeddingConfig{
			Provider: "hash",
		},
		Retrieval: RetrievalConfig{
			K:     8,
			Mode:  "hybrid",
			Cache: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default locations and environment
// variables. Order: defaults -> ~/.loom/config.yaml -> environment variables.
func Load() (*Config, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".loom", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Expand environment variables in API keys
	config.Generation.APIKey = expandEnvVars(config.Generation.APIKey)
	config.Embedding.APIKey = expandEnvVars(config.Embedding.APIKey)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	validProviders := map[string]bool{"": true, "anthropic": true, "openai": true, "ollama": true, "mock": true}
	if !validProviders[c.Generation.Provider] {
		return fmt.Errorf("invalid generation provider: %s (valid: anthropic, openai, ollama, or empty)", c.Generation.Provider)
	}

	validEmbedding := map[string]bool{"": true, "openai": true, "local": true, "hash": true}
	if !validEmbedding[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding provider: %s (valid: openai, local, hash, or empty)", c.Embedding.Provider)
	}

	if c.Generation.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Generation.Timeout)
	}
	if c.Generation.Budget < 0 {
		return fmt.Errorf("budget must be non-negative, got %d", c.Generation.Budget)
	}
	if c.Retrieval.K < 0 {
		return fmt.Errorf("retrieval k must be non-negative, got %d", c.Retrieval.K)
	}

	validModes := map[string]bool{"": true, "similarity": true, "hybrid": true, "contextual": true}
	if !validModes[c.Retrieval.Mode] {
		return fmt.Errorf("invalid retrieval mode: %s (valid: similarity, hybrid, contextual, or empty)", c.Retrieval.Mode)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LOOM_PROVIDER"); v != "" {
		config.Generation.Provider = v
	}
	if v := os.Getenv("LOOM_MODEL"); v != "" {
		config.Generation.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Generation.Provider == "anthropic" {
		config.Generation.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if config.Generation.Provider == "openai" && config.Generation.APIKey == "" {
			config.Generation.APIKey = v
		}
		if config.Embedding.Provider == "openai" && config.Embedding.APIKey == "" {
			config.Embedding.APIKey = v
		}
	}

	// Ollama uses OLLAMA_HOST for base URL (no API key needed)
	if config.Generation.Provider == "ollama" {
		if v := os.Getenv("OLLAMA_HOST"); v != "" {
			config.Generation.BaseURL = v
		} else if config.Generation.BaseURL == "" {
			config.Generation.BaseURL = "http://localhost:11434/v1"
		}
	}

	if v := os.Getenv("LOOM_EMBEDDING_PROVIDER"); v != "" {
		config.Embedding.Provider = v
	}
	if v := os.Getenv("LOOM_EMBEDDING_MODEL"); v != "" {
		config.Embedding.Model = v
	}
	if v := os.Getenv("LOOM_LOCAL_MODEL_PATH"); v != "" {
		config.Embedding.LocalModelPath = v
	}
	if v := os.Getenv("LOOM_LOCAL_GPU_LAYERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Embedding.LocalGPULayers = n
		}
	}

	if v := os.Getenv("LOOM_RETRIEVAL_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Retrieval.K = n
		}
	}
	if v := os.Getenv("LOOM_RETRIEVAL_MODE"); v != "" {
		config.Retrieval.Mode = v
	}

	if v := os.Getenv("LOOM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
