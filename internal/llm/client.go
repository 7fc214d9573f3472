// Package llm provides chat-completion clients for code generation. It
// supports Anthropic, OpenAI, and OpenAI-compatible local servers behind a
// single interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTransient marks a failure worth retrying: timeouts, rate limits, and
// 5xx-class responses. Malformed requests and auth failures are permanent.
var ErrTransient = errors.New("transient model failure")

// Options control a single generation request.
type Options struct {
	// MaxTokens caps the response length. 0 uses the client default.
	MaxTokens int

	// Temperature controls sampling randomness. Generation defaults to a
	// low value for reproducible output.
	Temperature float32

	// Stop sequences end generation early.
	Stop []string

	// Timeout bounds the request. 0 uses the client default.
	Timeout time.Duration
}

// Client is a chat-completion backend.
type Client interface {
	// Generate sends the prompt and returns the model's text output.
	// Transient failures wrap ErrTransient so callers can retry.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)

	// ModelID identifies the provider and model, recorded in lineage.
	ModelID() string

	// Available reports whether the client is configured to handle requests.
	Available() bool
}

// Config selects and configures a client backend.
type Config struct {
	// Provider identifies the backend: "anthropic", "openai", "mock".
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the API endpoint, for OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the model identifier to use for requests.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Timeout is the default maximum duration to wait for a response.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// New creates a client for the configured provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg)
	case "openai", "ollama":
		return NewOpenAIClient(cfg)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}
