package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5"
	defaultMaxTokens      = 4096
	defaultTimeout        = 120 * time.Second
)

// AnthropicClient generates code via the Anthropic messages API.
type AnthropicClient struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
	apiKey  string
}

// NewAnthropicClient creates an Anthropic-backed client.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider requires an API key")
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &AnthropicClient{
		client:  anthropic.NewClient(cfg.APIKey),
		model:   model,
		timeout: timeout,
		apiKey:  cfg.APIKey,
	}, nil
}

func (c *AnthropicClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	}
	if opts.Temperature > 0 {
		temp := opts.Temperature
		req.Temperature = &temp
	}
	if len(opts.Stop) > 0 {
		req.StopSequences = opts.Stop
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return "", classifyError("anthropic generate", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic generate: no text content in response")
}

func (c *AnthropicClient) ModelID() string {
	return "anthropic/" + c.model
}

func (c *AnthropicClient) Available() bool {
	return c.apiKey != ""
}

// classifyError wraps timeouts, rate limits, and server-side failures with
// ErrTransient so the generation orchestrator retries them.
func classifyError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case anthropic.ErrTypeRateLimit, anthropic.ErrTypeOverloaded, anthropic.ErrTypeApi:
			return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
