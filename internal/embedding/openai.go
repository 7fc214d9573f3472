package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Default dimensions for known OpenAI embedding models.
var openAIModelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIProvider embeds text via the OpenAI embeddings API. It also works
// against OpenAI-compatible servers (Ollama, LM Studio) by setting BaseURL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	dim    int
}

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible servers
	Model   string // defaults to text-embedding-3-small

	// Dimension overrides the model's known dimension. Required for models
	// not in the built-in table.
	Dimension int
}

// NewOpenAIProvider creates an OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai embedding provider requires an API key")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = openAIModelDims[model]
	}
	if dim == 0 {
		return nil, fmt.Errorf("unknown embedding model %q: set dimension explicitly", model)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		dim:    dim,
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	return resp.Data[0].Embedding, nil
}

func (p *OpenAIProvider) Version() string {
	return "openai/" + p.model
}

func (p *OpenAIProvider) Dimension() int {
	return p.dim
}
