package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/config"
	"github.com/loom-ai/loom/internal/embedding"
	"github.com/loom-ai/loom/internal/llm"
	"github.com/loom-ai/loom/internal/logging"
	"github.com/loom-ai/loom/internal/pipeline"
	"github.com/loom-ai/loom/internal/retrieval"
	"github.com/loom-ai/loom/internal/store"
	"github.com/loom-ai/loom/internal/validation"
)

// app bundles the wired components every command needs: config, logging,
// the store, and the embedding provider.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store.EntityStore
	provider  embedding.Provider
	decisions *logging.DecisionLogger
}

// openApp loads config, opens the store under root/.loom, and builds the
// embedding provider. The caller must Close the returned app.
func openApp(cmd *cobra.Command) (*app, error) {
	root, _ := cmd.Flags().GetString("root")

	loomDir := filepath.Join(root, ".loom")
	if _, err := os.Stat(loomDir); os.IsNotExist(err) {
		return nil, fmt.Errorf(".loom not initialized. Run 'loom init' first")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewLogger(cfg.Logging.Level, os.Stderr)

	entityStore, err := store.NewSQLiteStore(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider, err := newProvider(cfg.Embedding)
	if err != nil {
		entityStore.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     entityStore,
		provider:  provider,
		decisions: logging.NewDecisionLogger(loomDir, cfg.Logging.Level),
	}, nil
}

// Close releases the app's store and decision log.
func (a *app) Close() {
	a.decisions.Close()
	a.store.Close()
}

// newProvider builds the embedding provider from config.
func newProvider(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	case "local":
		p := embedding.NewLocalProvider(embedding.LocalConfig{
			ModelPath: cfg.LocalModelPath,
			GPULayers: cfg.LocalGPULayers,
		})
		if !p.Available() {
			return nil, fmt.Errorf("local embedding not available: build with -tags llamacpp")
		}
		return p, nil
	case "hash", "":
		return embedding.NewHashProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
}

// newReviewer builds the validation reviewer with the built-in validators.
func (a *app) newReviewer() *validation.Reviewer {
	return validation.NewReviewer(a.store, validation.NewRegistry(
		validation.NonEmptyOutput(),
		validation.BalancedDelimiters(),
		validation.NoFences(),
	), a.logger)
}

// newPipeline wires retrieval, assembly, generation, and validation. When
// needClient is true a generation client is required by config; otherwise
// the pipeline is retrieval-only if no model is configured.
func (a *app) newPipeline(needClient bool) (*pipeline.Pipeline, *validation.Reviewer, error) {
	var client llm.Client
	if a.cfg.Generation.Provider != "" {
		var err error
		client, err = llm.New(llm.Config{
			Provider: a.cfg.Generation.Provider,
			APIKey:   a.cfg.Generation.APIKey,
			BaseURL:  a.cfg.Generation.BaseURL,
			Model:    a.cfg.Generation.Model,
			Timeout:  a.cfg.Generation.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create model client: %w", err)
		}
	} else if needClient {
		return nil, nil, fmt.Errorf("no generation model configured. Set generation.provider in ~/.loom/config.yaml or LOOM_PROVIDER")
	}

	var retriever pipeline.Retriever
	engine := retrieval.NewEngine(a.store, a.provider, a.logger)
	if a.cfg.Retrieval.Cache {
		retriever = retrieval.NewCachedEngine(engine, a.store)
	} else {
		retriever = engine
	}

	reviewer := a.newReviewer()
	return pipeline.New(pipeline.Options{
		Store:     a.store,
		Provider:  a.provider,
		Retriever: retriever,
		Client:    client,
		Reviewer:  reviewer,
		Logger:    a.logger,
		Decisions: a.decisions,
	}), reviewer, nil
}

// parseRetrievalMode maps the --mode flag, falling back to the configured
// default when empty.
func (a *app) parseRetrievalMode(mode string) (retrieval.Mode, error) {
	if mode == "" {
		mode = a.cfg.Retrieval.Mode
	}
	switch mode {
	case "", "hybrid":
		return retrieval.ModeHybrid, nil
	case "similarity":
		return retrieval.ModeSimilarity, nil
	case "contextual":
		return retrieval.ModeContextual, nil
	default:
		return "", fmt.Errorf("invalid mode: %s (must be similarity, hybrid, or contextual)", mode)
	}
}
