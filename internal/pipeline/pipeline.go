// Package pipeline wires retrieval, assembly, generation, and validation
// into the end-to-end flow behind the CLI and MCP surfaces.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loom-ai/loom/internal/assembly"
	"github.com/loom-ai/loom/internal/embedding"
	"github.com/loom-ai/loom/internal/generation"
	"github.com/loom-ai/loom/internal/llm"
	"github.com/loom-ai/loom/internal/logging"
	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/retrieval"
	"github.com/loom-ai/loom/internal/store"
)

// Retriever abstracts the retrieval engine so the cached and uncached
// variants are interchangeable.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Hit, error)
}

// Pipeline runs the query and generate flows.
type Pipeline struct {
	store     store.EntityStore
	provider  embedding.Provider
	retriever Retriever
	assembler *assembly.Assembler
	generator *generation.Orchestrator
	reviewer  Reviewer
	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// Reviewer is the validation surface the pipeline drives after generation.
type Reviewer interface {
	RunValidators(ctx context.Context, recordID string) (*models.GenerationRecord, error)
}

// Options configure a pipeline.
type Options struct {
	Store     store.EntityStore
	Provider  embedding.Provider
	Retriever Retriever
	Client    llm.Client
	Reviewer  Reviewer
	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
}

// New assembles a pipeline from its parts.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retriever := opts.Retriever
	if retriever == nil {
		retriever = retrieval.NewEngine(opts.Store, opts.Provider, logger)
	}
	var generator *generation.Orchestrator
	if opts.Client != nil {
		generator = generation.NewOrchestrator(opts.Client, opts.Store, logger)
	}
	return &Pipeline{
		store:     opts.Store,
		provider:  opts.Provider,
		retriever: retriever,
		assembler: assembly.NewAssembler(opts.Store, logger),
		generator: generator,
		reviewer:  opts.Reviewer,
		logger:    logger,
		decisions: opts.Decisions,
	}
}

// QueryRequest is one retrieval-only request.
type QueryRequest struct {
	Query    string
	K        int
	Mode     retrieval.Mode
	Language string
	Tag      string
}

// Query retrieves entities without generating anything.
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) ([]retrieval.Hit, error) {
	hits, err := p.retriever.Retrieve(ctx, req.Query, retrieval.Options{
		K:      req.K,
		Mode:   req.Mode,
		Filter: store.Filter{Language: req.Language, Tag: req.Tag},
	})
	if err != nil {
		return nil, err
	}

	p.decisions.Query(req.Query, string(req.Mode), hitIDs(hits))
	return hits, nil
}

// GenerateRequest is one end-to-end generation request.
type GenerateRequest struct {
	Query    string
	Language string
	K        int
	Mode     retrieval.Mode
	Budget   int
	Opts     llm.Options
}

// Generate runs the full flow: retrieve, assemble under budget, generate
// with retry, then run validators. The returned record is in
// awaiting_human_review or validator_failed state.
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) (*models.GenerationRecord, error) {
	if p.generator == nil {
		return nil, fmt.Errorf("no generation model configured: %w", generation.ErrGenerationFailed)
	}

	hits, err := p.retriever.Retrieve(ctx, req.Query, retrieval.Options{
		K:      req.K,
		Mode:   req.Mode,
		Filter: store.Filter{Language: req.Language},
	})
	if err != nil {
		return nil, err
	}

	assembled, err := p.assembler.Assemble(ctx, hits, req.Budget, store.Filter{Language: req.Language})
	if err != nil {
		return nil, err
	}

	trace := make([]models.RetrievalHit, len(hits))
	for i, h := range hits {
		trace[i] = models.RetrievalHit{EntityID: h.Entity.ID, Score: h.Score}
	}

	rec, err := p.generator.Generate(ctx, generation.Request{
		Query:            req.Query,
		Language:         req.Language,
		Mode:             string(req.Mode),
		Context:          assembled,
		Retrieved:        trace,
		EmbeddingVersion: p.provider.Version(),
		Opts:             req.Opts,
	})
	if err != nil {
		p.decisions.GenerationFailure(req.Query, err)
		return nil, err
	}

	if p.reviewer != nil {
		recID := rec.ID
		rec, err = p.reviewer.RunValidators(ctx, recID)
		if err != nil {
			return nil, fmt.Errorf("run validators for %s: %w", recID, err)
		}
	}

	p.decisions.Generation(rec.ID, req.Query, rec.ModelID, string(rec.Status),
		rec.ContextIDs, len(assembled.Skipped))
	return rec, nil
}

func hitIDs(hits []retrieval.Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Entity.ID
	}
	return ids
}
