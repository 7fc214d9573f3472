// Package generation turns an assembled context into watermarked code via an
// LLM client, with bounded retry on transient failures and a full lineage
// record for every completed generation.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loom-ai/loom/internal/assembly"
	"github.com/loom-ai/loom/internal/llm"
	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/store"
)

// ErrGenerationFailed indicates the model could not produce output after
// retries were exhausted or a permanent failure occurred.
var ErrGenerationFailed = errors.New("generation failed")

// maxRetries is the number of retries after the first attempt. Only
// transient failures are retried.
const maxRetries = 2

const defaultBackoff = 2 * time.Second

// Request describes one generation.
type Request struct {
	Query    string
	Language string
	Mode     string

	// Context is the assembled input, required.
	Context *assembly.Context

	// Retrieved is the full scored retrieval trace for lineage, including
	// hits the assembler later skipped.
	Retrieved []models.RetrievalHit

	// EmbeddingVersion records which provider version retrieval ran under.
	EmbeddingVersion string

	// Opts tune the model call.
	Opts llm.Options
}

// Orchestrator runs generations and persists their lineage records.
type Orchestrator struct {
	client llm.Client
	store  store.EntityStore
	logger *slog.Logger

	backoff time.Duration
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(client llm.Client, s store.EntityStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:  client,
		store:   s,
		logger:  logger,
		backoff: defaultBackoff,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Generate runs one generation end to end: build the prompt, call the model
// with bounded retry, watermark the output, and persist a pending record.
// Nothing is persisted when generation fails or the context is cancelled
// before the model completes. Once the model call has completed, the record
// is persisted even if the request was cancelled in the meantime.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*models.GenerationRecord, error) {
	if req.Context == nil {
		return nil, fmt.Errorf("generation request requires an assembled context")
	}
	if !o.client.Available() {
		return nil, fmt.Errorf("model client unavailable: %w", ErrGenerationFailed)
	}

	// The record ID is allocated up front so the watermark can reference it.
	recordID := models.NewRecordID()
	prompt := BuildPrompt(req.Query, req.Language, req.Context)

	output, err := o.generateWithRetry(ctx, prompt, req.Opts)
	if err != nil {
		return nil, err
	}

	contextEntities := append(append([]models.Entity{}, req.Context.AlwaysOn...), req.Context.Retrieved...)
	watermarked := Watermark(stripFences(output), req.Language, o.client.ModelID(), recordID, contextEntities, o.now())

	now := o.now().UTC()
	rec := models.GenerationRecord{
		ID:               recordID,
		Query:            req.Query,
		Mode:             req.Mode,
		Retrieved:        req.Retrieved,
		ContextIDs:       req.Context.IDs(),
		Prompt:           prompt,
		ModelID:          o.client.ModelID(),
		Output:           watermarked,
		OutputHash:       models.HashOutput(watermarked),
		EmbeddingVersion: req.EmbeddingVersion,
		Status:           models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	// The model call already completed, so the record is persisted even when
	// the request context was cancelled in the meantime. Finished work must
	// always leave lineage.
	if err := o.store.PutRecord(context.WithoutCancel(ctx), rec); err != nil {
		return nil, fmt.Errorf("persist generation record: %w", err)
	}

	o.logger.Info("generation complete",
		"record", rec.ID, "model", rec.ModelID, "context_entities", len(rec.ContextIDs))
	return &rec, nil
}

// generateWithRetry calls the model, retrying transient failures up to
// maxRetries times with linear backoff. Permanent failures surface
// immediately.
func (o *Orchestrator) generateWithRetry(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			o.logger.Warn("retrying generation", "attempt", attempt, "error", lastErr)
			if err := o.sleep(ctx, time.Duration(attempt)*o.backoff); err != nil {
				return "", err
			}
		}

		output, err := o.client.Generate(ctx, prompt, opts)
		if err == nil {
			if strings.TrimSpace(output) == "" {
				return "", fmt.Errorf("model returned empty output: %w", ErrGenerationFailed)
			}
			return output, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, llm.ErrTransient) {
			return "", fmt.Errorf("%v: %w", err, ErrGenerationFailed)
		}
		lastErr = err
	}
	return "", fmt.Errorf("retries exhausted: %v: %w", lastErr, ErrGenerationFailed)
}

// stripFences removes a single wrapping markdown code fence if the model
// added one despite instructions.
func stripFences(output string) string {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "```") {
		return output
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[len(lines)-1], "```") {
		return output
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
