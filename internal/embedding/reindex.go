package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/store"
)

// EmbedText returns the text to embed for an entity. Kinds without required
// content fall back to name plus metadata so they still embed usefully.
func EmbedText(e *models.Entity) string {
	if e.Content != "" {
		return e.Content
	}
	parts := []string{e.Name()}
	if lang := e.Language(); lang != "" {
		parts = append(parts, lang)
	}
	if tags := e.Metadata[models.MetaTags]; tags != "" {
		parts = append(parts, tags)
	}
	return strings.Join(parts, " ")
}

// EmbedEntity embeds one entity's content and writes the vector back. The
// stored vector is stamped with the provider version.
func EmbedEntity(ctx context.Context, s store.EntityStore, p Provider, id string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	vec, err := p.Embed(ctx, EmbedText(e))
	if err != nil {
		return fmt.Errorf("embed entity %s: %w", id, err)
	}

	e.Embedding = vec
	e.EmbeddingVersion = p.Version()
	if _, err := s.Put(ctx, *e); err != nil {
		return fmt.Errorf("store embedding for %s: %w", id, err)
	}
	return nil
}

// Reindex re-embeds every live entity whose vector is missing or was produced
// by a different provider version. It is an explicit pass: nothing re-embeds
// automatically on provider change. Returns the number of entities embedded
// and the IDs that failed.
func Reindex(ctx context.Context, s store.EntityStore, p Provider, logger *slog.Logger) (int, []string, error) {
	stale, err := s.StaleEntities(ctx, p.Version())
	if err != nil {
		return 0, nil, fmt.Errorf("list stale entities: %w", err)
	}

	count := 0
	var failed []string
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return count, failed, err
		}
		if err := EmbedEntity(ctx, s, p, id); err != nil {
			if logger != nil {
				logger.Warn("re-embed failed", "entity", id, "error", err)
			}
			failed = append(failed, id)
			continue
		}
		count++
	}
	return count, failed, nil
}
