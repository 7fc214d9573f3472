// Package store defines the EntityStore interface for persisting knowledge
// entities and generation records, with exact-match and vector similarity
// queries.
package store

import (
	"context"
	"errors"

	"github.com/loom-ai/loom/internal/models"
)

// Sentinel errors for structural failures. These are surfaced immediately
// and never retried.
var (
	// ErrNotFound indicates the requested ID is absent from the store.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a delete was blocked because a generation
	// record still references the entity.
	ErrConflict = errors.New("conflict: entity referenced by generation record")

	// ErrDimensionMismatch indicates an embedding's dimensionality differs
	// from the store's established dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrRecordFinal indicates a status mutation on a record whose status
	// is already terminal.
	ErrRecordFinal = errors.New("generation record is final")

	// ErrIllegalTransition indicates a record status transition the state
	// machine does not permit.
	ErrIllegalTransition = errors.New("illegal record status transition")
)

// Filter narrows FindByKind results. Zero value matches all live entities
// of the kind.
type Filter struct {
	// Language matches the entity's "language" metadata when non-empty.
	Language string

	// Tag matches entities whose "tags" metadata contains the tag.
	Tag string

	// IncludeTombstoned includes soft-deleted entities.
	IncludeTombstoned bool
}

// ScoredEntity pairs an entity with its similarity score. Higher is more
// similar.
type ScoredEntity struct {
	Entity models.Entity
	Score  float64
}

// WriteEvent notifies subscribers of an entity mutation, for read-through
// cache invalidation.
type WriteEvent struct {
	EntityID string
	Kind     models.EntityKind
	Deleted  bool
}

// EntityStore persists entities and generation records. All entity writes
// are atomic at entity granularity: concurrent readers never observe a
// partially written entity.
type EntityStore interface {
	// Put stores the entity, assigning an ID when empty. Updating an
	// existing entity with changed content clears its embedding until
	// re-embedded. Returns ErrDimensionMismatch if the embedding's length
	// differs from the store's established dimension.
	Put(ctx context.Context, e models.Entity) (string, error)

	// Get returns the entity, including tombstoned ones. ErrNotFound if
	// absent.
	Get(ctx context.Context, id string) (*models.Entity, error)

	// Delete removes an entity permanently. Returns ErrConflict while any
	// generation record references the entity; use Tombstone instead.
	Delete(ctx context.Context, id string) error

	// Tombstone soft-deletes an entity, keeping it for lineage.
	Tombstone(ctx context.Context, id string) error

	// FindByKind returns live entities of the kind matching the filter,
	// ordered by ID for determinism.
	FindByKind(ctx context.Context, kind models.EntityKind, f Filter) ([]models.Entity, error)

	// SimilaritySearch returns up to k live embedded entities of the kind
	// ordered by descending cosine similarity to vec. Ties break by most
	// recent UpdatedAt, then ascending ID. Returns ErrDimensionMismatch if
	// vec's length differs from the store dimension.
	SimilaritySearch(ctx context.Context, kind models.EntityKind, vec []float32, k int) ([]ScoredEntity, error)

	// Dimension returns the established embedding dimension, or 0 when no
	// embedding has been stored yet.
	Dimension(ctx context.Context) (int, error)

	// StaleEntities returns IDs of live entities whose embedding is missing
	// or was produced by a different provider version.
	StaleEntities(ctx context.Context, providerVersion string) ([]string, error)

	// PutRecord persists a new generation record.
	PutRecord(ctx context.Context, rec models.GenerationRecord) error

	// GetRecord returns the record. ErrNotFound if absent.
	GetRecord(ctx context.Context, id string) (*models.GenerationRecord, error)

	// ListRecords returns records, optionally filtered by status (empty
	// status matches all), ordered by CreatedAt then ID.
	ListRecords(ctx context.Context, status models.RecordStatus) ([]models.GenerationRecord, error)

	// UpdateRecordStatus applies a state machine transition. Returns
	// ErrRecordFinal for terminal records and ErrIllegalTransition for
	// disallowed steps. Reason is stored for validator failures and
	// rejections.
	UpdateRecordStatus(ctx context.Context, id string, next models.RecordStatus, reason string) error

	// DanglingRelations reports relations whose target entity no longer
	// exists. Dangling relations are reported, never auto-pruned.
	DanglingRelations(ctx context.Context) ([]DanglingRelation, error)

	// Subscribe registers a write-event callback. Callbacks run
	// synchronously on the writing goroutine and must be fast.
	Subscribe(fn func(WriteEvent))

	// Sync flushes pending state to durable storage.
	Sync(ctx context.Context) error

	Close() error
}

// DanglingRelation identifies a relation pointing at a missing target.
type DanglingRelation struct {
	SourceID string `json:"source_id"`
	Kind     string `json:"kind"`
	TargetID string `json:"target_id"`
}

// matchesFilter implements the shared Filter semantics for both backends.
func matchesFilter(e *models.Entity, f Filter) bool {
	if e.Tombstoned && !f.IncludeTombstoned {
		return false
	}
	if f.Language != "" && e.Metadata[models.MetaLanguage] != f.Language {
		return false
	}
	if f.Tag != "" && !hasTag(e.Metadata[models.MetaTags], f.Tag) {
		return false
	}
	return true
}

func hasTag(tags, want string) bool {
	start := 0
	for i := 0; i <= len(tags); i++ {
		if i == len(tags) || tags[i] == ',' {
			if trimSpace(tags[start:i]) == want {
				return true
			}
			start = i + 1
		}
	}
	return false
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}
