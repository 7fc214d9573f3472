package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/vecmath"
)

// InMemoryStore implements EntityStore for testing and development.
type InMemoryStore struct {
	mu          sync.RWMutex
	entities    map[string]models.Entity
	records     map[string]models.GenerationRecord
	dimension   int
	subscribers []func(WriteEvent)
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entities: make(map[string]models.Entity),
		records:  make(map[string]models.GenerationRecord),
	}
}

// Put stores the entity with per-entity atomicity.
func (s *InMemoryStore) Put(ctx context.Context, e models.Entity) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()

	if e.ID == "" {
		e.ID = models.NewEntityID()
	}

	existing, exists := s.entities[e.ID]
	if exists {
		if e.Kind != existing.Kind {
			s.mu.Unlock()
			return "", fmt.Errorf("entity %s: kind is immutable (%s -> %s)", e.ID, existing.Kind, e.Kind)
		}
		// Content edits invalidate the stored embedding unless the caller
		// supplied a fresh one.
		if e.Content != existing.Content && sameVector(e.Embedding, existing.Embedding) {
			e.Embedding = nil
			e.EmbeddingVersion = ""
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = existing.CreatedAt
		}
	} else if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}

	if len(e.Embedding) > 0 {
		if s.dimension == 0 {
			s.dimension = len(e.Embedding)
		} else if len(e.Embedding) != s.dimension {
			s.mu.Unlock()
			return "", fmt.Errorf("entity %s: got %d, store dimension %d: %w",
				e.ID, len(e.Embedding), s.dimension, ErrDimensionMismatch)
		}
	}

	s.entities[e.ID] = e.Clone()
	event := WriteEvent{EntityID: e.ID, Kind: e.Kind}
	subs := append([]func(WriteEvent){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return e.ID, nil
}

// Get returns the entity by ID.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	out := e.Clone()
	return &out, nil
}

// Delete removes an entity. Fails with ErrConflict while referenced.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()

	e, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	for _, rec := range s.records {
		if rec.References(id) {
			s.mu.Unlock()
			return fmt.Errorf("entity %s referenced by record %s: %w", id, rec.ID, ErrConflict)
		}
	}

	delete(s.entities, id)
	event := WriteEvent{EntityID: id, Kind: e.Kind, Deleted: true}
	subs := append([]func(WriteEvent){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return nil
}

// Tombstone soft-deletes an entity.
func (s *InMemoryStore) Tombstone(ctx context.Context, id string) error {
	s.mu.Lock()

	e, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	e.Tombstoned = true
	e.UpdatedAt = time.Now().UTC()
	s.entities[id] = e

	event := WriteEvent{EntityID: id, Kind: e.Kind}
	subs := append([]func(WriteEvent){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return nil
}

// FindByKind returns live entities of the kind, ordered by ID.
func (s *InMemoryStore) FindByKind(ctx context.Context, kind models.EntityKind, f Filter) ([]models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.Entity, 0)
	for _, e := range s.entities {
		if e.Kind != kind {
			continue
		}
		if !matchesFilter(&e, f) {
			continue
		}
		results = append(results, e.Clone())
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// SimilaritySearch runs a brute-force cosine scan over embedded entities of
// the kind.
func (s *InMemoryStore) SimilaritySearch(ctx context.Context, kind models.EntityKind, vec []float32, k int) ([]ScoredEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(vec) != s.dimension {
		return nil, fmt.Errorf("query vector: got %d, store dimension %d: %w",
			len(vec), s.dimension, ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	results := make([]ScoredEntity, 0)
	for _, e := range s.entities {
		if e.Kind != kind || e.Tombstoned || len(e.Embedding) == 0 {
			continue
		}
		results = append(results, ScoredEntity{
			Entity: e.Clone(),
			Score:  vecmath.CosineSimilarity(vec, e.Embedding),
		})
	}

	sortScored(results)
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Dimension returns the established embedding dimension.
func (s *InMemoryStore) Dimension(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension, nil
}

// StaleEntities returns live entities needing re-embedding for the given
// provider version.
func (s *InMemoryStore) StaleEntities(ctx context.Context, providerVersion string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, e := range s.entities {
		if e.Tombstoned {
			continue
		}
		if len(e.Embedding) == 0 || e.EmbeddingVersion != providerVersion {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// PutRecord persists a new generation record.
func (s *InMemoryStore) PutRecord(ctx context.Context, rec models.GenerationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.ID]; ok && existing.Status.Terminal() {
		return fmt.Errorf("record %s: %w", rec.ID, ErrRecordFinal)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

// GetRecord returns the record by ID.
func (s *InMemoryStore) GetRecord(ctx context.Context, id string) (*models.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	out := cloneRecord(rec)
	return &out, nil
}

// ListRecords returns records ordered by CreatedAt then ID.
func (s *InMemoryStore) ListRecords(ctx context.Context, status models.RecordStatus) ([]models.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.GenerationRecord, 0)
	for _, rec := range s.records {
		if status != "" && rec.Status != status {
			continue
		}
		results = append(results, cloneRecord(rec))
	}
	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.Before(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// UpdateRecordStatus applies a legal state machine transition.
func (s *InMemoryStore) UpdateRecordStatus(ctx context.Context, id string, next models.RecordStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("record %s in status %s: %w", id, rec.Status, ErrRecordFinal)
	}
	if !rec.Status.CanTransition(next) {
		return fmt.Errorf("record %s: %s -> %s: %w", id, rec.Status, next, ErrIllegalTransition)
	}

	rec.Status = next
	if reason != "" {
		rec.FailReason = reason
	}
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return nil
}

// DanglingRelations reports relations with missing targets.
func (s *InMemoryStore) DanglingRelations(ctx context.Context) ([]DanglingRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dangling []DanglingRelation
	for _, e := range s.entities {
		for _, r := range e.Relations {
			if _, ok := s.entities[r.Target]; !ok {
				dangling = append(dangling, DanglingRelation{
					SourceID: e.ID,
					Kind:     r.Kind,
					TargetID: r.Target,
				})
			}
		}
	}
	sort.Slice(dangling, func(i, j int) bool {
		if dangling[i].SourceID != dangling[j].SourceID {
			return dangling[i].SourceID < dangling[j].SourceID
		}
		return dangling[i].TargetID < dangling[j].TargetID
	})
	return dangling, nil
}

// Subscribe registers a write-event callback.
func (s *InMemoryStore) Subscribe(fn func(WriteEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Sync is a no-op for in-memory storage.
func (s *InMemoryStore) Sync(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage.
func (s *InMemoryStore) Close() error {
	return nil
}

// sortScored orders by descending score, most recent UpdatedAt, then
// ascending ID. The ordering is total so identical inputs always produce
// identical output.
func sortScored(results []ScoredEntity) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Entity.UpdatedAt.Equal(results[j].Entity.UpdatedAt) {
			return results[i].Entity.UpdatedAt.After(results[j].Entity.UpdatedAt)
		}
		return results[i].Entity.ID < results[j].Entity.ID
	})
}

func sameVector(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneRecord(rec models.GenerationRecord) models.GenerationRecord {
	out := rec
	if rec.Retrieved != nil {
		out.Retrieved = make([]models.RetrievalHit, len(rec.Retrieved))
		copy(out.Retrieved, rec.Retrieved)
	}
	if rec.ContextIDs != nil {
		out.ContextIDs = make([]string, len(rec.ContextIDs))
		copy(out.ContextIDs, rec.ContextIDs)
	}
	return out
}
