package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/vecmath"
)

const dimensionMetaKey = "embedding_dimension"

// SQLiteStore implements EntityStore using SQLite for persistence. Vector
// search is a brute-force cosine scan over the embedded rows of a kind,
// which stays fast for the corpus sizes a single project accumulates.
type SQLiteStore struct {
	mu          sync.RWMutex
	db          *sql.DB
	loomDir     string
	dbPath      string
	subscribers []func(WriteEvent)
}

// NewSQLiteStore opens or creates the database at <projectRoot>/.loom/loom.db.
func NewSQLiteStore(projectRoot string) (*SQLiteStore, error) {
	loomDir := filepath.Join(projectRoot, ".loom")

	if err := os.MkdirAll(loomDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .loom directory: %w", err)
	}

	dbPath := filepath.Join(loomDir, "loom.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		loomDir: loomDir,
		dbPath:  dbPath,
	}, nil
}

// Put stores the entity.
func (s *SQLiteStore) Put(ctx context.Context, e models.Entity) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()

	if e.ID == "" {
		e.ID = models.NewEntityID()
	}

	existing, err := s.getUnlocked(ctx, e.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.mu.Unlock()
		return "", err
	}
	if existing != nil {
		if e.Kind != existing.Kind {
			s.mu.Unlock()
			return "", fmt.Errorf("entity %s: kind is immutable (%s -> %s)", e.ID, existing.Kind, e.Kind)
		}
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
		dim, err := s.dimensionUnlocked(ctx)
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		if dim == 0 {
			if err := s.setDimensionUnlocked(ctx, len(e.Embedding)); err != nil {
				s.mu.Unlock()
				return "", err
			}
		} else if len(e.Embedding) != dim {
			s.mu.Unlock()
			return "", fmt.Errorf("entity %s: got %d, store dimension %d: %w",
				e.ID, len(e.Embedding), dim, ErrDimensionMismatch)
		}
	}

	var embeddingJSON, metadataJSON, relationsJSON []byte
	if len(e.Embedding) > 0 {
		if embeddingJSON, err = json.Marshal(e.Embedding); err != nil {
			s.mu.Unlock()
			return "", fmt.Errorf("failed to marshal embedding: %w", err)
		}
	}
	if len(e.Metadata) > 0 {
		if metadataJSON, err = json.Marshal(e.Metadata); err != nil {
			s.mu.Unlock()
			return "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if len(e.Relations) > 0 {
		if relationsJSON, err = json.Marshal(e.Relations); err != nil {
			s.mu.Unlock()
			return "", fmt.Errorf("failed to marshal relations: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO entities (
			id, kind, content, embedding, embedding_version,
			metadata, relations, tombstoned, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Kind), e.Content, nullBytes(embeddingJSON), e.EmbeddingVersion,
		nullBytes(metadataJSON), nullBytes(relationsJSON), boolToInt(e.Tombstoned),
		e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("failed to insert entity: %w", err)
	}

	event := WriteEvent{EntityID: e.ID, Kind: e.Kind}
	subs := append([]func(WriteEvent){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return e.ID, nil
}

// Get returns the entity by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUnlocked(ctx, id)
}

// getUnlocked reads one entity row (caller must hold the lock).
func (s *SQLiteStore) getUnlocked(ctx context.Context, id string) (*models.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, content, embedding, embedding_version,
		       metadata, relations, tombstoned, created_at, updated_at
		FROM entities WHERE id = ?
	`, id)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var (
		e                                 models.Entity
		kind                              string
		embeddingJSON, metaJSON, relsJSON sql.NullString
		tombstoned                        int
		createdAt, updatedAt              string
	)

	err := row.Scan(&e.ID, &kind, &e.Content, &embeddingJSON, &e.EmbeddingVersion,
		&metaJSON, &relsJSON, &tombstoned, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Kind = models.EntityKind(kind)
	e.Tombstoned = tombstoned != 0

	if embeddingJSON.Valid {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &e.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding for %s: %w", e.ID, err)
		}
	}
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", e.ID, err)
		}
	}
	if relsJSON.Valid {
		if err := json.Unmarshal([]byte(relsJSON.String), &e.Relations); err != nil {
			return nil, fmt.Errorf("unmarshal relations for %s: %w", e.ID, err)
		}
	}

	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", e.ID, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", e.ID, err)
	}
	return &e, nil
}

// Delete removes an entity. Fails with ErrConflict while referenced.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()

	e, err := s.getUnlocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	records, err := s.listRecordsUnlocked(ctx, "")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for _, rec := range records {
		if rec.References(id) {
			s.mu.Unlock()
			return fmt.Errorf("entity %s referenced by record %s: %w", id, rec.ID, ErrConflict)
		}
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	event := WriteEvent{EntityID: id, Kind: e.Kind, Deleted: true}
	subs := append([]func(WriteEvent){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return nil
}

// Tombstone soft-deletes an entity.
func (s *SQLiteStore) Tombstone(ctx context.Context, id string) error {
	s.mu.Lock()

	e, err := s.getUnlocked(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE entities SET tombstoned = 1, updated_at = ? WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to tombstone entity: %w", err)
	}

	event := WriteEvent{EntityID: id, Kind: e.Kind}
	subs := append([]func(WriteEvent){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return nil
}

// FindByKind returns live entities of the kind, ordered by ID.
func (s *SQLiteStore) FindByKind(ctx context.Context, kind models.EntityKind, f Filter) ([]models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities, err := s.entitiesByKindUnlocked(ctx, kind)
	if err != nil {
		return nil, err
	}

	results := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		if matchesFilter(&e, f) {
			results = append(results, e)
		}
	}
	return results, nil
}

// entitiesByKindUnlocked reads all rows of the kind, ordered by ID.
func (s *SQLiteStore) entitiesByKindUnlocked(ctx context.Context, kind models.EntityKind) ([]models.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, content, embedding, embedding_version,
		       metadata, relations, tombstoned, created_at, updated_at
		FROM entities WHERE kind = ? ORDER BY id
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

// SimilaritySearch runs a brute-force cosine scan over embedded entities of
// the kind.
func (s *SQLiteStore) SimilaritySearch(ctx context.Context, kind models.EntityKind, vec []float32, k int) ([]ScoredEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dim, err := s.dimensionUnlocked(ctx)
	if err != nil {
		return nil, err
	}
	if dim != 0 && len(vec) != dim {
		return nil, fmt.Errorf("query vector: got %d, store dimension %d: %w",
			len(vec), dim, ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	entities, err := s.entitiesByKindUnlocked(ctx, kind)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredEntity, 0, len(entities))
	for _, e := range entities {
		if e.Tombstoned || len(e.Embedding) == 0 {
			continue
		}
		results = append(results, ScoredEntity{
			Entity: e,
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
func (s *SQLiteStore) Dimension(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensionUnlocked(ctx)
}

func (s *SQLiteStore) dimensionUnlocked(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, dimensionMetaKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read dimension: %w", err)
	}
	dim, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("corrupt dimension value %q: %w", value, err)
	}
	return dim, nil
}

func (s *SQLiteStore) setDimensionUnlocked(ctx context.Context, dim int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)
	`, dimensionMetaKey, strconv.Itoa(dim))
	if err != nil {
		return fmt.Errorf("failed to store dimension: %w", err)
	}
	return nil
}

// StaleEntities returns live entities needing re-embedding for the given
// provider version.
func (s *SQLiteStore) StaleEntities(ctx context.Context, providerVersion string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM entities
		WHERE tombstoned = 0 AND (embedding IS NULL OR embedding_version != ?)
		ORDER BY id
	`, providerVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale entities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PutRecord persists a new generation record.
func (s *SQLiteStore) PutRecord(ctx context.Context, rec models.GenerationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getRecordUnlocked(ctx, rec.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.Status.Terminal() {
		return fmt.Errorf("record %s: %w", rec.ID, ErrRecordFinal)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	var retrievedJSON, contextJSON []byte
	if len(rec.Retrieved) > 0 {
		if retrievedJSON, err = json.Marshal(rec.Retrieved); err != nil {
			return fmt.Errorf("failed to marshal retrieved hits: %w", err)
		}
	}
	if len(rec.ContextIDs) > 0 {
		if contextJSON, err = json.Marshal(rec.ContextIDs); err != nil {
			return fmt.Errorf("failed to marshal context IDs: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO records (
			id, query, mode, retrieved, context_ids, prompt, model_id,
			output, output_hash, embedding_version, status, fail_reason,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Query, rec.Mode, nullBytes(retrievedJSON), nullBytes(contextJSON),
		rec.Prompt, rec.ModelID, rec.Output, rec.OutputHash, rec.EmbeddingVersion,
		string(rec.Status), rec.FailReason,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// GetRecord returns the record by ID.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*models.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRecordUnlocked(ctx, id)
}

func (s *SQLiteStore) getRecordUnlocked(ctx context.Context, id string) (*models.GenerationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, mode, retrieved, context_ids, prompt, model_id,
		       output, output_hash, embedding_version, status, fail_reason,
		       created_at, updated_at
		FROM records WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func scanRecord(row rowScanner) (*models.GenerationRecord, error) {
	var (
		rec                    models.GenerationRecord
		retrievedJSON, ctxJSON sql.NullString
		status                 string
		createdAt, updatedAt   string
	)

	err := row.Scan(&rec.ID, &rec.Query, &rec.Mode, &retrievedJSON, &ctxJSON,
		&rec.Prompt, &rec.ModelID, &rec.Output, &rec.OutputHash,
		&rec.EmbeddingVersion, &status, &rec.FailReason, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Status = models.RecordStatus(status)

	if retrievedJSON.Valid {
		if err := json.Unmarshal([]byte(retrievedJSON.String), &rec.Retrieved); err != nil {
			return nil, fmt.Errorf("unmarshal retrieved for %s: %w", rec.ID, err)
		}
	}
	if ctxJSON.Valid {
		if err := json.Unmarshal([]byte(ctxJSON.String), &rec.ContextIDs); err != nil {
			return nil, fmt.Errorf("unmarshal context IDs for %s: %w", rec.ID, err)
		}
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// ListRecords returns records ordered by CreatedAt then ID.
func (s *SQLiteStore) ListRecords(ctx context.Context, status models.RecordStatus) ([]models.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRecordsUnlocked(ctx, status)
}

func (s *SQLiteStore) listRecordsUnlocked(ctx context.Context, status models.RecordStatus) ([]models.GenerationRecord, error) {
	query := `
		SELECT id, query, mode, retrieved, context_ids, prompt, model_id,
		       output, output_hash, embedding_version, status, fail_reason,
		       created_at, updated_at
		FROM records`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	results := make([]models.GenerationRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		results = append(results, *rec)
	}
	return results, rows.Err()
}

// UpdateRecordStatus applies a legal state machine transition.
func (s *SQLiteStore) UpdateRecordStatus(ctx context.Context, id string, next models.RecordStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getRecordUnlocked(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("record %s in status %s: %w", id, rec.Status, ErrRecordFinal)
	}
	if !rec.Status.CanTransition(next) {
		return fmt.Errorf("record %s: %s -> %s: %w", id, rec.Status, next, ErrIllegalTransition)
	}

	failReason := rec.FailReason
	if reason != "" {
		failReason = reason
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE records SET status = ?, fail_reason = ?, updated_at = ? WHERE id = ?
	`, string(next), failReason, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update record status: %w", err)
	}
	return nil
}

// DanglingRelations reports relations with missing targets.
func (s *SQLiteStore) DanglingRelations(ctx context.Context) ([]DanglingRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, relations FROM entities WHERE relations IS NOT NULL ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}

	type sourced struct {
		id   string
		rels []models.Relation
	}
	var sources []sourced
	for rows.Next() {
		var id string
		var relsJSON string
		if err := rows.Scan(&id, &relsJSON); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan relations: %w", err)
		}
		var rels []models.Relation
		if err := json.Unmarshal([]byte(relsJSON), &rels); err != nil {
			rows.Close()
			return nil, fmt.Errorf("unmarshal relations for %s: %w", id, err)
		}
		sources = append(sources, sourced{id: id, rels: rels})
	}
	rows.Close()

	var dangling []DanglingRelation
	for _, src := range sources {
		for _, r := range src.rels {
			var exists int
			err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = ?`, r.Target).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				dangling = append(dangling, DanglingRelation{
					SourceID: src.id,
					Kind:     r.Kind,
					TargetID: r.Target,
				})
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to check relation target: %w", err)
			}
		}
	}
	return dangling, nil
}

// Subscribe registers a write-event callback.
func (s *SQLiteStore) Subscribe(fn func(WriteEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Sync exports the store to JSONL files next to the database.
func (s *SQLiteStore) Sync(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entitiesFile := filepath.Join(s.loomDir, "entities.jsonl")
	recordsFile := filepath.Join(s.loomDir, "records.jsonl")

	if err := s.exportEntitiesUnlocked(ctx, entitiesFile); err != nil {
		return fmt.Errorf("failed to export entities: %w", err)
	}
	if err := s.exportRecordsUnlocked(ctx, recordsFile); err != nil {
		return fmt.Errorf("failed to export records: %w", err)
	}
	return nil
}

func (s *SQLiteStore) exportEntitiesUnlocked(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create entities file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	for _, kind := range models.AllKinds() {
		entities, err := s.entitiesByKindUnlocked(ctx, kind)
		if err != nil {
			return err
		}
		for _, e := range entities {
			if err := encoder.Encode(e); err != nil {
				return fmt.Errorf("failed to encode entity: %w", err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) exportRecordsUnlocked(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create records file: %w", err)
	}
	defer f.Close()

	records, err := s.listRecordsUnlocked(ctx, "")
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(f)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return nil
}

// Close syncs and closes the store.
func (s *SQLiteStore) Close() error {
	if err := s.Sync(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to sync during close: %v\n", err)
	}
	return s.db.Close()
}

func nullBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
