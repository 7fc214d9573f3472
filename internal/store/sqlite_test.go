package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loom-ai/loom/internal/models"
)

func newTestSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLiteStore(t)

	id, err := s.Put(ctx, models.Entity{
		Kind:             models.KindSnippet,
		Content:          "def hello(): pass",
		Embedding:        []float32{0.1, 0.2, 0.3},
		EmbeddingVersion: "test-v1",
		Metadata: map[string]string{
			models.MetaName:     "hello",
			models.MetaLanguage: "python",
			models.MetaTags:     "demo, greeting",
		},
		Relations: []models.Relation{
			{Kind: models.RelationUses, Target: "ent-other"},
		},
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "def hello(): pass" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Embedding) != 3 || got.EmbeddingVersion != "test-v1" {
		t.Errorf("embedding not preserved: len=%d version=%q", len(got.Embedding), got.EmbeddingVersion)
	}
	if got.Metadata[models.MetaLanguage] != "python" {
		t.Errorf("metadata not preserved: %v", got.Metadata)
	}
	if len(got.Relations) != 1 || got.Relations[0].Target != "ent-other" {
		t.Errorf("relations not preserved: %v", got.Relations)
	}
}

func TestSQLitePersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	id, err := s.Put(ctx, models.Entity{
		Kind: models.KindGuideline, Content: "prefer clarity",
		Embedding: []float32{1, 0}, EmbeddingVersion: "test-v1",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	rec := models.GenerationRecord{ID: "rec-1", Query: "q", Status: models.StatusApproved}
	if err := s.PutRecord(ctx, rec); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.Content != "prefer clarity" {
		t.Errorf("content lost across reopen: %q", got.Content)
	}

	dim, err := reopened.Dimension(ctx)
	if err != nil || dim != 2 {
		t.Errorf("Dimension after reopen = %d, %v, want 2", dim, err)
	}

	gotRec, err := reopened.GetRecord(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetRecord after reopen failed: %v", err)
	}
	if gotRec.Status != models.StatusApproved {
		t.Errorf("record status lost across reopen: %s", gotRec.Status)
	}
}

func TestSQLiteDimensionEnforcement(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLiteStore(t)

	if _, err := s.Put(ctx, models.Entity{
		Kind: models.KindSnippet, Content: "a", Embedding: []float32{1, 2, 3},
	}); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	_, err := s.Put(ctx, models.Entity{
		Kind: models.KindSnippet, Content: "b", Embedding: []float32{1},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatched Put = %v, want ErrDimensionMismatch", err)
	}
}

func TestSQLiteSimilaritySearchOrdering(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLiteStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	put := func(id string, vec []float32, updated time.Time) {
		t.Helper()
		if _, err := s.Put(ctx, models.Entity{
			ID: id, Kind: models.KindSnippet, Content: "x",
			Embedding: vec, EmbeddingVersion: "test-v1",
			CreatedAt: base, UpdatedAt: updated,
		}); err != nil {
			t.Fatalf("Put %s failed: %v", id, err)
		}
	}
	put("ent-a", []float32{1, 0}, base)
	put("ent-b", []float32{0, 1}, base)
	put("ent-c", []float32{0, 1}, base.Add(time.Hour))

	results, err := s.SimilaritySearch(ctx, models.KindSnippet, []float32{0, 1}, 2)
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Entity.ID != "ent-c" || results[1].Entity.ID != "ent-b" {
		t.Errorf("order = %s, %s, want ent-c, ent-b", results[0].Entity.ID, results[1].Entity.ID)
	}
}

func TestSQLiteDeleteConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLiteStore(t)

	id, _ := s.Put(ctx, models.Entity{Kind: models.KindPattern, Content: "factory"})
	if err := s.PutRecord(ctx, models.GenerationRecord{
		ID: "rec-1", Query: "q", Status: models.StatusPending,
		Retrieved: []models.RetrievalHit{{EntityID: id, Score: 0.9}},
	}); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	if err := s.Delete(ctx, id); !errors.Is(err, ErrConflict) {
		t.Errorf("Delete referenced = %v, want ErrConflict", err)
	}
	if err := s.Tombstone(ctx, id); err != nil {
		t.Errorf("Tombstone failed: %v", err)
	}
}

func TestSQLiteRecordStateMachine(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLiteStore(t)

	if err := s.PutRecord(ctx, models.GenerationRecord{
		ID: "rec-1", Query: "q", Status: models.StatusPending,
	}); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	if err := s.UpdateRecordStatus(ctx, "rec-1", models.StatusApproved, ""); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("pending->approved = %v, want ErrIllegalTransition", err)
	}
	if err := s.UpdateRecordStatus(ctx, "rec-1", models.StatusAwaitingReview, ""); err != nil {
		t.Fatalf("pending->awaiting failed: %v", err)
	}
	if err := s.UpdateRecordStatus(ctx, "rec-1", models.StatusRejected, "wrong shape"); err != nil {
		t.Fatalf("awaiting->rejected failed: %v", err)
	}

	got, _ := s.GetRecord(ctx, "rec-1")
	if got.Status != models.StatusRejected || got.FailReason != "wrong shape" {
		t.Errorf("record = %s %q", got.Status, got.FailReason)
	}

	if err := s.UpdateRecordStatus(ctx, "rec-1", models.StatusApproved, ""); !errors.Is(err, ErrRecordFinal) {
		t.Errorf("mutating terminal = %v, want ErrRecordFinal", err)
	}
}

func TestSQLiteStaleEntities(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSQLiteStore(t)

	fresh, _ := s.Put(ctx, models.Entity{
		Kind: models.KindSnippet, Content: "a",
		Embedding: []float32{1}, EmbeddingVersion: "v2",
	})
	if _, err := s.Put(ctx, models.Entity{
		Kind: models.KindSnippet, Content: "b",
		Embedding: []float32{1}, EmbeddingVersion: "v1",
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	stale, err := s.StaleEntities(ctx, "v2")
	if err != nil {
		t.Fatalf("StaleEntities failed: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("got %d stale, want 1", len(stale))
	}
	if stale[0] == fresh {
		t.Errorf("fresh entity reported stale")
	}
}
