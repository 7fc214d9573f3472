package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loom-ai/loom/internal/models"
)

func TestInMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	id, err := s.Put(ctx, models.Entity{
		Kind:    models.KindSnippet,
		Content: "func main() {}",
		Metadata: map[string]string{
			models.MetaName:     "entrypoint",
			models.MetaLanguage: "go",
		},
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if id == "" {
		t.Fatal("Put returned empty ID")
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Content != "func main() {}" {
		t.Errorf("content = %q, want original", got.Content)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set on Put")
	}

	if _, err := s.Get(ctx, "ent-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestInMemoryPutValidation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if _, err := s.Put(ctx, models.Entity{Kind: "widget"}); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := s.Put(ctx, models.Entity{Kind: models.KindSnippet}); err == nil {
		t.Error("expected error for snippet without content")
	}
	// Guidelines may be metadata-only
	if _, err := s.Put(ctx, models.Entity{Kind: models.KindGuideline}); err != nil {
		t.Errorf("guideline without content rejected: %v", err)
	}
}

func TestInMemoryContentChangeClearsEmbedding(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	id, err := s.Put(ctx, models.Entity{
		Kind:             models.KindPattern,
		Content:          "singleton",
		Embedding:        []float32{1, 0, 0},
		EmbeddingVersion: "test-v1",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, _ := s.Get(ctx, id)
	got.Content = "singleton with lazy init"
	if _, err := s.Put(ctx, *got); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	updated, _ := s.Get(ctx, id)
	if len(updated.Embedding) != 0 || updated.EmbeddingVersion != "" {
		t.Error("content change did not clear embedding")
	}

	// Supplying a fresh embedding alongside the edit keeps it
	updated.Content = "singleton, eager"
	updated.Embedding = []float32{0, 1, 0}
	updated.EmbeddingVersion = "test-v1"
	if _, err := s.Put(ctx, *updated); err != nil {
		t.Fatalf("update with embedding failed: %v", err)
	}
	final, _ := s.Get(ctx, id)
	if len(final.Embedding) != 3 {
		t.Error("fresh embedding was dropped")
	}
}

func TestInMemoryDimensionEnforcement(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if _, err := s.Put(ctx, models.Entity{
		Kind: models.KindGuideline, Content: "a", Embedding: []float32{1, 2, 3},
	}); err != nil {
		t.Fatalf("first embedded Put failed: %v", err)
	}

	dim, err := s.Dimension(ctx)
	if err != nil || dim != 3 {
		t.Fatalf("Dimension = %d, %v, want 3", dim, err)
	}

	_, err = s.Put(ctx, models.Entity{
		Kind: models.KindGuideline, Content: "b", Embedding: []float32{1, 2},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatched Put = %v, want ErrDimensionMismatch", err)
	}

	_, err = s.SimilaritySearch(ctx, models.KindGuideline, []float32{1}, 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatched search = %v, want ErrDimensionMismatch", err)
	}
}

func TestInMemorySimilaritySearchOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

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

	// b and c tie on score; c is more recent so it ranks first.
	put("ent-a", []float32{1, 0}, base)
	put("ent-b", []float32{0, 1}, base)
	put("ent-c", []float32{0, 1}, base.Add(time.Hour))
	// d ties with b on score and time; ID breaks the tie.
	put("ent-d", []float32{0, 1}, base)

	results, err := s.SimilaritySearch(ctx, models.KindSnippet, []float32{0, 1}, 10)
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}

	wantOrder := []string{"ent-c", "ent-b", "ent-d", "ent-a"}
	if len(results) != len(wantOrder) {
		t.Fatalf("got %d results, want %d", len(results), len(wantOrder))
	}
	for i, want := range wantOrder {
		if results[i].Entity.ID != want {
			t.Errorf("result %d = %s, want %s", i, results[i].Entity.ID, want)
		}
	}

	// Repeated searches are byte-for-byte identical
	again, _ := s.SimilaritySearch(ctx, models.KindSnippet, []float32{0, 1}, 10)
	for i := range results {
		if results[i].Entity.ID != again[i].Entity.ID || results[i].Score != again[i].Score {
			t.Fatalf("search not deterministic at position %d", i)
		}
	}
}

func TestInMemorySimilaritySearchExcludesTombstonedAndUnembedded(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	live, _ := s.Put(ctx, models.Entity{
		Kind: models.KindSnippet, Content: "live", Embedding: []float32{1, 0},
	})
	dead, _ := s.Put(ctx, models.Entity{
		Kind: models.KindSnippet, Content: "dead", Embedding: []float32{1, 0},
	})
	if err := s.Tombstone(ctx, dead); err != nil {
		t.Fatalf("Tombstone failed: %v", err)
	}
	if _, err := s.Put(ctx, models.Entity{
		Kind: models.KindSnippet, Content: "no vector yet",
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	results, err := s.SimilaritySearch(ctx, models.KindSnippet, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SimilaritySearch failed: %v", err)
	}
	if len(results) != 1 || results[0].Entity.ID != live {
		t.Errorf("expected only live embedded entity, got %d results", len(results))
	}
}

func TestInMemoryDeleteConflict(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	id, _ := s.Put(ctx, models.Entity{Kind: models.KindPattern, Content: "factory"})

	rec := models.GenerationRecord{
		ID:         models.NewRecordID(),
		Query:      "make a factory",
		ContextIDs: []string{id},
		Status:     models.StatusPending,
	}
	if err := s.PutRecord(ctx, rec); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	if err := s.Delete(ctx, id); !errors.Is(err, ErrConflict) {
		t.Errorf("Delete referenced entity = %v, want ErrConflict", err)
	}

	// Tombstone still works and keeps the entity retrievable
	if err := s.Tombstone(ctx, id); err != nil {
		t.Fatalf("Tombstone failed: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after tombstone failed: %v", err)
	}
	if !got.Tombstoned {
		t.Error("entity not marked tombstoned")
	}

	// Unreferenced entities delete fine
	other, _ := s.Put(ctx, models.Entity{Kind: models.KindPattern, Content: "builder"})
	if err := s.Delete(ctx, other); err != nil {
		t.Errorf("Delete unreferenced = %v, want nil", err)
	}
}

func TestInMemoryFindByKindFilter(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	mk := func(id, lang, tags string) {
		t.Helper()
		if _, err := s.Put(ctx, models.Entity{
			ID: id, Kind: models.KindRule,
			Metadata: map[string]string{
				models.MetaLanguage: lang,
				models.MetaTags:     tags,
			},
		}); err != nil {
			t.Fatalf("Put %s failed: %v", id, err)
		}
	}
	mk("ent-1", "go", "errors, style")
	mk("ent-2", "python", "style")
	mk("ent-3", "go", "naming")

	tombed, _ := s.Put(ctx, models.Entity{ID: "ent-4", Kind: models.KindRule,
		Metadata: map[string]string{models.MetaLanguage: "go"}})
	if err := s.Tombstone(ctx, tombed); err != nil {
		t.Fatalf("Tombstone failed: %v", err)
	}

	got, err := s.FindByKind(ctx, models.KindRule, Filter{Language: "go"})
	if err != nil {
		t.Fatalf("FindByKind failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "ent-1" || got[1].ID != "ent-3" {
		t.Errorf("language filter: got %d entities", len(got))
	}

	got, _ = s.FindByKind(ctx, models.KindRule, Filter{Tag: "style"})
	if len(got) != 2 {
		t.Errorf("tag filter: got %d entities, want 2", len(got))
	}

	got, _ = s.FindByKind(ctx, models.KindRule, Filter{Language: "go", IncludeTombstoned: true})
	if len(got) != 3 {
		t.Errorf("include tombstoned: got %d entities, want 3", len(got))
	}
}

func TestInMemoryRecordStateMachine(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	rec := models.GenerationRecord{
		ID:     "rec-1",
		Query:  "q",
		Status: models.StatusPending,
	}
	if err := s.PutRecord(ctx, rec); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	// pending cannot jump straight to approved
	err := s.UpdateRecordStatus(ctx, "rec-1", models.StatusApproved, "")
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("pending->approved = %v, want ErrIllegalTransition", err)
	}

	if err := s.UpdateRecordStatus(ctx, "rec-1", models.StatusAwaitingReview, ""); err != nil {
		t.Fatalf("pending->awaiting failed: %v", err)
	}
	if err := s.UpdateRecordStatus(ctx, "rec-1", models.StatusApproved, ""); err != nil {
		t.Fatalf("awaiting->approved failed: %v", err)
	}

	// approved is terminal
	err = s.UpdateRecordStatus(ctx, "rec-1", models.StatusRejected, "")
	if !errors.Is(err, ErrRecordFinal) {
		t.Errorf("mutating terminal record = %v, want ErrRecordFinal", err)
	}

	// validator failure path carries a reason
	rec2 := models.GenerationRecord{ID: "rec-2", Query: "q", Status: models.StatusPending}
	if err := s.PutRecord(ctx, rec2); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}
	if err := s.UpdateRecordStatus(ctx, "rec-2", models.StatusValidatorFailed, "syntax check failed"); err != nil {
		t.Fatalf("pending->validator_failed failed: %v", err)
	}
	got, _ := s.GetRecord(ctx, "rec-2")
	if got.FailReason != "syntax check failed" {
		t.Errorf("fail reason = %q", got.FailReason)
	}
}

func TestInMemoryListRecordsOrder(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	put := func(id string, at time.Time, status models.RecordStatus) {
		t.Helper()
		if err := s.PutRecord(ctx, models.GenerationRecord{
			ID: id, Query: "q", Status: status, CreatedAt: at,
		}); err != nil {
			t.Fatalf("PutRecord %s failed: %v", id, err)
		}
	}
	put("rec-b", base.Add(time.Minute), models.StatusPending)
	put("rec-a", base, models.StatusAwaitingReview)
	put("rec-c", base.Add(time.Minute), models.StatusPending)

	all, err := s.ListRecords(ctx, "")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	wantOrder := []string{"rec-a", "rec-b", "rec-c"}
	for i, want := range wantOrder {
		if all[i].ID != want {
			t.Errorf("record %d = %s, want %s", i, all[i].ID, want)
		}
	}

	pending, _ := s.ListRecords(ctx, models.StatusPending)
	if len(pending) != 2 {
		t.Errorf("status filter: got %d records, want 2", len(pending))
	}
}

func TestInMemoryStaleEntities(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	current, _ := s.Put(ctx, models.Entity{
		Kind: models.KindSnippet, Content: "a",
		Embedding: []float32{1}, EmbeddingVersion: "v2",
	})
	old, _ := s.Put(ctx, models.Entity{
		Kind: models.KindSnippet, Content: "b",
		Embedding: []float32{1}, EmbeddingVersion: "v1",
	})
	missing, _ := s.Put(ctx, models.Entity{Kind: models.KindSnippet, Content: "c"})

	stale, err := s.StaleEntities(ctx, "v2")
	if err != nil {
		t.Fatalf("StaleEntities failed: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("got %d stale, want 2", len(stale))
	}
	for _, id := range stale {
		if id == current {
			t.Errorf("current entity %s reported stale", id)
		}
		if id != old && id != missing {
			t.Errorf("unexpected stale ID %s", id)
		}
	}
}

func TestInMemoryDanglingRelations(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	target, _ := s.Put(ctx, models.Entity{ID: "ent-pattern", Kind: models.KindPattern, Content: "p"})
	if _, err := s.Put(ctx, models.Entity{
		ID: "ent-snippet", Kind: models.KindSnippet, Content: "s",
		Relations: []models.Relation{
			{Kind: models.RelationInstantiates, Target: target},
			{Kind: models.RelationUses, Target: "ent-gone"},
		},
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	dangling, err := s.DanglingRelations(ctx)
	if err != nil {
		t.Fatalf("DanglingRelations failed: %v", err)
	}
	if len(dangling) != 1 {
		t.Fatalf("got %d dangling, want 1", len(dangling))
	}
	if dangling[0].SourceID != "ent-snippet" || dangling[0].TargetID != "ent-gone" {
		t.Errorf("unexpected dangling relation: %+v", dangling[0])
	}
}

func TestInMemorySubscribe(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	var events []WriteEvent
	s.Subscribe(func(ev WriteEvent) { events = append(events, ev) })

	id, _ := s.Put(ctx, models.Entity{Kind: models.KindGuideline, Content: "g"})
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Deleted || !events[1].Deleted {
		t.Errorf("event deleted flags wrong: %+v", events)
	}
	if events[0].EntityID != id || events[1].EntityID != id {
		t.Errorf("event IDs wrong: %+v", events)
	}
}

func TestInMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	id, _ := s.Put(ctx, models.Entity{
		Kind: models.KindGuideline, Content: "g",
		Metadata: map[string]string{models.MetaName: "original"},
	})

	got, _ := s.Get(ctx, id)
	got.Metadata[models.MetaName] = "mutated"

	again, _ := s.Get(ctx, id)
	if again.Metadata[models.MetaName] != "original" {
		t.Error("Get returned shared state")
	}
}
