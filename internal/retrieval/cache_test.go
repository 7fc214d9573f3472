package retrieval

import (
	"context"
	"testing"

	"github.com/loom-ai/loom/internal/models"
)

func TestCachedEngineHitsOnRepeat(t *testing.T) {
	s, p := seedStore(t)
	c := NewCachedEngine(NewEngine(s, p, nil), s)
	ctx := context.Background()

	first, err := c.Retrieve(ctx, "factory pattern", Options{K: 2})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	second, err := c.Retrieve(ctx, "factory pattern", Options{K: 2})
	if err != nil {
		t.Fatalf("cached Retrieve failed: %v", err)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses, want 1 and 1", hits, misses)
	}
	if len(first) != len(second) {
		t.Fatalf("cached result differs in length")
	}
	for i := range first {
		if first[i].Entity.ID != second[i].Entity.ID {
			t.Errorf("cached result differs at %d", i)
		}
	}
}

func TestCachedEngineKeyIncludesOptions(t *testing.T) {
	s, p := seedStore(t)
	c := NewCachedEngine(NewEngine(s, p, nil), s)
	ctx := context.Background()

	if _, err := c.Retrieve(ctx, "factory pattern", Options{K: 2}); err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if _, err := c.Retrieve(ctx, "factory pattern", Options{K: 3}); err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if hits, misses := c.Stats(); hits != 0 || misses != 2 {
		t.Errorf("stats = %d hits, %d misses, want 0 and 2", hits, misses)
	}
}

func TestCachedEngineInvalidatedByWrite(t *testing.T) {
	s, p := seedStore(t)
	c := NewCachedEngine(NewEngine(s, p, nil), s)
	ctx := context.Background()

	if _, err := c.Retrieve(ctx, "factory pattern", Options{K: 2}); err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	// Any store write flushes the cache
	if _, err := s.Put(ctx, models.Entity{
		Kind: models.KindGuideline, Content: "new guideline",
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := c.Retrieve(ctx, "factory pattern", Options{K: 2}); err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if hits, misses := c.Stats(); hits != 0 || misses != 2 {
		t.Errorf("stats after invalidation = %d hits, %d misses, want 0 and 2", hits, misses)
	}
}

func TestCachedEngineReturnsCopies(t *testing.T) {
	s, p := seedStore(t)
	c := NewCachedEngine(NewEngine(s, p, nil), s)
	ctx := context.Background()

	first, err := c.Retrieve(ctx, "factory pattern", Options{K: 1})
	if err != nil || len(first) == 0 {
		t.Fatalf("Retrieve failed: %v", err)
	}
	first[0].Entity.Metadata[models.MetaName] = "mutated"

	again, _ := c.Retrieve(ctx, "factory pattern", Options{K: 1})
	if again[0].Entity.Metadata[models.MetaName] == "mutated" {
		t.Error("cache returned shared state")
	}
}
