package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/loom-ai/loom/internal/embedding"
	"github.com/loom-ai/loom/internal/generation"
	"github.com/loom-ai/loom/internal/llm"
	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/retrieval"
	"github.com/loom-ai/loom/internal/store"
	"github.com/loom-ai/loom/internal/validation"
)

func seedKnowledge(t *testing.T, s store.EntityStore, p embedding.Provider) {
	t.Helper()
	ctx := context.Background()

	put := func(e models.Entity) string {
		t.Helper()
		if e.Content != "" {
			vec, err := p.Embed(ctx, e.Content)
			if err != nil {
				t.Fatalf("embed failed: %v", err)
			}
			e.Embedding = vec
			e.EmbeddingVersion = p.Version()
		}
		id, err := s.Put(ctx, e)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		return id
	}

	put(models.Entity{
		ID: "ent-rule-errors", Kind: models.KindRule,
		Content:  "every constructor must return an error as its second value",
		Metadata: map[string]string{models.MetaName: "constructor-errors", models.MetaLanguage: "go"},
	})
	put(models.Entity{
		ID: "ent-singleton", Kind: models.KindPattern,
		Content:  "singleton pattern: package-level instance guarded by sync.Once",
		Metadata: map[string]string{models.MetaName: "singleton", models.MetaLanguage: "go"},
	})
	put(models.Entity{
		ID: "ent-factory", Kind: models.KindPattern,
		Content:  "factory pattern constructing configured service objects",
		Metadata: map[string]string{models.MetaName: "factory", models.MetaLanguage: "go"},
	})
}

func newTestPipeline(t *testing.T, client llm.Client) (*Pipeline, store.EntityStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	p := embedding.NewHashProvider(64)
	seedKnowledge(t, s, p)

	reviewer := validation.NewReviewer(s, validation.NewRegistry(
		validation.NonEmptyOutput(),
		validation.NoFences(),
	), nil)

	return New(Options{
		Store:    s,
		Provider: p,
		Client:   client,
		Reviewer: reviewer,
	}), s
}

func TestQueryReturnsHits(t *testing.T) {
	pl, _ := newTestPipeline(t, llm.NewMockClient())

	hits, err := pl.Query(context.Background(), QueryRequest{
		Query: "singleton pattern with sync.Once", K: 2, Mode: retrieval.ModeHybrid,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].Entity.ID != "ent-singleton" {
		t.Errorf("top hit = %s, want ent-singleton", hits[0].Entity.ID)
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	client := llm.NewMockClient().WithOutput("func Instance() (*Service, error) { return svc, nil }")
	pl, s := newTestPipeline(t, client)

	rec, err := pl.Generate(context.Background(), GenerateRequest{
		Query:    "create a singleton factory for the service",
		Language: "go",
		K:        2,
		Mode:     retrieval.ModeHybrid,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Validators passed, so the record awaits human review
	if rec.Status != models.StatusAwaitingReview {
		t.Errorf("status = %s, want awaiting_human_review", rec.Status)
	}

	// The must rule is in the context even though the query never mentions it
	foundRule := false
	for _, id := range rec.ContextIDs {
		if id == "ent-rule-errors" {
			foundRule = true
		}
	}
	if !foundRule {
		t.Error("must rule missing from generation context")
	}

	// Output carries the watermark and lineage
	if !strings.Contains(rec.Output, "// loom:generated") {
		t.Error("output missing watermark")
	}
	if !strings.Contains(rec.Output, "// record: "+rec.ID) {
		t.Error("watermark missing record ID")
	}

	// The prompt placed rules before retrieved knowledge
	rulePos := strings.Index(rec.Prompt, "constructor-errors")
	taskPos := strings.Index(rec.Prompt, "## Task")
	if rulePos < 0 || taskPos < 0 || rulePos > taskPos {
		t.Error("prompt sections out of order")
	}

	// Record is persisted and queryable by status
	awaiting, err := s.ListRecords(context.Background(), models.StatusAwaitingReview)
	if err != nil || len(awaiting) != 1 {
		t.Errorf("awaiting records = %d, %v, want 1", len(awaiting), err)
	}
}

func TestGenerateValidatorFailureFailsClosed(t *testing.T) {
	client := llm.NewMockClient().WithOutput("```go\nfenced output\n```\nextra")
	pl, _ := newTestPipeline(t, client)

	rec, err := pl.Generate(context.Background(), GenerateRequest{
		Query: "create a factory", Language: "go", K: 2,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if rec.Status != models.StatusValidatorFailed {
		t.Errorf("status = %s, want validator_failed", rec.Status)
	}
	if rec.FailReason == "" {
		t.Error("validator failure carries no reason")
	}
}

func TestGenerateModelFailureLeavesNoRecord(t *testing.T) {
	client := llm.NewMockClient().WithErrors(errors.New("invalid api key"))
	pl, s := newTestPipeline(t, client)

	_, err := pl.Generate(context.Background(), GenerateRequest{Query: "q", K: 2})
	if !errors.Is(err, generation.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	records, _ := s.ListRecords(context.Background(), "")
	if len(records) != 0 {
		t.Errorf("failed generation left %d records", len(records))
	}
}

func TestGenerateWithoutClient(t *testing.T) {
	s := store.NewInMemoryStore()
	p := embedding.NewHashProvider(16)
	pl := New(Options{Store: s, Provider: p})

	_, err := pl.Generate(context.Background(), GenerateRequest{Query: "q"})
	if !errors.Is(err, generation.ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}
}

func TestGenerateUsesCachedRetriever(t *testing.T) {
	s := store.NewInMemoryStore()
	p := embedding.NewHashProvider(64)
	seedKnowledge(t, s, p)

	cached := retrieval.NewCachedEngine(retrieval.NewEngine(s, p, nil), s)
	pl := New(Options{Store: s, Provider: p, Retriever: cached})

	ctx := context.Background()
	if _, err := pl.Query(ctx, QueryRequest{Query: "factory", K: 2}); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if _, err := pl.Query(ctx, QueryRequest{Query: "factory", K: 2}); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if hits, misses := cached.Stats(); hits != 1 || misses != 1 {
		t.Errorf("cache stats = %d hits, %d misses, want 1 and 1", hits, misses)
	}
}
