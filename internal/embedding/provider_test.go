package embedding

import (
	"context"
	"math"
	"testing"
)

func TestHashProviderDeterministic(t *testing.T) {
	ctx := context.Background()
	p := NewHashProvider(64)

	a, err := p.Embed(ctx, "prefer composition over inheritance")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := p.Embed(ctx, "prefer composition over inheritance")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(a) != 64 || len(b) != 64 {
		t.Fatalf("dimension = %d, %d, want 64", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestHashProviderNormalized(t *testing.T) {
	p := NewHashProvider(32)
	vec, err := p.Embed(context.Background(), "some text to embed here")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("norm = %f, want 1.0", norm)
	}
}

func TestHashProviderEmptyText(t *testing.T) {
	p := NewHashProvider(16)
	vec, err := p.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 16 {
		t.Errorf("dimension = %d, want 16", len(vec))
	}
	for _, v := range vec {
		if v != 0 {
			t.Errorf("empty text produced non-zero vector")
			break
		}
	}
}

func TestHashProviderVersionEncodesDimension(t *testing.T) {
	a := NewHashProvider(32)
	b := NewHashProvider(64)
	if a.Version() == b.Version() {
		t.Error("providers with different dimensions share a version")
	}
}
