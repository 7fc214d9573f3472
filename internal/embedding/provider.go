// Package embedding turns entity content and queries into dense vectors.
// Providers are versioned: vectors produced by one provider version are never
// compared against vectors from another.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// Provider produces dense vector embeddings. A provider's Version identifies
// the model and revision; entities embedded under a different version are
// stale and must be re-embedded before retrieval mixes them.
type Provider interface {
	// Embed returns the vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Version identifies the provider and model revision.
	Version() string

	// Dimension is the length of vectors this provider produces.
	Dimension() int
}

// HashProvider is a deterministic, offline provider used in tests and as a
// last-resort fallback. It hashes token n-grams into a fixed-size vector, so
// identical texts always embed identically. It captures lexical overlap, not
// semantics.
type HashProvider struct {
	dim int
}

// NewHashProvider creates a HashProvider with the given dimension.
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = 64
	}
	return &HashProvider{dim: dim}
}

func (p *HashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dim)
	if text == "" {
		return vec, nil
	}

	// Hash each 3-byte shingle into a bucket
	for i := 0; i+3 <= len(text); i++ {
		h := fnv.New32a()
		h.Write([]byte(text[i : i+3]))
		vec[h.Sum32()%uint32(p.dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (p *HashProvider) Version() string {
	return fmt.Sprintf("hash-ngram-v1-d%d", p.dim)
}

func (p *HashProvider) Dimension() int {
	return p.dim
}
