package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/loom-ai/loom/internal/store"
)

// CachedEngine is a read-through cache over an Engine. Any store write event
// flushes the whole cache: entity mutations can change rankings arbitrarily,
// so per-entry invalidation would buy little and risk staleness.
type CachedEngine struct {
	engine *Engine

	mu      sync.RWMutex
	entries map[string][]Hit
	hits    uint64
	misses  uint64
}

// NewCachedEngine wraps the engine and subscribes to the store's write
// events for invalidation.
func NewCachedEngine(engine *Engine, s store.EntityStore) *CachedEngine {
	c := &CachedEngine{
		engine:  engine,
		entries: make(map[string][]Hit),
	}
	s.Subscribe(func(store.WriteEvent) { c.Flush() })
	return c
}

// Retrieve returns cached hits for a repeated query, or runs the engine and
// caches the result. Cached hits are deep-copied out so callers cannot
// corrupt the cache.
func (c *CachedEngine) Retrieve(ctx context.Context, query string, opts Options) ([]Hit, error) {
	key := cacheKey(query, opts)

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return copyHits(cached), nil
	}

	hits, err := c.engine.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.misses++
	c.entries[key] = copyHits(hits)
	c.mu.Unlock()
	return hits, nil
}

// Flush drops every cached entry.
func (c *CachedEngine) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]Hit)
}

// Stats returns the cache hit and miss counts.
func (c *CachedEngine) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func cacheKey(query string, opts Options) string {
	kinds := make([]string, len(opts.Kinds))
	for i, k := range opts.Kinds {
		kinds[i] = string(k)
	}
	sort.Strings(kinds)
	return fmt.Sprintf("%s|%d|%s|%s|%s|%s|%t",
		query, opts.K, opts.Mode, strings.Join(kinds, ","),
		opts.Filter.Language, opts.Filter.Tag, opts.Filter.IncludeTombstoned)
}

func copyHits(hits []Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = h
		out[i].Entity = h.Entity.Clone()
	}
	return out
}
