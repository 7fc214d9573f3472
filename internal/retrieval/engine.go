// Package retrieval finds the stored entities most relevant to a query,
// combining vector similarity with lexical scoring and relation-based
// context expansion.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/loom-ai/loom/internal/embedding"
	"github.com/loom-ai/loom/internal/lexical"
	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/store"
)

// ErrRetrievalFailed indicates the retrieval pipeline could not produce
// results at all. Degraded results (vector-only when lexical scoring has
// nothing to match) are not failures.
var ErrRetrievalFailed = errors.New("retrieval failed")

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeSimilarity ranks by vector cosine similarity alone.
	ModeSimilarity Mode = "similarity"

	// ModeHybrid runs vector and BM25 lexical search for the query and each
	// synonym-expanded variant, fuses the best score per signal per entity
	// with a capped boost for entities matched by several variants, then
	// reranks by query-term coverage.
	ModeHybrid Mode = "hybrid"

	// ModeContextual runs hybrid retrieval, then pulls in entities related
	// to the top hits so patterns arrive with the abstractions they use.
	ModeContextual Mode = "contextual"
)

// Fusion and rerank weights. Vector and lexical signals contribute equally;
// the rerank blend keeps the fused score dominant with coverage as a
// tie-splitting nudge.
const (
	vectorWeight    = 0.5
	lexicalWeight   = 0.5
	fusedBlend      = 0.8
	coverageBlend   = 0.2
	relatedDiscount = 0.8

	// expansionBoost is added per extra expansion that lexically matched an
	// entity, capped at expansionBoostCap steps. It nudges entities the
	// expansions agree on without letting agreement outweigh the signals.
	expansionBoost    = 0.05
	expansionBoostCap = 2

	// candidateMultiplier widens the vector candidate pool before fusion so
	// lexical scoring can promote entities the vector pass underranked.
	candidateMultiplier = 3

	defaultK = 8
)

// Hit is one retrieval result with its score breakdown.
type Hit struct {
	Entity models.Entity

	// Score is the final ranking score.
	Score float64

	// VectorScore and LexicalScore are the pre-fusion components, kept for
	// decision logging.
	VectorScore  float64
	LexicalScore float64

	// Related is true when the entity was pulled in through a relation
	// rather than ranked directly.
	Related bool
}

// Options narrow one retrieval request.
type Options struct {
	// K is the number of results to return. Defaults to 8.
	K int

	// Mode selects the strategy. Defaults to ModeHybrid.
	Mode Mode

	// Kinds restricts the search. Empty searches every kind.
	Kinds []models.EntityKind

	// Filter applies store-level metadata filtering to candidates.
	Filter store.Filter
}

// Engine runs retrieval against a store using a versioned embedding provider.
type Engine struct {
	store    store.EntityStore
	provider embedding.Provider
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(s store.EntityStore, p embedding.Provider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, provider: p, logger: logger}
}

// Retrieve returns the top-k entities for the query. Identical store state
// and query always produce identical results: ties break by most recent
// UpdatedAt, then ascending ID.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) ([]Hit, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", ErrRetrievalFailed)
	}

	k := opts.K
	if k <= 0 {
		k = defaultK
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = models.AllKinds()
	}

	vec, err := e.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %v: %w", err, ErrRetrievalFailed)
	}

	expansions := []string{query}
	if mode == ModeHybrid || mode == ModeContextual {
		expansions = ExpandQueries(query)
	}

	// Vector candidates are pooled across the query and its expansions,
	// keeping the best vector score per entity.
	pool := make(map[string]Hit)
	candidates, err := e.vectorCandidates(ctx, kinds, vec, k*candidateMultiplier, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %v: %w", err, ErrRetrievalFailed)
	}
	mergeCandidates(pool, candidates)

	for _, variant := range expansions[1:] {
		// Expansion legs are best-effort; the original query's results stand
		// on their own if a variant fails.
		vvec, err := e.provider.Embed(ctx, variant)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("expansion embed failed", "variant", variant, "error", err)
			continue
		}
		candidates, err := e.vectorCandidates(ctx, kinds, vvec, k*candidateMultiplier, opts.Filter)
		if err != nil {
			e.logger.Warn("expansion vector search failed", "variant", variant, "error", err)
			continue
		}
		mergeCandidates(pool, candidates)
	}

	hits := make([]Hit, 0, len(pool))
	for _, h := range pool {
		hits = append(hits, h)
	}

	if mode == ModeHybrid || mode == ModeContextual {
		hits = fuseLexical(expansions, hits)
		hits = rerankByCoverage(query, hits)
	}

	sortHits(hits)
	if k < len(hits) {
		hits = hits[:k]
	}

	if mode == ModeContextual {
		var err error
		hits, err = e.pullRelated(ctx, hits, k)
		if err != nil {
			// Relation pull-in is best-effort; direct hits still stand.
			e.logger.Warn("contextual pull-in failed", "error", err)
		}
	}

	e.logger.Debug("retrieval complete",
		"query", query, "mode", string(mode), "k", k, "hits", len(hits))
	return hits, nil
}

// vectorCandidates gathers the top-m vector matches per kind, post-filtered
// by the store-level metadata filter.
func (e *Engine) vectorCandidates(ctx context.Context, kinds []models.EntityKind, vec []float32, m int, f store.Filter) ([]store.ScoredEntity, error) {
	var out []store.ScoredEntity
	for _, kind := range kinds {
		scored, err := e.store.SimilaritySearch(ctx, kind, vec, m)
		if err != nil {
			return nil, err
		}
		for _, s := range scored {
			if matchesHitFilter(&s.Entity, f) {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func matchesHitFilter(en *models.Entity, f store.Filter) bool {
	if f.Language != "" {
		// Entities without a language apply to every language.
		if lang := en.Language(); lang != "" && lang != f.Language {
			return false
		}
	}
	if f.Tag != "" && !hasTag(en.Metadata[models.MetaTags], f.Tag) {
		return false
	}
	return true
}

func hasTag(tags, want string) bool {
	for _, t := range lexical.Tokenize(tags) {
		if t == want {
			return true
		}
	}
	return false
}

// mergeCandidates folds one vector pass into the pool, keeping the best
// vector score per entity.
func mergeCandidates(pool map[string]Hit, candidates []store.ScoredEntity) {
	for _, c := range candidates {
		if h, ok := pool[c.Entity.ID]; !ok || c.Score > h.VectorScore {
			pool[c.Entity.ID] = Hit{Entity: c.Entity, Score: c.Score, VectorScore: c.Score}
		}
	}
}

// fuseLexical runs one BM25 pass per expansion over the candidate pool and
// blends the best lexical score per entity into the vector scores. Each pass
// is normalized by its own max so neither signal dominates by scale. Entities
// matched by more than one expansion gain the capped expansion boost.
func fuseLexical(expansions []string, hits []Hit) []Hit {
	if len(hits) == 0 {
		return hits
	}

	docs := make([]lexical.Document, len(hits))
	for i, h := range hits {
		docs[i] = lexical.Document{ID: h.Entity.ID, Text: entityText(&h.Entity)}
	}
	idx := lexical.NewIndex(docs)

	bestLex := make(map[string]float64)
	matches := make(map[string]int)
	for _, q := range expansions {
		scores := idx.Score(q)
		var maxLex float64
		for _, s := range scores {
			if s > maxLex {
				maxLex = s
			}
		}
		if maxLex == 0 {
			continue
		}
		for id, s := range scores {
			if s <= 0 {
				continue
			}
			matches[id]++
			if norm := s / maxLex; norm > bestLex[id] {
				bestLex[id] = norm
			}
		}
	}

	for i := range hits {
		id := hits[i].Entity.ID
		steps := matches[id] - 1
		if steps < 0 {
			steps = 0
		}
		if steps > expansionBoostCap {
			steps = expansionBoostCap
		}
		hits[i].LexicalScore = bestLex[id]
		hits[i].Score = vectorWeight*hits[i].VectorScore +
			lexicalWeight*bestLex[id] +
			expansionBoost*float64(steps)
	}
	return hits
}

// rerankByCoverage blends in the fraction of literal query terms each hit
// covers. Expansion terms deliberately do not count here, so entities
// matching the user's actual words rank above synonym-only matches.
func rerankByCoverage(query string, hits []Hit) []Hit {
	for i := range hits {
		coverage := lexical.CoverageRatio(query, entityText(&hits[i].Entity))
		hits[i].Score = fusedBlend*hits[i].Score + coverageBlend*coverage
	}
	return hits
}

// pullRelated appends entities one relation hop away from the ranked hits,
// at a discount of the source hit's score. Already-ranked entities are not
// duplicated, and the result is capped at 2k so related context can never
// outnumber direct hits.
func (e *Engine) pullRelated(ctx context.Context, hits []Hit, k int) ([]Hit, error) {
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		seen[h.Entity.ID] = true
	}

	var related []Hit
	for _, h := range hits {
		for _, rel := range h.Entity.Relations {
			if seen[rel.Target] {
				continue
			}
			target, err := e.store.Get(ctx, rel.Target)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					continue // dangling relation, reported elsewhere
				}
				return hits, err
			}
			if target.Tombstoned {
				continue
			}
			seen[rel.Target] = true
			related = append(related, Hit{
				Entity:  *target,
				Score:   h.Score * relatedDiscount,
				Related: true,
			})
		}
	}

	sortHits(related)
	if room := 2*k - len(hits); len(related) > room {
		if room < 0 {
			room = 0
		}
		related = related[:room]
	}
	return append(hits, related...), nil
}

// entityText is the text used for lexical scoring: content when present,
// otherwise the display name.
func entityText(en *models.Entity) string {
	if en.Content != "" {
		return en.Content
	}
	return en.Name()
}

// sortHits orders by descending score, most recent UpdatedAt, then ascending
// ID. The ordering is total so identical inputs always rank identically.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Entity.UpdatedAt.Equal(hits[j].Entity.UpdatedAt) {
			return hits[i].Entity.UpdatedAt.After(hits[j].Entity.UpdatedAt)
		}
		return hits[i].Entity.ID < hits[j].Entity.ID
	})
}
