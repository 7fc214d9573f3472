// Package assembly builds the bounded context window handed to the model:
// always-on rules and guidelines first, then retrieved entities admitted
// greedily under a token budget.
package assembly

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/retrieval"
	"github.com/loom-ai/loom/internal/store"
)

// DefaultBudget is the token budget for retrieved entities when the caller
// does not set one.
const DefaultBudget = 4000

// EstimateTokens approximates the token cost of a text. The 4-bytes-per-token
// heuristic overestimates for code, which errs on the safe side of the
// budget.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// Skipped records an entity that was retrieved but not admitted.
type Skipped struct {
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// Context is the assembled input for one generation.
type Context struct {
	// AlwaysOn holds every live guideline and must-level rule, included
	// regardless of budget.
	AlwaysOn []models.Entity

	// Retrieved holds the admitted retrieval hits, in rank order.
	Retrieved []models.Entity

	// TokensUsed is the estimated cost of the retrieved entities. Always-on
	// entities are not counted against the budget.
	TokensUsed int

	// Budget is the limit Retrieved was admitted under.
	Budget int

	// Skipped lists hits that did not fit.
	Skipped []Skipped
}

// IDs returns every included entity ID, always-on first, then retrieved in
// rank order.
func (c *Context) IDs() []string {
	ids := make([]string, 0, len(c.AlwaysOn)+len(c.Retrieved))
	for _, e := range c.AlwaysOn {
		ids = append(ids, e.ID)
	}
	for _, e := range c.Retrieved {
		ids = append(ids, e.ID)
	}
	return ids
}

// Assembler builds generation contexts from retrieval results.
type Assembler struct {
	store  store.EntityStore
	logger *slog.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(s store.EntityStore, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: s, logger: logger}
}

// Assemble admits retrieval hits greedily in rank order under the budget.
// A hit that does not fit is skipped and admission continues with the next,
// so a single oversized entity cannot block smaller ones behind it. Entities
// already present in the always-on set are deduplicated. Always-on rules and
// guidelines are included regardless of budget, filtered by the same
// language filter as the hits.
func (a *Assembler) Assemble(ctx context.Context, hits []retrieval.Hit, budget int, f store.Filter) (*Context, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}

	alwaysOn, err := a.alwaysOn(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("load always-on entities: %w", err)
	}

	included := make(map[string]bool, len(alwaysOn))
	for _, e := range alwaysOn {
		included[e.ID] = true
	}

	out := &Context{AlwaysOn: alwaysOn, Budget: budget}
	for _, h := range hits {
		if included[h.Entity.ID] {
			continue
		}
		cost := EstimateTokens(entityText(&h.Entity))
		if out.TokensUsed+cost > budget {
			out.Skipped = append(out.Skipped, Skipped{
				EntityID: h.Entity.ID,
				Reason:   fmt.Sprintf("over budget: needs %d tokens, %d remaining", cost, budget-out.TokensUsed),
			})
			continue
		}
		included[h.Entity.ID] = true
		out.Retrieved = append(out.Retrieved, h.Entity)
		out.TokensUsed += cost
	}

	a.logger.Debug("context assembled",
		"always_on", len(out.AlwaysOn),
		"retrieved", len(out.Retrieved),
		"skipped", len(out.Skipped),
		"tokens", out.TokensUsed,
		"budget", budget)
	return out, nil
}

// alwaysOn returns live guidelines plus must-level rules, ordered by ID.
func (a *Assembler) alwaysOn(ctx context.Context, f store.Filter) ([]models.Entity, error) {
	f.IncludeTombstoned = false

	guidelines, err := a.store.FindByKind(ctx, models.KindGuideline, f)
	if err != nil {
		return nil, err
	}
	rules, err := a.store.FindByKind(ctx, models.KindRule, f)
	if err != nil {
		return nil, err
	}

	out := make([]models.Entity, 0, len(guidelines)+len(rules))
	out = append(out, guidelines...)
	for _, r := range rules {
		if r.IsMustRule() {
			out = append(out, r)
		}
	}
	return out, nil
}

func entityText(e *models.Entity) string {
	if e.Content != "" {
		return e.Content
	}
	return e.Name()
}
