// Package models defines the domain types shared across loom: knowledge
// entities, their relations, and generation records.
package models

import (
	"fmt"
	"time"
)

// EntityKind categorizes a stored unit of knowledge.
type EntityKind string

const (
	KindGuideline   EntityKind = "guideline"
	KindRule        EntityKind = "rule"
	KindPreference  EntityKind = "preference"
	KindPattern     EntityKind = "pattern"
	KindAbstraction EntityKind = "abstraction"
	KindSnippet     EntityKind = "snippet"
)

// AllKinds returns every entity kind in a fixed order.
func AllKinds() []EntityKind {
	return []EntityKind{
		KindGuideline,
		KindRule,
		KindPreference,
		KindPattern,
		KindAbstraction,
		KindSnippet,
	}
}

// Valid reports whether k is one of the six known kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindGuideline, KindRule, KindPreference, KindPattern, KindAbstraction, KindSnippet:
		return true
	default:
		return false
	}
}

// requiresContent reports whether entities of this kind must carry a
// non-empty content payload.
func (k EntityKind) requiresContent() bool {
	switch k {
	case KindSnippet, KindPattern, KindAbstraction:
		return true
	default:
		return false
	}
}

// Relation kinds. Relations are directed, non-owning references: deleting
// the target leaves the relation dangling, to be reported rather than
// silently pruned.
const (
	RelationInstantiates = "instantiates" // snippet -> pattern it instantiates
	RelationRefines      = "refines"      // rule -> guideline it refines
	RelationUses         = "uses"         // snippet/pattern -> abstraction
	RelationPrefers      = "prefers"      // preference -> pattern/abstraction
)

// Relation is a directed reference from the owning entity to Target.
type Relation struct {
	Kind   string `json:"kind" yaml:"kind"`
	Target string `json:"target" yaml:"target"`
}

// Well-known metadata keys.
const (
	MetaName        = "name"        // short human-readable name
	MetaLanguage    = "language"    // target language (e.g. "go", "python")
	MetaSource      = "source"      // origin path or URL
	MetaTags        = "tags"        // comma-separated tag list
	MetaAuthor      = "author"      // who authored the entity
	MetaEnforcement = "enforcement" // rules only: "must" or "should"
)

// Entity is one stored unit of domain knowledge. ID and Kind are immutable
// after creation; Content changes require re-embedding.
type Entity struct {
	ID      string     `json:"id" yaml:"id"`
	Kind    EntityKind `json:"kind" yaml:"kind"`
	Content string     `json:"content" yaml:"content"`

	// Embedding is the vector for Content, produced by the provider
	// identified by EmbeddingVersion. Empty until embedded, and cleared
	// whenever Content changes.
	Embedding        []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	EmbeddingVersion string    `json:"embedding_version,omitempty" yaml:"embedding_version,omitempty"`

	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Relations []Relation        `json:"relations,omitempty" yaml:"relations,omitempty"`

	// Tombstoned marks a soft-deleted entity. Tombstoned entities are kept
	// for lineage but excluded from retrieval.
	Tombstoned bool `json:"tombstoned,omitempty" yaml:"tombstoned,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Name returns the entity's display name: the "name" metadata value when
// present, otherwise the ID.
func (e *Entity) Name() string {
	if n := e.Metadata[MetaName]; n != "" {
		return n
	}
	return e.ID
}

// Language returns the entity's target language metadata, if any.
func (e *Entity) Language() string {
	return e.Metadata[MetaLanguage]
}

// IsMustRule reports whether the entity is a rule with enforcement "must",
// or any guideline. These form the always-on context set.
func (e *Entity) IsMustRule() bool {
	if e.Kind == KindGuideline {
		return true
	}
	return e.Kind == KindRule && e.Metadata[MetaEnforcement] != "should"
}

// Validate checks the structural invariants that hold for every entity.
func (e *Entity) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid entity kind: %q", e.Kind)
	}
	if e.Kind.requiresContent() && e.Content == "" {
		return fmt.Errorf("entity kind %s requires non-empty content", e.Kind)
	}
	for _, r := range e.Relations {
		if r.Target == "" {
			return fmt.Errorf("relation %q has empty target", r.Kind)
		}
	}
	return nil
}

// Clone returns a deep copy of the entity. Stores hand out clones so callers
// can never mutate shared state.
func (e *Entity) Clone() Entity {
	out := *e
	if e.Embedding != nil {
		out.Embedding = make([]float32, len(e.Embedding))
		copy(out.Embedding, e.Embedding)
	}
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	if e.Relations != nil {
		out.Relations = make([]Relation, len(e.Relations))
		copy(out.Relations, e.Relations)
	}
	return out
}
