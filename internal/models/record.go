package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the validation state of a generation record.
type RecordStatus string

const (
	StatusPending         RecordStatus = "pending"
	StatusValidatorFailed RecordStatus = "validator_failed"
	StatusAwaitingReview  RecordStatus = "awaiting_human_review"
	StatusApproved        RecordStatus = "approved"
	StatusRejected        RecordStatus = "rejected"
)

// Terminal reports whether the status permits no further transitions.
func (s RecordStatus) Terminal() bool {
	switch s {
	case StatusValidatorFailed, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal state
// machine step. Approved and rejected are reachable only through human
// review; validator failure is terminal.
func (s RecordStatus) CanTransition(next RecordStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusValidatorFailed || next == StatusAwaitingReview
	case StatusAwaitingReview:
		return next == StatusApproved || next == StatusRejected
	default:
		return false
	}
}

// RetrievalHit is one ranked retrieval result recorded for lineage.
type RetrievalHit struct {
	EntityID string  `json:"entity_id" yaml:"entity_id"`
	Score    float64 `json:"score" yaml:"score"`
}

// GenerationRecord links a generation request to its inputs, output, and
// validation outcome. Once the status is terminal the record is immutable.
type GenerationRecord struct {
	ID    string `json:"id" yaml:"id"`
	Query string `json:"query" yaml:"query"`
	Mode  string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Retrieved is the full ranked retrieval trace; ContextIDs is the exact
	// ordered list of entity IDs that made it into the generation context.
	Retrieved  []RetrievalHit `json:"retrieved,omitempty" yaml:"retrieved,omitempty"`
	ContextIDs []string       `json:"context_ids" yaml:"context_ids"`

	Prompt     string `json:"prompt" yaml:"prompt"`
	ModelID    string `json:"model_id" yaml:"model_id"`
	Output     string `json:"output" yaml:"output"`
	OutputHash string `json:"output_hash" yaml:"output_hash"`

	// EmbeddingVersion records which embedding provider produced the
	// retrieval vectors, for audit across provider migrations.
	EmbeddingVersion string `json:"embedding_version,omitempty" yaml:"embedding_version,omitempty"`

	Status RecordStatus `json:"status" yaml:"status"`

	// FailReason holds the validator name and reason when Status is
	// validator_failed, or the reviewer's note on rejection.
	FailReason string `json:"fail_reason,omitempty" yaml:"fail_reason,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// References reports whether the record's context includes the entity.
func (r *GenerationRecord) References(entityID string) bool {
	for _, id := range r.ContextIDs {
		if id == entityID {
			return true
		}
	}
	return false
}

// NewRecordID returns a fresh unique record identifier.
func NewRecordID() string {
	return "rec-" + uuid.NewString()
}

// NewEntityID returns a fresh unique entity identifier.
func NewEntityID() string {
	return "ent-" + uuid.NewString()
}

// HashOutput returns the hex-encoded sha256 content hash of generated output.
func HashOutput(output string) string {
	sum := sha256.Sum256([]byte(output))
	return hex.EncodeToString(sum[:])
}

// Artifact is a generated-code result carrying its provenance watermark.
// Body is the watermarked output; Raw is the model output before
// watermarking.
type Artifact struct {
	RecordID string `json:"record_id" yaml:"record_id"`
	ModelID  string `json:"model_id" yaml:"model_id"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Body     string `json:"body" yaml:"body"`
	Raw      string `json:"raw" yaml:"raw"`
}
