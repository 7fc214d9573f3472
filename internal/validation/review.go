package validation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/store"
)

// Reviewer drives generation records through the review state machine.
type Reviewer struct {
	store    store.EntityStore
	registry *Registry
	logger   *slog.Logger
}

// NewReviewer creates a reviewer.
func NewReviewer(s store.EntityStore, registry *Registry, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Reviewer{store: s, registry: registry, logger: logger}
}

// RunValidators moves a pending record to awaiting_human_review when every
// validator passes, or to validator_failed on the first failure. Any
// validator failure is terminal for the record; regeneration produces a new
// record rather than resurrecting this one.
func (r *Reviewer) RunValidators(ctx context.Context, recordID string) (*models.GenerationRecord, error) {
	rec, err := r.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.StatusPending {
		return nil, fmt.Errorf("record %s is %s, not pending: %w",
			recordID, rec.Status, store.ErrIllegalTransition)
	}

	name, verr := r.registry.Run(ctx, rec)
	if verr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reason := fmt.Sprintf("%s: %v", name, verr)
		if err := r.store.UpdateRecordStatus(ctx, recordID, models.StatusValidatorFailed, reason); err != nil {
			return nil, err
		}
		r.logger.Info("validation failed", "record", recordID, "validator", name, "reason", verr)
	} else {
		if err := r.store.UpdateRecordStatus(ctx, recordID, models.StatusAwaitingReview, ""); err != nil {
			return nil, err
		}
		r.logger.Info("validation passed", "record", recordID, "validators", len(r.registry.Names()))
	}

	return r.store.GetRecord(ctx, recordID)
}

// Approve marks a record awaiting review as approved.
func (r *Reviewer) Approve(ctx context.Context, recordID string) error {
	if err := r.store.UpdateRecordStatus(ctx, recordID, models.StatusApproved, ""); err != nil {
		return err
	}
	r.logger.Info("record approved", "record", recordID)
	return nil
}

// Reject marks a record awaiting review as rejected, with the reviewer's
// reason.
func (r *Reviewer) Reject(ctx context.Context, recordID, reason string) error {
	if reason == "" {
		return fmt.Errorf("rejection requires a reason")
	}
	if err := r.store.UpdateRecordStatus(ctx, recordID, models.StatusRejected, reason); err != nil {
		return err
	}
	r.logger.Info("record rejected", "record", recordID, "reason", reason)
	return nil
}
