// Package validation gates generated output behind automated validators and
// human review. The gate fails closed: output reaches a human only after
// every validator passes, and nothing is approved without a human.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/loom-ai/loom/internal/models"
)

// Validator is one automated check over generated output.
type Validator interface {
	// Name identifies the validator in failure reasons and logs.
	Name() string

	// Validate returns an error describing why the output is unacceptable,
	// or nil when the check passes.
	Validate(ctx context.Context, rec *models.GenerationRecord) error
}

// FuncValidator adapts a function into a Validator.
type FuncValidator struct {
	ValidatorName string
	Fn            func(ctx context.Context, rec *models.GenerationRecord) error
}

func (v FuncValidator) Name() string { return v.ValidatorName }

func (v FuncValidator) Validate(ctx context.Context, rec *models.GenerationRecord) error {
	return v.Fn(ctx, rec)
}

// Registry holds validators in registration order. Order is part of the
// contract: validators run first to last, and the first failure is the one
// reported.
type Registry struct {
	validators []Validator
}

// NewRegistry creates a registry with the given validators.
func NewRegistry(validators ...Validator) *Registry {
	return &Registry{validators: validators}
}

// Register appends a validator.
func (r *Registry) Register(v Validator) {
	r.validators = append(r.validators, v)
}

// Names returns the registered validator names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.validators))
	for i, v := range r.validators {
		names[i] = v.Name()
	}
	return names
}

// Run executes every validator in order and returns the first failure as
// (name, error). An empty name with nil error means every validator passed.
func (r *Registry) Run(ctx context.Context, rec *models.GenerationRecord) (string, error) {
	for _, v := range r.validators {
		if err := ctx.Err(); err != nil {
			return v.Name(), err
		}
		if err := v.Validate(ctx, rec); err != nil {
			return v.Name(), err
		}
	}
	return "", nil
}

// NonEmptyOutput rejects records whose output is blank below the watermark.
func NonEmptyOutput() Validator {
	return FuncValidator{
		ValidatorName: "non-empty-output",
		Fn: func(_ context.Context, rec *models.GenerationRecord) error {
			for _, line := range strings.Split(rec.Output, "\n") {
				trimmed := strings.TrimSpace(line)
				if trimmed == "" {
					continue
				}
				if isComment(trimmed) {
					continue
				}
				return nil
			}
			return fmt.Errorf("output contains no code, only comments")
		},
	}
}

// BalancedDelimiters rejects output with unbalanced brackets, a cheap
// structural sanity check that catches truncated generations.
func BalancedDelimiters() Validator {
	return FuncValidator{
		ValidatorName: "balanced-delimiters",
		Fn: func(_ context.Context, rec *models.GenerationRecord) error {
			counts := map[rune]int{}
			for _, r := range rec.Output {
				switch r {
				case '{', '}', '(', ')', '[', ']':
					counts[r]++
				}
			}
			pairs := []struct {
				open, close rune
			}{{'{', '}'}, {'(', ')'}, {'[', ']'}}
			for _, p := range pairs {
				if counts[p.open] != counts[p.close] {
					return fmt.Errorf("unbalanced %c%c: %d open, %d close",
						p.open, p.close, counts[p.open], counts[p.close])
				}
			}
			return nil
		},
	}
}

// NoFences rejects output still wrapped in markdown code fences.
func NoFences() Validator {
	return FuncValidator{
		ValidatorName: "no-markdown-fences",
		Fn: func(_ context.Context, rec *models.GenerationRecord) error {
			if strings.Contains(rec.Output, "```") {
				return fmt.Errorf("output contains markdown code fences")
			}
			return nil
		},
	}
}

func isComment(line string) bool {
	return strings.HasPrefix(line, "//") ||
		strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "--")
}
