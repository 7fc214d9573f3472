package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/pipeline"
	"github.com/loom-ai/loom/internal/retrieval"
	"github.com/loom-ai/loom/internal/store"
)

// registerTools registers all loom MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_query",
		Description: "Retrieve stored coding knowledge (rules, patterns, snippets) relevant to a query",
	}, s.handleQuery)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_generate",
		Description: "Generate code grounded in stored knowledge; the result is recorded and validated",
	}, s.handleGenerate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_review",
		Description: "Review a generation record: re-run validators, approve, or reject",
	}, s.handleReview)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "loom_records",
		Description: "List generation records or fetch one record with its full prompt and output",
	}, s.handleRecords)

	return nil
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() error {
	// The always-on set gets injected into the client's context so must
	// rules apply even without an explicit query.
	s.server.AddResource(&sdk.Resource{
		URI:         "loom://context/always-on",
		Name:        "loom-always-on",
		Description: "Guidelines and mandatory rules that apply to all generated code.",
		MIMEType:    "text/markdown",
	}, s.handleAlwaysOnResource)

	return nil
}

func parseMode(mode string) (retrieval.Mode, error) {
	switch mode {
	case "":
		return retrieval.ModeHybrid, nil
	case string(retrieval.ModeSimilarity):
		return retrieval.ModeSimilarity, nil
	case string(retrieval.ModeHybrid):
		return retrieval.ModeHybrid, nil
	case string(retrieval.ModeContextual):
		return retrieval.ModeContextual, nil
	default:
		return "", fmt.Errorf("unknown retrieval mode: %s (valid: similarity, hybrid, contextual)", mode)
	}
}

func (s *Server) handleQuery(ctx context.Context, req *sdk.CallToolRequest, args QueryInput) (*sdk.CallToolResult, QueryOutput, error) {
	if err := s.toolLimiters.Check("loom_query"); err != nil {
		return nil, QueryOutput{}, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, QueryOutput{}, fmt.Errorf("query is required")
	}
	mode, err := parseMode(args.Mode)
	if err != nil {
		return nil, QueryOutput{}, err
	}

	hits, err := s.pipeline.Query(ctx, pipeline.QueryRequest{
		Query:    args.Query,
		K:        args.K,
		Mode:     mode,
		Language: args.Language,
		Tag:      args.Tag,
	})
	if err != nil {
		return nil, QueryOutput{}, fmt.Errorf("query failed: %w", err)
	}

	out := QueryOutput{Hits: make([]HitSummary, len(hits)), Count: len(hits)}
	for i, h := range hits {
		out.Hits[i] = HitSummary{
			ID:      h.Entity.ID,
			Kind:    string(h.Entity.Kind),
			Name:    h.Entity.Name(),
			Content: h.Entity.Content,
			Score:   h.Score,
			Related: h.Related,
		}
	}
	return nil, out, nil
}

func (s *Server) handleGenerate(ctx context.Context, req *sdk.CallToolRequest, args GenerateInput) (*sdk.CallToolResult, GenerateOutput, error) {
	if err := s.toolLimiters.Check("loom_generate"); err != nil {
		return nil, GenerateOutput{}, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, GenerateOutput{}, fmt.Errorf("query is required")
	}
	mode, err := parseMode(args.Mode)
	if err != nil {
		return nil, GenerateOutput{}, err
	}

	rec, err := s.pipeline.Generate(ctx, pipeline.GenerateRequest{
		Query:    args.Query,
		Language: args.Language,
		K:        args.K,
		Mode:     mode,
		Budget:   args.Budget,
	})
	if err != nil {
		return nil, GenerateOutput{}, fmt.Errorf("generation failed: %w", err)
	}

	// Output that failed validation is withheld; the record stays auditable
	// through loom_records but never reaches the caller as usable code.
	output := rec.Output
	msg := fmt.Sprintf("record %s is %s", rec.ID, rec.Status)
	switch rec.Status {
	case models.StatusAwaitingReview:
		msg += "; approve or reject it with loom_review"
	case models.StatusValidatorFailed:
		output = ""
		msg = fmt.Sprintf("record %s failed validation (%s); output withheld, audit it with loom_records",
			rec.ID, rec.FailReason)
	}
	return nil, GenerateOutput{
		RecordID:   rec.ID,
		Status:     string(rec.Status),
		Output:     output,
		ContextIDs: rec.ContextIDs,
		FailReason: rec.FailReason,
		Message:    msg,
	}, nil
}

func (s *Server) handleReview(ctx context.Context, req *sdk.CallToolRequest, args ReviewInput) (*sdk.CallToolResult, ReviewOutput, error) {
	if err := s.toolLimiters.Check("loom_review"); err != nil {
		return nil, ReviewOutput{}, err
	}
	if args.RecordID == "" {
		return nil, ReviewOutput{}, fmt.Errorf("record_id is required")
	}
	if s.reviewer == nil {
		return nil, ReviewOutput{}, fmt.Errorf("no reviewer configured")
	}

	var msg string
	switch args.Action {
	case "validate":
		rec, err := s.reviewer.RunValidators(ctx, args.RecordID)
		if err != nil {
			return nil, ReviewOutput{}, fmt.Errorf("validation failed: %w", err)
		}
		return nil, ReviewOutput{
			RecordID: rec.ID,
			Status:   string(rec.Status),
			Message:  fmt.Sprintf("validators ran; record is %s", rec.Status),
		}, nil
	case "approve":
		if err := s.reviewer.Approve(ctx, args.RecordID); err != nil {
			return nil, ReviewOutput{}, fmt.Errorf("approve failed: %w", err)
		}
		msg = "record approved"
	case "reject":
		if err := s.reviewer.Reject(ctx, args.RecordID, args.Reason); err != nil {
			return nil, ReviewOutput{}, fmt.Errorf("reject failed: %w", err)
		}
		msg = "record rejected"
	default:
		return nil, ReviewOutput{}, fmt.Errorf("unknown action: %s (valid: validate, approve, reject)", args.Action)
	}

	rec, err := s.store.GetRecord(ctx, args.RecordID)
	if err != nil {
		return nil, ReviewOutput{}, fmt.Errorf("failed to load record: %w", err)
	}
	return nil, ReviewOutput{RecordID: rec.ID, Status: string(rec.Status), Message: msg}, nil
}

func (s *Server) handleRecords(ctx context.Context, req *sdk.CallToolRequest, args RecordsInput) (*sdk.CallToolResult, RecordsOutput, error) {
	if err := s.toolLimiters.Check("loom_records"); err != nil {
		return nil, RecordsOutput{}, err
	}
	if args.ID != "" {
		rec, err := s.store.GetRecord(ctx, args.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, RecordsOutput{}, fmt.Errorf("record not found: %s", args.ID)
			}
			return nil, RecordsOutput{}, fmt.Errorf("failed to load record: %w", err)
		}
		return nil, RecordsOutput{Record: recordDetail(rec), Count: 1}, nil
	}

	records, err := s.store.ListRecords(ctx, models.RecordStatus(args.Status))
	if err != nil {
		return nil, RecordsOutput{}, fmt.Errorf("failed to list records: %w", err)
	}

	out := RecordsOutput{Records: make([]RecordSummary, len(records)), Count: len(records)}
	for i := range records {
		out.Records[i] = recordSummary(&records[i])
	}
	return nil, out, nil
}

// handleAlwaysOnResource renders the always-on entity set as markdown for
// context injection.
func (s *Server) handleAlwaysOnResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var sb strings.Builder
	sb.WriteString("# Coding Rules and Guidelines\n\n")
	sb.WriteString("These apply to all code written in this project.\n\n")

	count := 0
	for _, kind := range []models.EntityKind{models.KindGuideline, models.KindRule} {
		entities, err := s.store.FindByKind(ctx, kind, store.Filter{})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s entities: %w", kind, err)
		}
		for _, e := range entities {
			if !e.IsMustRule() {
				continue
			}
			name := e.Name()
			if name == "" {
				name = e.ID
			}
			fmt.Fprintf(&sb, "## %s: %s\n\n%s\n\n", e.Kind, name, e.Content)
			count++
		}
	}

	if count == 0 {
		sb.WriteString("No rules or guidelines stored yet. Add them with `loom add`.\n")
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      "loom://context/always-on",
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

func recordSummary(rec *models.GenerationRecord) RecordSummary {
	return RecordSummary{
		ID:        rec.ID,
		Query:     rec.Query,
		Status:    string(rec.Status),
		ModelID:   rec.ModelID,
		CreatedAt: rec.CreatedAt,
	}
}

func recordDetail(rec *models.GenerationRecord) *RecordDetail {
	return &RecordDetail{
		RecordSummary:    recordSummary(rec),
		Mode:             rec.Mode,
		ContextIDs:       rec.ContextIDs,
		Prompt:           rec.Prompt,
		Output:           rec.Output,
		OutputHash:       rec.OutputHash,
		EmbeddingVersion: rec.EmbeddingVersion,
		FailReason:       rec.FailReason,
	}
}
