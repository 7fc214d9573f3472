// Package mcp provides an MCP (Model Context Protocol) server for loom.
package mcp

import (
	"time"
)

// QueryInput defines the input for the loom_query tool.
type QueryInput struct {
	Query    string `json:"query" jsonschema:"Natural language query describing the code to find knowledge for"`
	K        int    `json:"k,omitempty" jsonschema:"Maximum number of results (default: 8)"`
	Mode     string `json:"mode,omitempty" jsonschema:"Retrieval strategy: 'similarity', 'hybrid', or 'contextual' (default: 'hybrid')"`
	Language string `json:"language,omitempty" jsonschema:"Restrict results to entities for this language"`
	Tag      string `json:"tag,omitempty" jsonschema:"Restrict results to entities carrying this tag"`
}

// QueryOutput defines the output for the loom_query tool.
type QueryOutput struct {
	Hits  []HitSummary `json:"hits" jsonschema:"Ranked retrieval results"`
	Count int          `json:"count" jsonschema:"Number of hits"`
}

// HitSummary is one retrieval result.
type HitSummary struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Name    string  `json:"name,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Related bool    `json:"related,omitempty"`
}

// GenerateInput defines the input for the loom_generate tool.
type GenerateInput struct {
	Query    string `json:"query" jsonschema:"Natural language description of the code to generate"`
	Language string `json:"language,omitempty" jsonschema:"Target language for the generated code (e.g. 'go')"`
	K        int    `json:"k,omitempty" jsonschema:"Number of entities to retrieve for context (default: 8)"`
	Mode     string `json:"mode,omitempty" jsonschema:"Retrieval strategy: 'similarity', 'hybrid', or 'contextual'"`
	Budget   int    `json:"budget,omitempty" jsonschema:"Token budget for retrieved context (default: 4000)"`
}

// GenerateOutput defines the output for the loom_generate tool.
type GenerateOutput struct {
	RecordID   string   `json:"record_id" jsonschema:"ID of the generation record"`
	Status     string   `json:"status" jsonschema:"Record status after validation"`
	Output     string   `json:"output" jsonschema:"Generated code with watermark header"`
	ContextIDs []string `json:"context_ids" jsonschema:"Entity IDs included in the generation context"`
	FailReason string   `json:"fail_reason,omitempty" jsonschema:"Validator name and reason when validation failed"`
	Message    string   `json:"message" jsonschema:"Human-readable result message"`
}

// ReviewInput defines the input for the loom_review tool.
type ReviewInput struct {
	RecordID string `json:"record_id" jsonschema:"ID of the generation record to review"`
	Action   string `json:"action" jsonschema:"Review action: 'validate' (re-run validators on a pending record), 'approve', or 'reject'"`
	Reason   string `json:"reason,omitempty" jsonschema:"Required for 'reject': why the output was rejected"`
}

// ReviewOutput defines the output for the loom_review tool.
type ReviewOutput struct {
	RecordID string `json:"record_id" jsonschema:"ID of the reviewed record"`
	Status   string `json:"status" jsonschema:"Record status after the action"`
	Message  string `json:"message" jsonschema:"Human-readable result message"`
}

// RecordsInput defines the input for the loom_records tool.
type RecordsInput struct {
	ID     string `json:"id,omitempty" jsonschema:"Fetch one record by ID with full prompt and output"`
	Status string `json:"status,omitempty" jsonschema:"Filter list by status: 'pending', 'awaiting_human_review', 'approved', 'rejected', or 'validator_failed'"`
}

// RecordsOutput defines the output for the loom_records tool.
type RecordsOutput struct {
	Records []RecordSummary `json:"records,omitempty" jsonschema:"Matching records, newest last"`
	Record  *RecordDetail   `json:"record,omitempty" jsonschema:"Full record when queried by ID"`
	Count   int             `json:"count" jsonschema:"Number of records returned"`
}

// RecordSummary is a list view of a generation record.
type RecordSummary struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	ModelID   string    `json:"model_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordDetail is the full view of a generation record.
type RecordDetail struct {
	RecordSummary
	Mode             string   `json:"mode,omitempty"`
	ContextIDs       []string `json:"context_ids"`
	Prompt           string   `json:"prompt"`
	Output           string   `json:"output"`
	OutputHash       string   `json:"output_hash"`
	EmbeddingVersion string   `json:"embedding_version,omitempty"`
	FailReason       string   `json:"fail_reason,omitempty"`
}
