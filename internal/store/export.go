package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/loom-ai/loom/internal/models"
)

// exportLine is one JSONL row. Exactly one of Entity or Record is set.
type exportLine struct {
	Entity *models.Entity           `json:"entity,omitempty"`
	Record *models.GenerationRecord `json:"record,omitempty"`
}

// Export writes every entity and record to w as JSONL, entities first in
// kind-then-ID order, then records in CreatedAt-then-ID order. The output is
// deterministic for a given store state.
func Export(ctx context.Context, s EntityStore, w io.Writer) error {
	encoder := json.NewEncoder(w)

	for _, kind := range models.AllKinds() {
		entities, err := s.FindByKind(ctx, kind, Filter{IncludeTombstoned: true})
		if err != nil {
			return fmt.Errorf("failed to list %s entities: %w", kind, err)
		}
		for i := range entities {
			if err := encoder.Encode(exportLine{Entity: &entities[i]}); err != nil {
				return fmt.Errorf("failed to encode entity: %w", err)
			}
		}
	}

	records, err := s.ListRecords(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	for i := range records {
		if err := encoder.Encode(exportLine{Record: &records[i]}); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return nil
}

// Import reads JSONL produced by Export and writes each line into the store.
// Existing entities with the same ID are overwritten. Returns the number of
// entities and records imported.
func Import(ctx context.Context, s EntityStore, r io.Reader) (entities, records int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var parsed exportLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			return entities, records, fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch {
		case parsed.Entity != nil:
			if _, err := s.Put(ctx, *parsed.Entity); err != nil {
				return entities, records, fmt.Errorf("line %d: import entity %s: %w", lineNo, parsed.Entity.ID, err)
			}
			entities++
		case parsed.Record != nil:
			if err := s.PutRecord(ctx, *parsed.Record); err != nil {
				return entities, records, fmt.Errorf("line %d: import record %s: %w", lineNo, parsed.Record.ID, err)
			}
			records++
		default:
			return entities, records, fmt.Errorf("line %d: neither entity nor record", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return entities, records, fmt.Errorf("failed to read import stream: %w", err)
	}
	return entities, records, nil
}
