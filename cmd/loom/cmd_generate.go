package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/pipeline"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <description>",
		Short: "Generate code grounded in stored knowledge",
		Long: `Generate code for a description, grounded in retrieved knowledge.

Retrieval results are assembled into a prompt under the token budget.
Guidelines and mandatory rules are always included and never count against
the budget. The output carries a watermark header and is recorded for
validation; passing records await human review via 'loom review'.

Examples:
  loom generate "an HTTP handler that lists users" --language go
  loom generate "retry wrapper for the fetch call" --k 4 --budget 2000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			language, _ := cmd.Flags().GetString("language")
			k, _ := cmd.Flags().GetInt("k")
			mode, _ := cmd.Flags().GetString("mode")
			budget, _ := cmd.Flags().GetInt("budget")
			outFile, _ := cmd.Flags().GetString("out")
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			retrievalMode, err := a.parseRetrievalMode(mode)
			if err != nil {
				return err
			}
			if k <= 0 {
				k = a.cfg.Retrieval.K
			}
			if budget <= 0 {
				budget = a.cfg.Generation.Budget
			}

			pl, _, err := a.newPipeline(true)
			if err != nil {
				return err
			}

			rec, err := pl.Generate(context.Background(), pipeline.GenerateRequest{
				Query:    query,
				Language: language,
				K:        k,
				Mode:     retrievalMode,
				Budget:   budget,
			})
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}
			if err := a.store.Sync(context.Background()); err != nil {
				return fmt.Errorf("failed to sync store: %w", err)
			}

			output, emit := artifactOutput(rec)

			if outFile != "" && emit {
				if err := os.WriteFile(outFile, []byte(output), 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", outFile, err)
				}
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"record_id":   rec.ID,
					"status":      string(rec.Status),
					"model":       rec.ModelID,
					"context_ids": rec.ContextIDs,
					"output":      output,
					"fail_reason": rec.FailReason,
				})
				if !emit {
					return fmt.Errorf("validation failed: %s", rec.FailReason)
				}
				return nil
			}

			if outFile == "" && emit {
				fmt.Println(output)
				fmt.Fprintln(os.Stderr)
			}

			fmt.Fprintf(os.Stderr, "Record: %s (%s)\n", rec.ID, rec.Status)
			fmt.Fprintf(os.Stderr, "Model: %s, context entities: %d\n", rec.ModelID, len(rec.ContextIDs))
			if rec.Status == models.StatusAwaitingReview {
				fmt.Fprintf(os.Stderr, "Review with 'loom review approve %s' or 'loom review reject %s --reason ...'\n", rec.ID, rec.ID)
			}
			if !emit {
				return fmt.Errorf("validation failed: %s (audit with 'loom records %s')", rec.FailReason, rec.ID)
			}

			return nil
		},
	}

	cmd.Flags().String("language", "", "Target language for the generated code")
	cmd.Flags().Int("k", 0, "Number of entities to retrieve (default from config)")
	cmd.Flags().String("mode", "", "Retrieval mode: similarity, hybrid, or contextual")
	cmd.Flags().Int("budget", 0, "Token budget for retrieved context (default from config)")
	cmd.Flags().String("out", "", "Write output to a file instead of stdout")

	return cmd
}

// artifactOutput returns the record's output and whether it may be emitted.
// Output that failed validation is withheld from stdout, --out, and the JSON
// payload; the record stays auditable through 'loom records'.
func artifactOutput(rec *models.GenerationRecord) (string, bool) {
	if rec.Status == models.StatusValidatorFailed {
		return "", false
	}
	return rec.Output, true
}
