package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/pipeline"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve knowledge relevant to a query",
		Long: `Search stored knowledge by hybrid vector and keyword retrieval.

Modes:
  similarity  vector cosine similarity only
  hybrid      vector similarity fused with keyword match (default)
  contextual  hybrid, plus entities related to the top hits

Examples:
  loom query "retry with backoff"
  loom query "http client setup" --k 5 --mode contextual --language go`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			k, _ := cmd.Flags().GetInt("k")
			mode, _ := cmd.Flags().GetString("mode")
			language, _ := cmd.Flags().GetString("language")
			tag, _ := cmd.Flags().GetString("tag")
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

			pl, _, err := a.newPipeline(false)
			if err != nil {
				return err
			}

			hits, err := pl.Query(context.Background(), pipeline.QueryRequest{
				Query:    query,
				K:        k,
				Mode:     retrievalMode,
				Language: language,
				Tag:      tag,
			})
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"query": query,
					"mode":  string(retrievalMode),
					"hits":  hits,
					"count": len(hits),
				})
				return nil
			}

			if len(hits) == 0 {
				fmt.Println("No matching knowledge found.")
				return nil
			}

			fmt.Printf("Results (%d):\n\n", len(hits))
			for i, h := range hits {
				marker := ""
				if h.Related {
					marker = " (related)"
				}
				fmt.Printf("%d. [%s] %s%s  score=%.3f\n", i+1, h.Entity.Kind, h.Entity.Name(), marker, h.Score)
				fmt.Printf("   ID: %s\n", h.Entity.ID)
				if h.Entity.Content != "" {
					fmt.Printf("   %s\n", firstLine(h.Entity.Content))
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().Int("k", 0, "Number of results (default from config)")
	cmd.Flags().String("mode", "", "Retrieval mode: similarity, hybrid, or contextual")
	cmd.Flags().String("language", "", "Filter by language metadata")
	cmd.Flags().String("tag", "", "Filter by tag")

	return cmd
}
