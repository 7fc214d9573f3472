package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/embedding"
	"github.com/loom-ai/loom/internal/models"
)

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <kind>",
		Short: "Add a knowledge entity",
		Long: `Add a knowledge entity to the store and embed it for retrieval.

Kind is one of: guideline, rule, preference, pattern, abstraction, snippet.
Content comes from --content or --from-file. Snippets, patterns, and
abstractions require content; guidelines, rules, and preferences may rely on
--name alone.

Examples:
  loom add rule --name "wrap-errors" --content "wrap errors with fmt.Errorf and %w" --language go
  loom add snippet --from-file retry.go --name "retry-backoff" --relation instantiates:ent-pattern-retry
  loom add rule --name "prefer-table-tests" --content "..." --enforcement should`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := models.EntityKind(args[0])
			if !kind.Valid() {
				return fmt.Errorf("invalid kind: %s (must be guideline, rule, preference, pattern, abstraction, or snippet)", args[0])
			}

			content, _ := cmd.Flags().GetString("content")
			fromFile, _ := cmd.Flags().GetString("from-file")
			name, _ := cmd.Flags().GetString("name")
			language, _ := cmd.Flags().GetString("language")
			tags, _ := cmd.Flags().GetString("tags")
			enforcement, _ := cmd.Flags().GetString("enforcement")
			relations, _ := cmd.Flags().GetStringArray("relation")
			noEmbed, _ := cmd.Flags().GetBool("no-embed")

			if fromFile != "" {
				if content != "" {
					return fmt.Errorf("cannot specify both --content and --from-file")
				}
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", fromFile, err)
				}
				content = string(data)
			}

			if enforcement != "" && enforcement != "must" && enforcement != "should" {
				return fmt.Errorf("invalid enforcement: %s (must be 'must' or 'should')", enforcement)
			}

			entity := models.Entity{
				Kind:     kind,
				Content:  content,
				Metadata: map[string]string{},
			}
			if name != "" {
				entity.Metadata[models.MetaName] = name
			}
			if language != "" {
				entity.Metadata[models.MetaLanguage] = language
			}
			if tags != "" {
				entity.Metadata[models.MetaTags] = tags
			}
			if enforcement != "" {
				entity.Metadata[models.MetaEnforcement] = enforcement
			}
			if fromFile != "" {
				entity.Metadata[models.MetaSource] = fromFile
			}

			for _, r := range relations {
				relKind, target, ok := strings.Cut(r, ":")
				if !ok || relKind == "" || target == "" {
					return fmt.Errorf("invalid relation: %s (expected kind:target-id)", r)
				}
				entity.Relations = append(entity.Relations, models.Relation{
					Kind: relKind, Target: target,
				})
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()

			if !noEmbed {
				vec, err := a.provider.Embed(ctx, embedding.EmbedText(&entity))
				if err != nil {
					return fmt.Errorf("failed to embed content: %w", err)
				}
				entity.Embedding = vec
				entity.EmbeddingVersion = a.provider.Version()
			}

			id, err := a.store.Put(ctx, entity)
			if err != nil {
				return fmt.Errorf("failed to store entity: %w", err)
			}
			if err := a.store.Sync(ctx); err != nil {
				return fmt.Errorf("failed to sync store: %w", err)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"status":   "added",
					"id":       id,
					"kind":     string(kind),
					"embedded": !noEmbed,
				})
			} else {
				fmt.Printf("Added %s %s\n", kind, id)
				if noEmbed {
					fmt.Println("Not embedded; run 'loom reembed' before querying.")
				}
			}

			return nil
		},
	}

	cmd.Flags().String("content", "", "Entity content")
	cmd.Flags().String("from-file", "", "Read content from a file")
	cmd.Flags().String("name", "", "Short human-readable name")
	cmd.Flags().String("language", "", "Target language (e.g. go, python)")
	cmd.Flags().String("tags", "", "Comma-separated tags")
	cmd.Flags().String("enforcement", "", "Rules only: 'must' (default) or 'should'")
	cmd.Flags().StringArray("relation", nil, "Relation to another entity as kind:target-id (repeatable)")
	cmd.Flags().Bool("no-embed", false, "Skip embedding (entity is excluded from retrieval until reembedded)")

	return cmd
}
