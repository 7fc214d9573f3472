package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/models"
	"github.com/loom-ai/loom/internal/store"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [kind]",
		Short: "List knowledge entities",
		Long: `List stored entities, optionally restricted to one kind.

Examples:
  loom list
  loom list rule --language go
  loom list snippet --tag http --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			language, _ := cmd.Flags().GetString("language")
			tag, _ := cmd.Flags().GetString("tag")
			includeTombstoned, _ := cmd.Flags().GetBool("all")
			jsonOut, _ := cmd.Flags().GetBool("json")

			kinds := models.AllKinds()
			if len(args) == 1 {
				kind := models.EntityKind(args[0])
				if !kind.Valid() {
					return fmt.Errorf("invalid kind: %s", args[0])
				}
				kinds = []models.EntityKind{kind}
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			filter := store.Filter{
				Language:          language,
				Tag:               tag,
				IncludeTombstoned: includeTombstoned,
			}

			var entities []models.Entity
			for _, kind := range kinds {
				found, err := a.store.FindByKind(ctx, kind, filter)
				if err != nil {
					return fmt.Errorf("failed to list %s entities: %w", kind, err)
				}
				entities = append(entities, found...)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"entities": entities,
					"count":    len(entities),
				})
				return nil
			}

			if len(entities) == 0 {
				fmt.Println("No entities stored yet.")
				fmt.Println("\nUse 'loom add <kind>' to add knowledge.")
				return nil
			}

			fmt.Printf("Entities (%d):\n\n", len(entities))
			for i, e := range entities {
				marker := ""
				if e.Tombstoned {
					marker = " (tombstoned)"
				}
				fmt.Printf("%d. [%s] %s%s\n", i+1, e.Kind, e.Name(), marker)
				fmt.Printf("   ID: %s\n", e.ID)
				if lang := e.Language(); lang != "" {
					fmt.Printf("   Language: %s\n", lang)
				}
				if e.Content != "" {
					fmt.Printf("   %s\n", firstLine(e.Content))
				}
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().String("language", "", "Filter by language metadata")
	cmd.Flags().String("tag", "", "Filter by tag")
	cmd.Flags().Bool("all", false, "Include tombstoned entities")

	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity-id>",
		Short: "Show details of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			id := args[0]

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entity, err := a.store.Get(context.Background(), id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("entity not found: %s", id)
				}
				return fmt.Errorf("failed to load entity: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(entity)
				return nil
			}

			fmt.Printf("Entity: %s\n", entity.ID)
			fmt.Printf("Kind: %s\n", entity.Kind)
			fmt.Printf("Name: %s\n", entity.Name())
			if entity.Tombstoned {
				fmt.Println("Tombstoned: yes")
			}
			fmt.Printf("Created: %s\n", entity.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated: %s\n", entity.UpdatedAt.Format(time.RFC3339))
			if entity.EmbeddingVersion != "" {
				fmt.Printf("Embedding: %s (%d dims)\n", entity.EmbeddingVersion, len(entity.Embedding))
			} else {
				fmt.Println("Embedding: none (run 'loom reembed')")
			}
			fmt.Println()

			if len(entity.Metadata) > 0 {
				fmt.Println("Metadata:")
				for k, v := range entity.Metadata {
					fmt.Printf("  %s: %s\n", k, v)
				}
				fmt.Println()
			}

			if len(entity.Relations) > 0 {
				fmt.Println("Relations:")
				for _, r := range entity.Relations {
					fmt.Printf("  %s -> %s\n", r.Kind, r.Target)
				}
				fmt.Println()
			}

			if entity.Content != "" {
				fmt.Println("Content:")
				fmt.Println(entity.Content)
			}

			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <entity-id>",
		Short: "Remove an entity",
		Long: `Remove an entity from the store.

By default the entity is tombstoned: kept for generation lineage but
excluded from retrieval. Use --hard to delete permanently; this fails
while any generation record still references the entity.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hard, _ := cmd.Flags().GetBool("hard")
			jsonOut, _ := cmd.Flags().GetBool("json")
			id := args[0]

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			if hard {
				err = a.store.Delete(ctx, id)
			} else {
				err = a.store.Tombstone(ctx, id)
			}
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("entity not found: %s", id)
				}
				if errors.Is(err, store.ErrConflict) {
					return fmt.Errorf("cannot delete %s: generation records reference it; use tombstone instead", id)
				}
				return fmt.Errorf("failed to remove entity: %w", err)
			}
			if err := a.store.Sync(ctx); err != nil {
				return fmt.Errorf("failed to sync store: %w", err)
			}

			status := "tombstoned"
			if hard {
				status = "deleted"
			}
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{
					"status": status,
					"id":     id,
				})
			} else {
				fmt.Printf("Entity %s %s.\n", id, status)
			}

			return nil
		},
	}

	cmd.Flags().Bool("hard", false, "Delete permanently instead of tombstoning")

	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report dangling relations and stale embeddings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()

			dangling, err := a.store.DanglingRelations(ctx)
			if err != nil {
				return fmt.Errorf("failed to check relations: %w", err)
			}

			stale, err := a.store.StaleEntities(ctx, a.provider.Version())
			if err != nil {
				return fmt.Errorf("failed to check embeddings: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"dangling_relations": dangling,
					"stale_entities":     stale,
					"clean":              len(dangling) == 0 && len(stale) == 0,
				})
				return nil
			}

			if len(dangling) == 0 && len(stale) == 0 {
				fmt.Println("Store is clean: no dangling relations, no stale embeddings.")
				return nil
			}

			if len(dangling) > 0 {
				fmt.Printf("Dangling relations (%d):\n", len(dangling))
				for _, d := range dangling {
					fmt.Printf("  %s -[%s]-> %s (target missing)\n", d.SourceID, d.Kind, d.TargetID)
				}
				fmt.Println()
			}

			if len(stale) > 0 {
				fmt.Printf("Stale embeddings (%d):\n", len(stale))
				for _, id := range stale {
					fmt.Printf("  %s\n", id)
				}
				fmt.Println("\nRun 'loom reembed' to refresh them.")
			}

			return nil
		},
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
