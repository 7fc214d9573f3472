package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/embedding"
)

func newReembedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "Re-embed entities with stale or missing embeddings",
		Long: `Embed every live entity whose embedding is missing or was produced by
a different provider version. Entities that fail to embed are reported
and left stale; rerun after fixing the cause.

Use --dry-run to list stale entities without embedding them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()

			if dryRun {
				stale, err := a.store.StaleEntities(ctx, a.provider.Version())
				if err != nil {
					return fmt.Errorf("failed to list stale entities: %w", err)
				}
				if jsonOut {
					json.NewEncoder(os.Stdout).Encode(map[string]any{
						"provider": a.provider.Version(),
						"stale":    stale,
						"count":    len(stale),
					})
					return nil
				}
				if len(stale) == 0 {
					fmt.Println("All entities are embedded with the current provider.")
					return nil
				}
				fmt.Printf("Stale entities (%d) for provider %s:\n", len(stale), a.provider.Version())
				for _, id := range stale {
					fmt.Printf("  %s\n", id)
				}
				return nil
			}

			count, failed, err := embedding.Reindex(ctx, a.store, a.provider, a.logger)
			if err != nil {
				return fmt.Errorf("reembed failed: %w", err)
			}
			if err := a.store.Sync(ctx); err != nil {
				return fmt.Errorf("failed to sync store: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"provider": a.provider.Version(),
					"embedded": count,
					"failed":   failed,
				})
				return nil
			}

			fmt.Printf("Embedded %d entities with %s.\n", count, a.provider.Version())
			if len(failed) > 0 {
				fmt.Printf("Failed (%d):\n", len(failed))
				for _, id := range failed {
					fmt.Printf("  %s\n", id)
				}
			}

			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "List stale entities without embedding")

	return cmd
}
