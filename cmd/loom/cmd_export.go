package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/store"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all entities and records as JSONL",
		Long: `Export the full store as JSONL: one entity or record per line, in
deterministic order. The output is suitable for backup, diffing, and
'loom import' into a fresh store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFile, _ := cmd.Flags().GetString("out")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			w := os.Stdout
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outFile, err)
				}
				defer f.Close()
				w = f
			}

			if err := store.Export(context.Background(), a.store, w); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if outFile != "" {
				fmt.Fprintf(os.Stderr, "Exported to %s\n", outFile)
			}
			return nil
		},
	}

	cmd.Flags().String("out", "", "Write to a file instead of stdout")

	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import entities and records from a JSONL export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			ctx := context.Background()
			entities, records, err := store.Import(ctx, a.store, f)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			if err := a.store.Sync(ctx); err != nil {
				return fmt.Errorf("failed to sync store: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]int{
					"entities": entities,
					"records":  records,
				})
			} else {
				fmt.Printf("Imported %d entities and %d records.\n", entities, records)
			}

			return nil
		},
	}
}
