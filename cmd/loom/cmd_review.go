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

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records [record-id]",
		Short: "List generation records or show one",
		Long: `List generation records, optionally filtered by status, or show one
record in full including its prompt and output.

Statuses: pending, awaiting_human_review, approved, rejected, validator_failed.

Examples:
  loom records
  loom records --status awaiting_human_review
  loom records rec-01jx...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()

			if len(args) == 1 {
				rec, err := a.store.GetRecord(ctx, args[0])
				if err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("record not found: %s", args[0])
					}
					return fmt.Errorf("failed to load record: %w", err)
				}

				if jsonOut {
					json.NewEncoder(os.Stdout).Encode(rec)
					return nil
				}

				fmt.Printf("Record: %s\n", rec.ID)
				fmt.Printf("Status: %s\n", rec.Status)
				fmt.Printf("Query: %s\n", rec.Query)
				fmt.Printf("Model: %s\n", rec.ModelID)
				fmt.Printf("Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
				if rec.EmbeddingVersion != "" {
					fmt.Printf("Embeddings: %s\n", rec.EmbeddingVersion)
				}
				if rec.FailReason != "" {
					fmt.Printf("Reason: %s\n", rec.FailReason)
				}
				fmt.Println()

				if len(rec.ContextIDs) > 0 {
					fmt.Println("Context entities:")
					for _, id := range rec.ContextIDs {
						fmt.Printf("  %s\n", id)
					}
					fmt.Println()
				}

				if len(rec.Retrieved) > 0 {
					fmt.Println("Retrieval trace:")
					for _, h := range rec.Retrieved {
						fmt.Printf("  %s  score=%.3f\n", h.EntityID, h.Score)
					}
					fmt.Println()
				}

				fmt.Println("Output:")
				fmt.Println(rec.Output)
				return nil
			}

			records, err := a.store.ListRecords(ctx, models.RecordStatus(status))
			if err != nil {
				return fmt.Errorf("failed to list records: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]any{
					"records": records,
					"count":   len(records),
				})
				return nil
			}

			if len(records) == 0 {
				fmt.Println("No generation records.")
				return nil
			}

			fmt.Printf("Generation records (%d):\n\n", len(records))
			for i, rec := range records {
				fmt.Printf("%d. %s  [%s]\n", i+1, rec.ID, rec.Status)
				fmt.Printf("   %s\n", rec.Query)
				fmt.Printf("   %s  %s\n", rec.ModelID, rec.CreatedAt.Format(time.RFC3339))
				fmt.Println()
			}

			return nil
		},
	}

	cmd.Flags().String("status", "", "Filter by status")

	return cmd
}

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review generation records",
	}

	cmd.AddCommand(
		newReviewValidateCmd(),
		newReviewApproveCmd(),
		newReviewRejectCmd(),
	)

	return cmd
}

func newReviewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <record-id>",
		Short: "Run validators on a pending record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			rec, err := a.newReviewer().RunValidators(ctx, args[0])
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			if err := a.store.Sync(ctx); err != nil {
				return fmt.Errorf("failed to sync store: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{
					"id":          rec.ID,
					"status":      string(rec.Status),
					"fail_reason": rec.FailReason,
				})
			} else {
				fmt.Printf("Record %s is %s\n", rec.ID, rec.Status)
				if rec.FailReason != "" {
					fmt.Printf("Reason: %s\n", rec.FailReason)
				}
			}

			return nil
		},
	}
}

func newReviewApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <record-id>",
		Short: "Approve a record awaiting human review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			if err := a.newReviewer().Approve(ctx, args[0]); err != nil {
				return fmt.Errorf("approve failed: %w", err)
			}
			if err := a.store.Sync(ctx); err != nil {
				return fmt.Errorf("failed to sync store: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{
					"id":     args[0],
					"status": string(models.StatusApproved),
				})
			} else {
				fmt.Printf("Record %s approved.\n", args[0])
			}

			return nil
		},
	}
}

func newReviewRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <record-id>",
		Short: "Reject a record awaiting human review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			if err := a.newReviewer().Reject(ctx, args[0], reason); err != nil {
				return fmt.Errorf("reject failed: %w", err)
			}
			if err := a.store.Sync(ctx); err != nil {
				return fmt.Errorf("failed to sync store: %w", err)
			}

			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{
					"id":     args[0],
					"status": string(models.StatusRejected),
					"reason": reason,
				})
			} else {
				fmt.Printf("Record %s rejected.\n", args[0])
			}

			return nil
		},
	}

	cmd.Flags().String("reason", "", "Why the output was rejected (required)")
	cmd.MarkFlagRequired("reason")

	return cmd
}
