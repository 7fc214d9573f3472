package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Run loom as an MCP (Model Context Protocol) server over stdio.

Exposes loom_query, loom_generate, loom_review, and loom_records as tools,
and the always-on rule set as a context resource. Register it with an MCP
client, e.g.:

  claude mcp add loom -- loom mcp-server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			// The server owns the store from here; it closes it on shutdown.
			defer a.decisions.Close()

			pl, reviewer, err := a.newPipeline(false)
			if err != nil {
				a.store.Close()
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "loom",
				Version:  version,
				Pipeline: pl,
				Store:    a.store,
				Reviewer: reviewer,
				Logger:   a.logger,
			})
			if err != nil {
				a.store.Close()
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			a.logger.Info("starting MCP server", "version", version)
			return server.Run(context.Background())
		},
	}
}
