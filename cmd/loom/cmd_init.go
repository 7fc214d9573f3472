package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/store"
)

const starterConfig = `# Loom configuration
# API keys support ${VAR} expansion from the environment.

generation:
  # Backend for code generation: anthropic, openai, or ollama.
  # Leave empty to use loom for retrieval only.
  provider: ""
  # api_key: ${ANTHROPIC_API_KEY}
  # model: claude-sonnet-4-5
  budget: 4000

embedding:
  # Backend for embeddings: openai, local, or hash.
  # "hash" works offline with no model; it captures lexical overlap only.
  provider: hash

retrieval:
  k: 8
  mode: hybrid
  cache: true

logging:
  level: info
`

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize loom in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			writeConfig, _ := cmd.Flags().GetBool("config")

			loomDir := filepath.Join(root, ".loom")
			if err := os.MkdirAll(loomDir, 0755); err != nil {
				return fmt.Errorf("failed to create .loom directory: %w", err)
			}

			// Open and close the store once to create the schema
			s, err := store.NewSQLiteStore(root)
			if err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			if err := s.Close(); err != nil {
				return fmt.Errorf("failed to close store: %w", err)
			}

			configPath := ""
			if writeConfig {
				homeDir, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("failed to get home directory: %w", err)
				}
				configDir := filepath.Join(homeDir, ".loom")
				if err := os.MkdirAll(configDir, 0700); err != nil {
					return fmt.Errorf("failed to create config directory: %w", err)
				}
				configPath = filepath.Join(configDir, "config.yaml")
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
						return fmt.Errorf("failed to write config: %w", err)
					}
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				result := map[string]string{
					"status": "initialized",
					"path":   loomDir,
				}
				if configPath != "" {
					result["config"] = configPath
				}
				json.NewEncoder(os.Stdout).Encode(result)
			} else {
				fmt.Printf("Initialized .loom/ in %s\n", root)
				if configPath != "" {
					fmt.Printf("Config at %s\n", configPath)
				}
				fmt.Println("\nAdd knowledge with 'loom add', then query with 'loom query'.")
			}

			return nil
		},
	}

	cmd.Flags().Bool("config", false, "Also write a starter config to ~/.loom/config.yaml")

	return cmd
}
