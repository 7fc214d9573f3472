package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	// Pick up API keys from a local .env if present
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Loom - retrieval-grounded code generation",
		Long: `loom stores a project's coding knowledge (rules, patterns, snippets,
abstractions) and uses it to ground code generation.

Queries retrieve relevant knowledge by hybrid vector and keyword search.
Generation assembles retrieved knowledge into a budgeted prompt, calls the
configured model, and records the output for validation and human review.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newAddCmd(),
		newListCmd(),
		newShowCmd(),
		newRemoveCmd(),
		newCheckCmd(),
		newQueryCmd(),
		newGenerateCmd(),
		newRecordsCmd(),
		newReviewCmd(),
		newExportCmd(),
		newImportCmd(),
		newReembedCmd(),
		newMCPServerCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{"version": version})
			} else {
				fmt.Printf("loom version %s\n", version)
			}
		},
	}
}
