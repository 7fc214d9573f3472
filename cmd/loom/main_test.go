package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/loom-ai/loom/internal/models"
)

// newTestRootCmd creates a root command with persistent flags for testing
// subcommands.
func newTestRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "loom",
	}
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level")
	return rootCmd
}

// isolateHome sets HOME to a temp directory so tests never read a real
// ~/.loom/config.yaml.
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
}

func runCommand(t *testing.T, root string, newCmd func() *cobra.Command, args ...string) error {
	t.Helper()
	rootCmd := newTestRootCmd()
	rootCmd.AddCommand(newCmd())
	rootCmd.SetArgs(append(args, "--root", root))
	return rootCmd.Execute()
}

func TestNewVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	if cmd.Use != "version" {
		t.Errorf("Use = %q, want %q", cmd.Use, "version")
	}
}

func TestInitCreatesLoomDir(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if err := runCommand(t, tmpDir, newInitCmd, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ".loom")); err != nil {
		t.Error(".loom directory not created")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".loom", "loom.db")); err != nil {
		t.Error("loom.db not created")
	}
}

func TestInitWithConfig(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if err := runCommand(t, tmpDir, newInitCmd, "init", "--config"); err != nil {
		t.Fatalf("init --config failed: %v", err)
	}

	configPath := filepath.Join(tmpDir, "home", ".loom", "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("config not written at %s", configPath)
	}
}

func TestCommandsRequireInit(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	err := runCommand(t, tmpDir, newListCmd, "list")
	if err == nil {
		t.Error("expected error before init")
	}
}

func TestAddAndListRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if err := runCommand(t, tmpDir, newInitCmd, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	err := runCommand(t, tmpDir, newAddCmd,
		"add", "rule",
		"--name", "wrap-errors",
		"--content", "wrap errors with fmt.Errorf and the %w verb",
		"--language", "go")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if err := runCommand(t, tmpDir, newListCmd, "list", "rule"); err != nil {
		t.Errorf("list failed: %v", err)
	}
	if err := runCommand(t, tmpDir, newCheckCmd, "check"); err != nil {
		t.Errorf("check failed: %v", err)
	}
}

func TestAddRejectsInvalidKind(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if err := runCommand(t, tmpDir, newInitCmd, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	err := runCommand(t, tmpDir, newAddCmd, "add", "widget", "--content", "x")
	if err == nil {
		t.Error("expected error for invalid kind")
	}
}

func TestAddRejectsInvalidRelation(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if err := runCommand(t, tmpDir, newInitCmd, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	err := runCommand(t, tmpDir, newAddCmd,
		"add", "snippet", "--content", "x", "--relation", "no-target")
	if err == nil {
		t.Error("expected error for malformed relation")
	}
}

func TestQueryWithHashProvider(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if err := runCommand(t, tmpDir, newInitCmd, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	err := runCommand(t, tmpDir, newAddCmd,
		"add", "pattern",
		"--name", "retry-backoff",
		"--content", "retry transient failures with linear backoff",
		"--language", "go")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if err := runCommand(t, tmpDir, newQueryCmd, "query", "retry", "backoff", "--k", "1"); err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestReembedDryRun(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if err := runCommand(t, tmpDir, newInitCmd, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	err := runCommand(t, tmpDir, newAddCmd,
		"add", "snippet", "--content", "some snippet body", "--no-embed")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if err := runCommand(t, tmpDir, newReembedCmd, "reembed", "--dry-run"); err != nil {
		t.Errorf("reembed --dry-run failed: %v", err)
	}
	if err := runCommand(t, tmpDir, newReembedCmd, "reembed"); err != nil {
		t.Errorf("reembed failed: %v", err)
	}
}

func TestExportImportCommands(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if err := runCommand(t, tmpDir, newInitCmd, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	err := runCommand(t, tmpDir, newAddCmd,
		"add", "abstraction", "--name", "repo", "--content", "repository interface over storage")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	exportPath := filepath.Join(tmpDir, "export.jsonl")
	if err := runCommand(t, tmpDir, newExportCmd, "export", "--out", exportPath); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	// Import into a second, fresh root
	otherDir := t.TempDir()
	if err := runCommand(t, otherDir, newInitCmd, "init"); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := runCommand(t, otherDir, newImportCmd, "import", exportPath); err != nil {
		t.Fatalf("import failed: %v", err)
	}
}

func TestArtifactOutputWithheldOnValidationFailure(t *testing.T) {
	tests := []struct {
		name   string
		status models.RecordStatus
		emit   bool
	}{
		{"pending", models.StatusPending, true},
		{"awaiting review", models.StatusAwaitingReview, true},
		{"approved", models.StatusApproved, true},
		{"validator failed", models.StatusValidatorFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.GenerationRecord{Status: tt.status, Output: "code body"}
			output, emit := artifactOutput(rec)
			if emit != tt.emit {
				t.Fatalf("emit = %v, want %v", emit, tt.emit)
			}
			if emit && output != "code body" {
				t.Errorf("output = %q, want record output", output)
			}
			if !emit && output != "" {
				t.Errorf("withheld output leaked: %q", output)
			}
		})
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"one line", "one line"},
		{"first\nsecond", "first"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := firstLine(tt.input); got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
