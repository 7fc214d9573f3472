package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"trace", LevelTrace},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDecisionLoggerDisabledAtInfo(t *testing.T) {
	dir := t.TempDir()

	dl := NewDecisionLogger(dir, "info")
	if dl != nil {
		t.Fatal("decision logger enabled at info level")
	}

	// Nil receivers are no-ops
	dl.Query("q", "hybrid", nil)
	dl.Generation("rec-1", "q", "mock/m", "pending", nil, 0)
	dl.GenerationFailure("q", fmt.Errorf("boom"))
	dl.Close()

	if _, err := os.Stat(filepath.Join(dir, "decisions.jsonl")); err == nil {
		t.Error("decisions.jsonl created at info level")
	}
}

func TestDecisionLoggerWritesEvents(t *testing.T) {
	dir := t.TempDir()

	dl := NewDecisionLogger(dir, "debug")
	if dl == nil {
		t.Fatal("decision logger nil at debug level")
	}
	dl.Query("retry backoff", "hybrid", []string{"ent-retry"})
	dl.Generation("rec-1", "retry backoff", "mock/test", "awaiting_human_review",
		[]string{"ent-retry"}, 2)
	dl.GenerationFailure("bad query", fmt.Errorf("model offline"))
	dl.Close()

	data, err := os.ReadFile(filepath.Join(dir, "decisions.jsonl"))
	if err != nil {
		t.Fatalf("decisions.jsonl not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}

	checks := []struct {
		line     int
		contains []string
	}{
		{0, []string{`"event":"query"`, `"ent-retry"`, `"time"`}},
		{1, []string{`"event":"generate"`, `"record":"rec-1"`, `"skipped":2`}},
		{2, []string{`"event":"generate_failed"`, `"error":"model offline"`}},
	}
	for _, c := range checks {
		for _, want := range c.contains {
			if !strings.Contains(lines[c.line], want) {
				t.Errorf("line %d missing %s: %s", c.line, want, lines[c.line])
			}
		}
	}
}
