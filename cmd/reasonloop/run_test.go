package main

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"reasonloop/internal/abilities"
	"reasonloop/internal/config"
	"reasonloop/pkg/models"
)

func TestStatusSymbol(t *testing.T) {
	tests := []struct {
		name     string
		status   models.TaskStatus
		expected string
	}{
		{"complete", models.TaskStatusComplete, "✓"},
		{"failed", models.TaskStatusFailed, "✗"},
		{"running", models.TaskStatusRunning, "…"},
		{"incomplete", models.TaskStatusIncomplete, "·"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusSymbol(tt.status); got != tt.expected {
				t.Errorf("statusSymbol(%q) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestStatusColor(t *testing.T) {
	if got := statusColor(models.TaskStatusComplete); got != color.FgGreen {
		t.Errorf("complete color = %v, want green", got)
	}
	if got := statusColor(models.TaskStatusFailed); got != color.FgRed {
		t.Errorf("failed color = %v, want red", got)
	}
}

func TestBuildRegistry_WithoutMySQL(t *testing.T) {
	t.Setenv("REASONLOOP_MYSQL_DSN", "")
	cfg := config.Default()
	llm := abilities.NewLLMClient(abilities.LLMConfig{APIURL: "http://localhost:11434/api/generate", Model: "llama3"})

	registry := buildRegistry(cfg, llm)

	names := registry.Names()
	want := []string{"text-completion", "web-scrape", "web-search", "write-file"}
	if len(names) != len(want) {
		t.Fatalf("registered abilities = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ability[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := config.Default()
	runCmd.Flags().Set("objective", "flag objective")
	runCmd.Flags().Set("max-retries", "5")
	runCmd.Flags().Set("retry-delay", "1s")
	t.Cleanup(func() {
		runObjective = ""
		runMaxRetries = 0
		runRetryDelay = 0
	})

	applyFlagOverrides(runCmd, cfg, []string{"arg", "objective"})

	// An explicit --objective flag beats the positional argument.
	if cfg.Loop.Objective != "flag objective" {
		t.Errorf("objective = %q, want flag value", cfg.Loop.Objective)
	}
	if cfg.Loop.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", cfg.Loop.MaxRetries)
	}
	if cfg.Loop.RetryDelay != time.Second {
		t.Errorf("retry delay = %v, want 1s", cfg.Loop.RetryDelay)
	}
}

func TestApplyFlagOverrides_ArgsBecomeObjective(t *testing.T) {
	cfg := config.Default()

	cmd := &cobra.Command{Use: "test"}
	addRunFlags(cmd)
	applyFlagOverrides(cmd, cfg, []string{"compare", "beach", "destinations"})

	if cfg.Loop.Objective != "compare beach destinations" {
		t.Errorf("objective = %q, want joined args", cfg.Loop.Objective)
	}
}
