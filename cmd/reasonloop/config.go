package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reasonloop/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Show the effective configuration after merging defaults, the user
config file, the project config file, and REASONLOOP_* environment
variables. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		fmt.Printf("User config:    %s%s\n", config.GetUserConfigPath(), existsMarker(config.GetUserConfigPath()))
		if project := config.GetProjectConfigPath(); project != "" {
			fmt.Printf("Project config: %s\n", project)
		}
		fmt.Println()

		fmt.Println("loop:")
		fmt.Printf("  objective:       %s\n", cfg.Loop.Objective)
		fmt.Printf("  prompt_template: %s\n", cfg.Loop.PromptTemplate)
		fmt.Printf("  max_retries:     %d\n", cfg.Loop.MaxRetries)
		fmt.Printf("  retry_delay:     %s\n", cfg.Loop.RetryDelay)
		fmt.Printf("  context_limit:   %d\n", cfg.Loop.ContextLimit)
		fmt.Printf("  fallback_plan:   %v\n", cfg.Loop.FallbackPlan)

		fmt.Println("llm:")
		fmt.Printf("  api_url:     %s\n", cfg.LLM.APIURL)
		fmt.Printf("  model:       %s\n", cfg.LLM.Model)
		fmt.Printf("  temperature: %v\n", cfg.LLM.Temperature)
		fmt.Printf("  max_tokens:  %d\n", cfg.LLM.MaxTokens)
		fmt.Printf("  timeout:     %s\n", cfg.LLM.Timeout)

		fmt.Println("mysql:")
		fmt.Printf("  dsn:    %s (source: %s)\n", config.MaskDSN(cfg.MySQL.DSN), config.GetDSNSource(cfg))

		fmt.Println("web_search:")
		fmt.Printf("  enabled:      %v\n", cfg.WebSearch.Enabled)
		fmt.Printf("  result_count: %d\n", cfg.WebSearch.ResultCount)
		fmt.Printf("  timeout:      %s\n", cfg.WebSearch.Timeout)

		fmt.Println("prompt_log:")
		fmt.Printf("  enabled: %v\n", cfg.PromptLog.Enabled)
		fmt.Printf("  dir:     %s\n", cfg.PromptLog.Dir)

		fmt.Println("metrics:")
		fmt.Printf("  enabled: %v\n", cfg.Metrics.Enabled)
		fmt.Printf("  db_path: %s\n", cfg.Metrics.DBPath)

		fmt.Println("templates:")
		fmt.Printf("  dir: %s\n", cfg.Templates.Dir)

		return nil
	},
}

func existsMarker(path string) string {
	if _, err := os.Stat(path); err != nil {
		return " (not found, using defaults)"
	}
	return ""
}
