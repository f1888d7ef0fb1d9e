package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reasonloop [objective]",
	Short: "Autonomous objective-driven task execution loop",
	Long: `Reasonloop turns a natural-language objective into a dependency-ordered
task plan and executes it task by task through pluggable abilities.

The loop asks an LLM for a JSON task list, resolves task dependencies,
feeds each task the outputs of the tasks it depends on, retries failures
with a fixed delay, and assembles a final report from the outputs of the
plan's terminal tasks.

With no arguments, runs the configured default objective.

Abilities:
  text-completion  LLM completion via an Ollama-compatible endpoint (default)
  web-search       DuckDuckGo search, top results as numbered text
  web-scrape       Fetch a URL and extract its readable content
  mysql-schema     Describe tables in the configured MySQL database
  mysql-query      Run a read-only SQL query
  write-file       Save output as a markdown file`,
	Args: cobra.ArbitraryArgs,
	RunE: runLoop,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addRunFlags(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
