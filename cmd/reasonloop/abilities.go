package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reasonloop/internal/abilities"
	"reasonloop/internal/config"
)

var abilitiesCmd = &cobra.Command{
	Use:   "abilities",
	Short: "List the abilities available to task plans",
	Long: `List the abilities the execution loop can dispatch tasks to, given
the current configuration. The mysql abilities appear only when a DSN is
configured and reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		llm := abilities.NewLLMClient(abilities.LLMConfig{
			APIURL:      cfg.LLM.APIURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		})
		registry := buildRegistry(cfg, llm)

		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(abilitiesCmd)
}
