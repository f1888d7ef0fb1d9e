package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reasonloop/internal/config"
	"reasonloop/internal/plan"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available planning templates",
	Long: `List the planning templates available for task generation.

Built-in templates ship with the binary; additional templates are loaded
from the configured templates directory (templates.dir or
REASONLOOP_TEMPLATES_DIR).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		templates, err := plan.LoadTemplates()
		if err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
		if cfg.Templates.Dir != "" {
			if err := templates.LoadDir(cfg.Templates.Dir); err != nil {
				fmt.Printf("Warning: user templates unavailable: %v\n", err)
			}
		}

		for _, name := range templates.Names() {
			marker := " "
			if name == cfg.Loop.PromptTemplate {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}
