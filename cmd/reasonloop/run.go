package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"reasonloop/internal/abilities"
	"reasonloop/internal/config"
	"reasonloop/internal/loop"
	"reasonloop/internal/metrics"
	"reasonloop/internal/plan"
	"reasonloop/internal/promptlog"
	"reasonloop/pkg/models"
)

var (
	runObjective    string
	runTemplate     string
	runModel        string
	runMaxRetries   int
	runRetryDelay   time.Duration
	runFallbackPlan bool
	runSkipPing     bool
	runVerbose      bool
)

var runCmd = &cobra.Command{
	Use:   "run [objective]",
	Short: "Run the execution loop for an objective",
	Long: `Run the full execution loop: generate a task plan for the objective,
execute the tasks in dependency order, and print the final report.

The objective can be given as an argument, with --objective, through
REASONLOOP_OBJECTIVE, or in the config file (in that order of precedence).

Examples:
  reasonloop run "Compare the top 3 beach destinations in Thailand"
  reasonloop run -t marketing_insights "Analyze our Q3 campaign results"
  reasonloop run -m mistral --max-retries 4 "Summarize recent Go releases"`,
	Args: cobra.ArbitraryArgs,
	RunE: runLoop,
}

func init() {
	addRunFlags(runCmd)
}

// addRunFlags registers the loop flags; they are shared between the root
// command and the run subcommand.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&runObjective, "objective", "o", "", "Objective for the run (overrides config)")
	cmd.Flags().StringVarP(&runTemplate, "template", "t", "", "Planning template: default_tasks, marketing_insights, propensity_modeling, or a user template")
	cmd.Flags().StringVarP(&runModel, "model", "m", "", "LLM model name (overrides config)")
	cmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "Retries per task after the first attempt")
	cmd.Flags().DurationVar(&runRetryDelay, "retry-delay", 0, "Fixed wait between attempts")
	cmd.Flags().BoolVar(&runFallbackPlan, "fallback-plan", false, "Use a minimal research+summarize plan when plan parsing fails")
	cmd.Flags().BoolVar(&runSkipPing, "skip-preflight", false, "Skip the LLM availability check")
	cmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose output")
}

func runLoop(cmd *cobra.Command, args []string) (retErr error) {
	// Recover from panics and report them
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runLoop: %v", r)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cmd, cfg, args)

	verbose := runVerbose || os.Getenv("REASONLOOP_DEBUG") != ""
	if verbose {
		fmt.Printf("[DEBUG] Objective: %s\n", cfg.Loop.Objective)
		fmt.Printf("[DEBUG] Template: %s\n", cfg.Loop.PromptTemplate)
		fmt.Printf("[DEBUG] Model: %s\n", cfg.LLM.Model)
		fmt.Printf("[DEBUG] Max retries: %d, retry delay: %s\n", cfg.Loop.MaxRetries, cfg.Loop.RetryDelay)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	printBanner(cfg)

	llm := abilities.NewLLMClient(abilities.LLMConfig{
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})

	if !runSkipPing {
		if err := llm.Ping(ctx); err != nil {
			printStatus("✗", fmt.Sprintf("LLM service unreachable at %s", cfg.LLM.APIURL), color.FgRed)
			return err
		}
		printStatus("✓", fmt.Sprintf("LLM service ready (%s)", cfg.LLM.Model), color.FgGreen)
	}

	registry := buildRegistry(cfg, llm)
	if verbose {
		fmt.Printf("[DEBUG] Registered abilities: %s\n", strings.Join(registry.Names(), ", "))
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

	recorder := promptlog.NewFileRecorder(cfg.PromptLog.Dir, cfg.PromptLog.Enabled)

	gen := plan.NewGenerator(registry, templates, recorder)
	exec := loop.NewExecutor(registry, recorder, cfg.Loop.MaxRetries, cfg.Loop.RetryDelay)
	ctrl := loop.NewController(gen, exec, loop.Options{
		Objective:       cfg.Loop.Objective,
		Template:        cfg.Loop.PromptTemplate,
		MaxRetries:      cfg.Loop.MaxRetries,
		RetryDelay:      cfg.Loop.RetryDelay,
		ContextLimit:    cfg.Loop.ContextLimit,
		UseFallbackPlan: cfg.Loop.FallbackPlan,
	})

	started := time.Now()
	report := ctrl.Run(ctx)

	printReport(report)

	if cfg.Metrics.Enabled {
		if err := saveRunHistory(cfg, report, started); err != nil {
			fmt.Printf("Warning: run history not saved: %v\n", err)
		}
	}

	switch report.State {
	case loop.StateAborted:
		return report.Err
	case loop.StateStalled:
		return fmt.Errorf("run stalled: %d task(s) could not run", len(report.Blocked))
	}
	return nil
}

// applyFlagOverrides layers explicit command-line flags over the loaded
// config. A trailing argument becomes the objective.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, args []string) {
	if len(args) > 0 {
		cfg.Loop.Objective = strings.Join(args, " ")
	}
	if cmd.Flags().Changed("objective") {
		cfg.Loop.Objective = runObjective
	}
	if cmd.Flags().Changed("template") {
		cfg.Loop.PromptTemplate = runTemplate
	}
	if cmd.Flags().Changed("model") {
		cfg.LLM.Model = runModel
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Loop.MaxRetries = runMaxRetries
	}
	if cmd.Flags().Changed("retry-delay") {
		cfg.Loop.RetryDelay = runRetryDelay
	}
	if cmd.Flags().Changed("fallback-plan") {
		cfg.Loop.FallbackPlan = runFallbackPlan
	}
}

// buildRegistry wires the configured ability backends. The mysql abilities
// are registered only when a DSN is configured and the connection opens.
func buildRegistry(cfg *config.Config, llm *abilities.LLMClient) *abilities.Registry {
	registry := abilities.NewRegistry()
	registry.Register(models.DefaultAbility, llm.TextCompletion())
	registry.Register("web-search", abilities.WebSearch(abilities.WebSearchConfig{
		Enabled:     cfg.WebSearch.Enabled,
		ResultCount: cfg.WebSearch.ResultCount,
		Timeout:     cfg.WebSearch.Timeout,
	}))
	registry.Register("web-scrape", abilities.WebScrape(abilities.WebScrapeConfig{
		Timeout: cfg.WebSearch.Timeout,
	}))
	registry.Register("write-file", abilities.WriteFile(abilities.WriteFileConfig{}))

	if dsn, err := config.GetMySQLDSN(cfg); err == nil {
		mysqlAbilities, err := abilities.NewMySQLAbilities(abilities.MySQLConfig{DSN: dsn})
		if err != nil {
			fmt.Printf("Warning: mysql abilities unavailable: %v\n", err)
		} else {
			registry.Register("mysql-schema", mysqlAbilities.Schema())
			registry.Register("mysql-query", mysqlAbilities.Query())
		}
	}

	return registry
}

// saveRunHistory persists the finished run to the local history database.
func saveRunHistory(cfg *config.Config, report *loop.Report, started time.Time) error {
	dbPath := cfg.Metrics.DBPath
	if dbPath == "" {
		dbPath = metrics.DefaultDBPath()
	}

	db, err := metrics.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	runID, err := db.RecordReport(report, cfg.Loop.PromptTemplate, started)
	if err != nil {
		return err
	}
	fmt.Printf("Run recorded as %s\n", runID)
	return nil
}

func printBanner(cfg *config.Config) {
	bold := color.New(color.Bold)
	fmt.Println()
	bold.Println("reasonloop")
	fmt.Printf("  Objective: %s\n", cfg.Loop.Objective)
	fmt.Printf("  Template:  %s\n", cfg.Loop.PromptTemplate)
	fmt.Printf("  Model:     %s\n", cfg.LLM.Model)
	fmt.Println()
}

func printReport(report *loop.Report) {
	fmt.Println()
	color.New(color.Bold).Println("Tasks")
	for _, task := range report.Tasks {
		printStatus(statusSymbol(task.Status), fmt.Sprintf("#%d [%s] %s", task.ID, task.Ability, task.Description), statusColor(task.Status))
	}

	if out := report.FinalOutput(); out != "" {
		fmt.Println()
		color.New(color.Bold).Println("Final output")
		fmt.Println(out)
	}

	fmt.Println()
	fmt.Print(report.Summary())
}

func statusSymbol(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusComplete:
		return "✓"
	case models.TaskStatusFailed:
		return "✗"
	case models.TaskStatusRunning:
		return "…"
	default:
		return "·"
	}
}

func statusColor(status models.TaskStatus) color.Attribute {
	switch status {
	case models.TaskStatusComplete:
		return color.FgGreen
	case models.TaskStatusFailed:
		return color.FgRed
	case models.TaskStatusRunning:
		return color.FgYellow
	default:
		return color.FgWhite
	}
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
