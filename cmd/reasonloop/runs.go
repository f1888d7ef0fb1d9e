package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reasonloop/internal/config"
	"reasonloop/internal/metrics"
)

var (
	runsLimit     int
	runsAbilities bool
	runsPurge     time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Inspect run history",
	Long: `List past runs recorded in the local history database, or show the
per-task outcomes of one run by id.

Examples:
  reasonloop runs                 # recent runs
  reasonloop runs <run-id>        # task outcomes of one run
  reasonloop runs --abilities     # aggregate stats per ability
  reasonloop runs --purge 720h    # drop runs older than 30 days`,
	Args: cobra.MaximumNArgs(1),
	RunE: showRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "Maximum number of runs to list")
	runsCmd.Flags().BoolVar(&runsAbilities, "abilities", false, "Show aggregate stats per ability")
	runsCmd.Flags().DurationVar(&runsPurge, "purge", 0, "Delete runs older than this duration")
}

func showRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.Metrics.DBPath
	if dbPath == "" {
		dbPath = metrics.DefaultDBPath()
	}

	db, err := metrics.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate run history: %w", err)
	}

	if runsPurge > 0 {
		purged, err := db.PurgeOldRuns(runsPurge)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d run(s) older than %s\n", purged, runsPurge)
		return nil
	}

	if runsAbilities {
		return showAbilityStats(db)
	}

	if len(args) == 1 {
		return showRunDetail(db, args[0])
	}

	runs, err := db.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %-8s  %2d/%2d tasks  %6.1fs  %s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.State, run.Completed, run.TaskCount,
			run.Duration.Seconds(), run.Objective)
		fmt.Printf("  id: %s  template: %s\n", run.ID, run.Template)
	}
	return nil
}

func showRunDetail(db *metrics.DB, runID string) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no run with id %s", runID)
	}

	fmt.Printf("Objective: %s\n", run.Objective)
	fmt.Printf("State: %s  Template: %s  Cycles: %d  Duration: %s\n\n",
		run.State, run.Template, run.Cycles, run.Duration)

	results, err := db.TaskResultsByRun(runID)
	if err != nil {
		return err
	}
	for _, r := range results {
		line := fmt.Sprintf("#%d [%s] %s (%d attempt(s), %s)", r.TaskID, r.Ability, r.Description, r.Attempts, r.Duration)
		if r.Error != "" {
			line += "\n    " + r.Error
		}
		fmt.Printf("%-10s %s\n", r.Status, line)
	}
	return nil
}

func showAbilityStats(db *metrics.DB) error {
	stats, err := db.AbilityStats()
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Println("No task results recorded yet.")
		return nil
	}

	for _, s := range stats {
		fmt.Printf("%-18s %4d invocation(s)  %3d failure(s)  avg %s\n",
			s.Ability, s.Invocations, s.Failures, s.AvgDuration)
	}
	return nil
}
