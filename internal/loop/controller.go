package loop

import (
	"context"
	"errors"
	"log"
	"time"

	"reasonloop/internal/graph"
	"reasonloop/internal/plan"
	"reasonloop/pkg/models"
)

// State is the loop controller's run state.
type State string

const (
	// StatePlanning covers initial plan generation.
	StatePlanning State = "planning"
	// StateRunning covers task execution.
	StateRunning State = "running"
	// StateDone means every task reached a terminal state.
	StateDone State = "done"
	// StateStalled means incomplete tasks remain but none can ever run.
	StateStalled State = "stalled"
	// StateAborted means a fatal plan error or cancellation stopped the run
	// before completion.
	StateAborted State = "aborted"
)

// Options configures a Controller.
type Options struct {
	// Objective is the natural-language goal for the run.
	Objective string
	// Template is the planning template name.
	Template string
	// MaxRetries is the per-task retry budget beyond the first attempt.
	MaxRetries int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// ContextLimit caps composed instruction size; 0 selects the default.
	ContextLimit int
	// UseFallbackPlan substitutes the minimal research+summarize plan when
	// the generated plan cannot be parsed, instead of aborting.
	UseFallbackPlan bool
}

// Controller is the top-level driver: it obtains the plan, resolves
// dependencies, dispatches ready tasks one at a time, and assembles the
// final report. Execution is single-threaded and deterministic: ready tasks
// run to completion (retries included) in ascending id order before the
// ready set is recomputed.
type Controller struct {
	gen  *plan.Generator
	exec *Executor
	opts Options
}

// NewController wires a Controller from its collaborators.
func NewController(gen *plan.Generator, exec *Executor, opts Options) *Controller {
	if opts.Template == "" {
		opts.Template = plan.DefaultTemplate
	}
	return &Controller{gen: gen, exec: exec, opts: opts}
}

// Run executes the full loop for the configured objective. It always returns
// a report; the report's State and Err describe how the run ended. The task
// set in the report is consistent with the state machine even when the
// context is canceled mid-run.
func (c *Controller) Run(ctx context.Context) *Report {
	start := time.Now()
	report := &Report{Objective: c.opts.Objective, State: StatePlanning}

	tasks, err := c.generatePlan(ctx)
	if err != nil {
		report.State = StateAborted
		report.Err = err
		report.Duration = time.Since(start)
		return report
	}
	report.Tasks = tasks

	g := graph.New()
	if err := g.Build(tasks); err != nil {
		// Structural plan errors abort before any task ability runs.
		report.State = StateAborted
		report.Err = err
		report.Duration = time.Since(start)
		return report
	}

	report.State = StateRunning
	builder := NewContextBuilder(c.opts.Objective, c.opts.ContextLimit)
	cycle := 0

	for {
		if err := ctx.Err(); err != nil {
			report.State = StateAborted
			report.Err = err
			break
		}

		ready := g.Ready()
		if len(ready) == 0 {
			if g.AllTerminal() {
				report.State = StateDone
				break
			}
			if g.Stalled() {
				report.State = StateStalled
				report.Blocked = g.BlockedTasks()
				break
			}
			// Nothing ready and nothing terminal should be impossible in a
			// single-threaded loop; treat it as a stall rather than spin.
			report.State = StateStalled
			report.Blocked = g.BlockedTasks()
			break
		}

		cycle++
		log.Printf("[loop] cycle #%d: %d ready task(s)", cycle, len(ready))

		for _, task := range ready {
			if err := ctx.Err(); err != nil {
				// Stop before starting the next task; already-executed tasks
				// keep their terminal states.
				report.State = StateAborted
				report.Err = err
				break
			}
			instruction := builder.Build(task, g)
			result := c.exec.Execute(ctx, task, instruction)
			report.Results = append(report.Results, result)
		}
		if report.State == StateAborted {
			break
		}
	}

	report.Cycles = cycle
	report.Duration = time.Since(start)
	c.finalize(report, g)
	return report
}

// generatePlan runs the plan generator, optionally degrading to the minimal
// fallback plan on a parse failure.
func (c *Controller) generatePlan(ctx context.Context) ([]*models.Task, error) {
	tasks, _, err := c.gen.Generate(ctx, c.opts.Objective, c.opts.Template)
	if err == nil {
		return tasks, nil
	}

	var parseErr *plan.ParseError
	if c.opts.UseFallbackPlan && errors.As(err, &parseErr) {
		log.Printf("[loop] plan parse failed, using fallback plan: %v", parseErr)
		return plan.Fallback(c.opts.Objective), nil
	}
	return nil, err
}

// finalize fills in the report fields derived from terminal task states.
func (c *Controller) finalize(report *Report, g *graph.Graph) {
	if report.State != StateDone && report.State != StateStalled {
		return
	}

	for _, task := range g.Tasks() {
		if task.Status == models.TaskStatusFailed {
			report.FailedTaskIDs = append(report.FailedTaskIDs, task.ID)
		}
	}

	sinksComplete := true
	for _, sink := range g.Sinks() {
		if sink.Status == models.TaskStatusComplete {
			report.SinkOutputs = append(report.SinkOutputs, SinkOutput{TaskID: sink.ID, Output: sink.Output})
		} else {
			sinksComplete = false
		}
	}

	// Partial success: interior failures while every sink still produced
	// output through alternate paths.
	report.PartialSuccess = report.State == StateDone && sinksComplete && len(report.FailedTaskIDs) > 0
	if report.State == StateStalled {
		report.Blocked = g.BlockedTasks()
	}
}
