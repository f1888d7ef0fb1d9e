package loop

import (
	"fmt"
	"strings"
	"time"

	"reasonloop/internal/graph"
	"reasonloop/pkg/models"
)

// SinkOutput is the output of one graph sink, a task no other task depends
// on. Sink outputs form the run's final result.
type SinkOutput struct {
	TaskID int
	Output string
}

// Report is the outcome of one run.
type Report struct {
	// Objective is the goal the run pursued.
	Objective string
	// State is the terminal state of the loop.
	State State
	// Err is set when the run aborted.
	Err error
	// Tasks is the full task set, in plan order.
	Tasks []*models.Task
	// Results holds one entry per executed task, in execution order.
	Results []models.Result
	// SinkOutputs holds completed sink outputs in ascending id order.
	SinkOutputs []SinkOutput
	// FailedTaskIDs lists tasks that exhausted their retries.
	FailedTaskIDs []int
	// Blocked lists tasks that could never run, with reasons.
	Blocked []graph.Blocked
	// PartialSuccess is set when interior tasks failed but every sink still
	// completed through alternate paths.
	PartialSuccess bool
	// Cycles is the number of scheduling passes the loop made.
	Cycles int
	// Duration is the total wall time of the run.
	Duration time.Duration
}

// Success reports whether the run completed with every sink producing output
// and no failed sinks.
func (r *Report) Success() bool {
	return r.State == StateDone && len(r.SinkOutputs) > 0 && !r.sinkFailed()
}

func (r *Report) sinkFailed() bool {
	sinkIDs := make(map[int]bool, len(r.SinkOutputs))
	for _, s := range r.SinkOutputs {
		sinkIDs[s.TaskID] = true
	}
	for _, task := range r.Tasks {
		if task.Status == models.TaskStatusFailed && !sinkIDs[task.ID] && isSink(task, r.Tasks) {
			return true
		}
	}
	return false
}

func isSink(task *models.Task, all []*models.Task) bool {
	for _, other := range all {
		for _, depID := range other.DependentTaskIDs {
			if depID == task.ID {
				return false
			}
		}
	}
	return true
}

// FinalOutput concatenates the sink outputs, each labeled with its source
// task, in ascending id order.
func (r *Report) FinalOutput() string {
	parts := make([]string, 0, len(r.SinkOutputs))
	for _, s := range r.SinkOutputs {
		parts = append(parts, fmt.Sprintf("Task %d:\n%s", s.TaskID, s.Output))
	}
	return strings.Join(parts, "\n\n")
}

// Summary renders a human-readable account of the run: how it ended, which
// tasks failed and why, and which were never reached.
func (r *Report) Summary() string {
	var b strings.Builder

	switch r.State {
	case StateDone:
		if len(r.FailedTaskIDs) == 0 {
			fmt.Fprintf(&b, "Run complete: %d/%d tasks succeeded in %.2fs over %d cycles.\n",
				r.completedCount(), len(r.Tasks), r.Duration.Seconds(), r.Cycles)
		} else if r.PartialSuccess {
			fmt.Fprintf(&b, "Run complete with partial success: %d task(s) failed but all final outputs were produced.\n",
				len(r.FailedTaskIDs))
		} else {
			fmt.Fprintf(&b, "Run complete with failures: %d task(s) failed.\n", len(r.FailedTaskIDs))
		}
	case StateStalled:
		fmt.Fprintf(&b, "Run stalled: no remaining task can make progress.\n")
	case StateAborted:
		fmt.Fprintf(&b, "Run aborted: %v\n", r.Err)
	default:
		fmt.Fprintf(&b, "Run ended in state %s.\n", r.State)
	}

	for _, task := range r.Tasks {
		if task.Status == models.TaskStatusFailed {
			fmt.Fprintf(&b, "  task %d failed: %s\n", task.ID, task.Output)
		}
	}
	for _, blocked := range r.Blocked {
		fmt.Fprintf(&b, "  task %d never ran: %s\n", blocked.TaskID, blocked.Reason)
	}

	return b.String()
}

func (r *Report) completedCount() int {
	n := 0
	for _, task := range r.Tasks {
		if task.Status == models.TaskStatusComplete {
			n++
		}
	}
	return n
}
