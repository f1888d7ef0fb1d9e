package loop

import (
	"context"
	"fmt"
	"log"
	"time"

	"reasonloop/internal/abilities"
	"reasonloop/internal/promptlog"
	"reasonloop/pkg/models"
)

// Executor drives a single task through ability dispatch with bounded retry.
// Once the executor claims a task it has exclusive ownership of it until the
// task reaches a terminal state.
type Executor struct {
	invoker    abilities.Invoker
	recorder   promptlog.Recorder
	maxRetries int
	retryDelay time.Duration
}

// NewExecutor creates an Executor. maxRetries is the number of additional
// attempts after the first; retryDelay is the fixed wait between attempts.
func NewExecutor(invoker abilities.Invoker, recorder promptlog.Recorder, maxRetries int, retryDelay time.Duration) *Executor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if recorder == nil {
		recorder = promptlog.Nop{}
	}
	return &Executor{
		invoker:    invoker,
		recorder:   recorder,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Execute claims the task, invokes its ability with the composed instruction,
// and retries with a fixed delay until success or the retry budget is
// exhausted. Every attempt, pass or fail, is reported to the prompt log.
// The task always leaves in a terminal state: complete on success, failed on
// exhaustion or cancellation mid-retry.
func (e *Executor) Execute(ctx context.Context, task *models.Task, instruction string) models.Result {
	task.Status = models.TaskStatusRunning
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries+1; attempt++ {
		attemptStart := time.Now()
		output, err := e.invoker.Invoke(ctx, task.Ability, instruction)
		e.recordAttempt(task, instruction, output, err, attempt, time.Since(attemptStart))

		if err == nil {
			task.MarkComplete(output)
			log.Printf("[loop] task #%d completed in %.2fs (attempt %d)", task.ID, time.Since(start).Seconds(), attempt)
			return models.Result{
				TaskID:    task.ID,
				Content:   output,
				Success:   true,
				Attempts:  attempt,
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}
		}

		lastErr = err
		if attempt <= e.maxRetries {
			log.Printf("[loop] task #%d failed, retrying (%d/%d): %v", task.ID, attempt, e.maxRetries, err)
			if waitErr := e.wait(ctx); waitErr != nil {
				diagnostic := fmt.Sprintf("canceled after %d attempts, last error: %v", attempt, lastErr)
				task.MarkFailed(diagnostic)
				res := models.ErrorResult(task.ID, attempt, diagnostic)
				res.Duration = time.Since(start)
				return res
			}
		}
	}

	attempts := e.maxRetries + 1
	diagnostic := fmt.Sprintf("failed after %d attempts, last error: %v", attempts, lastErr)
	log.Printf("[loop] task #%d %s", task.ID, diagnostic)
	task.MarkFailed(diagnostic)

	res := models.ErrorResult(task.ID, attempts, diagnostic)
	res.Duration = time.Since(start)
	return res
}

// wait sleeps for the fixed retry delay, returning early with the context's
// error on cancellation.
func (e *Executor) wait(ctx context.Context) error {
	if e.retryDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.retryDelay):
		return nil
	}
}

func (e *Executor) recordAttempt(task *models.Task, instruction, output string, err error, attempt int, elapsed time.Duration) {
	response := output
	if err != nil {
		response = "ERROR: " + err.Error()
	}
	e.recorder.Record(promptlog.Attempt{
		Timestamp: time.Now(),
		Ability:   task.Ability,
		TaskID:    task.ID,
		Attempt:   attempt,
		Prompt:    instruction,
		Response:  response,
		Duration:  elapsed,
		Metadata: map[string]any{
			"dependent_task_ids": task.DependentTaskIDs,
		},
	})
}
