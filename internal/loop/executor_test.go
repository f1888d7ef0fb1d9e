package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reasonloop/internal/promptlog"
	"reasonloop/pkg/models"
)

// flakyInvoker fails a fixed number of times before succeeding.
type flakyInvoker struct {
	mu        sync.Mutex
	failures  int
	calls     int
	succeedAs string
}

func (f *flakyInvoker) Invoke(ctx context.Context, name, instruction string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("simulated failure")
	}
	return f.succeedAs, nil
}

// captureRecorder keeps every recorded attempt.
type captureRecorder struct {
	mu       sync.Mutex
	attempts []promptlog.Attempt
}

func (c *captureRecorder) Record(a promptlog.Attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, a)
}

func TestExecute_SuccessFirstAttempt(t *testing.T) {
	invoker := &flakyInvoker{failures: 0, succeedAs: "done"}
	task := &models.Task{ID: 1, Description: "x", Ability: models.DefaultAbility}

	result := NewExecutor(invoker, nil, 2, 0).Execute(context.Background(), task, "instruction")

	if !result.Success || result.Content != "done" || result.Attempts != 1 {
		t.Errorf("result = %+v, want success on attempt 1 with output %q", result, "done")
	}
	if task.Status != models.TaskStatusComplete {
		t.Errorf("task status = %s, want complete", task.Status)
	}
	if task.Output != "done" {
		t.Errorf("task output = %q, want done", task.Output)
	}
	if invoker.calls != 1 {
		t.Errorf("invoker called %d times, want 1: success must not retry", invoker.calls)
	}
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	invoker := &flakyInvoker{failures: 2, succeedAs: "recovered"}
	rec := &captureRecorder{}
	task := &models.Task{ID: 7, Description: "x", Ability: models.DefaultAbility}

	result := NewExecutor(invoker, rec, 2, 0).Execute(context.Background(), task, "instruction")

	if !result.Success || result.Attempts != 3 {
		t.Fatalf("result = %+v, want success on attempt 3", result)
	}
	if task.Status != models.TaskStatusComplete {
		t.Errorf("task status = %s, want complete", task.Status)
	}

	// Every attempt is recorded, failures included.
	if len(rec.attempts) != 3 {
		t.Fatalf("recorded %d attempts, want 3", len(rec.attempts))
	}
	for i, a := range rec.attempts[:2] {
		if a.Response != "ERROR: simulated failure" {
			t.Errorf("attempt %d response = %q, want error marker", i+1, a.Response)
		}
		if a.Attempt != i+1 || a.TaskID != 7 {
			t.Errorf("attempt %d recorded as attempt=%d task=%d", i+1, a.Attempt, a.TaskID)
		}
	}
	if rec.attempts[2].Response != "recovered" {
		t.Errorf("final attempt response = %q, want recovered", rec.attempts[2].Response)
	}
}

func TestExecute_ExhaustsRetryBudget(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantCalls  int
	}{
		{"no retries", 0, 1},
		{"two retries", 2, 3},
		{"negative clamps to zero", -5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := &flakyInvoker{failures: 100}
			task := &models.Task{ID: 1, Description: "x", Ability: models.DefaultAbility}

			result := NewExecutor(invoker, nil, tt.maxRetries, 0).Execute(context.Background(), task, "i")

			if invoker.calls != tt.wantCalls {
				t.Errorf("invoker called %d times, want %d", invoker.calls, tt.wantCalls)
			}
			if result.Success {
				t.Error("result.Success = true, want false")
			}
			if result.Attempts != tt.wantCalls {
				t.Errorf("result.Attempts = %d, want %d", result.Attempts, tt.wantCalls)
			}
			if task.Status != models.TaskStatusFailed {
				t.Errorf("task status = %s, want failed", task.Status)
			}
			if task.CompletedAt == nil {
				t.Error("failed task missing completion timestamp")
			}
		})
	}
}

func TestExecute_FailureDiagnosticKeepsLastError(t *testing.T) {
	invoker := &flakyInvoker{failures: 100}
	task := &models.Task{ID: 1, Description: "x", Ability: models.DefaultAbility}

	result := NewExecutor(invoker, nil, 1, 0).Execute(context.Background(), task, "i")

	want := "failed after 2 attempts, last error: simulated failure"
	if result.Err != want {
		t.Errorf("result.Err = %q, want %q", result.Err, want)
	}
	if task.Output != want {
		t.Errorf("task output = %q, want diagnostic", task.Output)
	}
}

func TestExecute_CancellationDuringRetryDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	invoker := &flakyInvoker{failures: 100}
	task := &models.Task{ID: 1, Description: "x", Ability: models.DefaultAbility}

	result := NewExecutor(invoker, nil, 3, time.Hour).Execute(ctx, task, "i")

	// The first attempt runs, then the canceled context cuts the retry wait.
	if invoker.calls != 1 {
		t.Errorf("invoker called %d times, want 1", invoker.calls)
	}
	if result.Success {
		t.Error("result.Success = true, want false")
	}
	if task.Status != models.TaskStatusFailed {
		t.Errorf("task status = %s, want failed: no task may be left mid-flight", task.Status)
	}
}
