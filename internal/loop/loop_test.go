package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"reasonloop/internal/graph"
	"reasonloop/internal/plan"
	"reasonloop/internal/promptlog"
	"reasonloop/pkg/models"
)

// scriptedInvoker routes the first invocation (plan generation) to a canned
// plan response and everything after to a per-call script.
type scriptedInvoker struct {
	mu       sync.Mutex
	planJSON string
	script   func(call int, name, instruction string) (string, error)
	calls    []invocation
}

type invocation struct {
	name        string
	instruction string
}

func (s *scriptedInvoker) Invoke(ctx context.Context, name, instruction string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, invocation{name: name, instruction: instruction})
	call := len(s.calls)
	s.mu.Unlock()

	if call == 1 {
		return s.planJSON, nil
	}
	if s.script == nil {
		return "ok", nil
	}
	return s.script(call-1, name, instruction)
}

func (s *scriptedInvoker) taskCalls() []invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) <= 1 {
		return nil
	}
	return append([]invocation(nil), s.calls[1:]...)
}

// countingRecorder counts recorded attempts per task.
type countingRecorder struct {
	mu       sync.Mutex
	attempts map[int]int
}

func (c *countingRecorder) Record(a promptlog.Attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts == nil {
		c.attempts = make(map[int]int)
	}
	c.attempts[a.TaskID]++
}

func newController(t *testing.T, invoker *scriptedInvoker, maxRetries int, rec promptlog.Recorder) *Controller {
	t.Helper()
	templates, err := plan.LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	gen := plan.NewGenerator(invoker, templates, nil)
	exec := NewExecutor(invoker, rec, maxRetries, 0)
	return NewController(gen, exec, Options{
		Objective:  "test objective",
		Template:   plan.DefaultTemplate,
		MaxRetries: maxRetries,
	})
}

func TestRun_LinearChain(t *testing.T) {
	invoker := &scriptedInvoker{
		planJSON: `[
			{"id": 1, "task": "gather facts", "dependent_task_ids": []},
			{"id": 2, "task": "analyze facts", "dependent_task_ids": [1]},
			{"id": 3, "task": "write report", "dependent_task_ids": [1, 2]}
		]`,
		script: func(call int, name, instruction string) (string, error) {
			return fmt.Sprintf("output-%d", call), nil
		},
	}

	report := newController(t, invoker, 0, nil).Run(context.Background())

	if report.State != StateDone {
		t.Fatalf("State = %s, want done (err: %v)", report.State, report.Err)
	}
	if !report.Success() {
		t.Error("Success() = false, want true")
	}

	// Execution order 1, 2, 3.
	calls := invoker.taskCalls()
	if len(calls) != 3 {
		t.Fatalf("made %d task invocations, want 3", len(calls))
	}
	for i, want := range []string{"gather facts", "analyze facts", "write report"} {
		if !strings.Contains(calls[i].instruction, want) {
			t.Errorf("call %d instruction = %q, want task %q", i+1, calls[i].instruction, want)
		}
	}

	// Final report is the sole sink, task 3.
	if len(report.SinkOutputs) != 1 || report.SinkOutputs[0].TaskID != 3 {
		t.Fatalf("SinkOutputs = %+v, want only task 3", report.SinkOutputs)
	}
	if report.SinkOutputs[0].Output != "output-3" {
		t.Errorf("final output = %q, want output-3", report.SinkOutputs[0].Output)
	}
}

func TestRun_FailedDependencyStalls(t *testing.T) {
	const maxRetries = 2
	invoker := &scriptedInvoker{
		planJSON: `[
			{"id": 1, "task": "doomed", "dependent_task_ids": []},
			{"id": 2, "task": "never runs", "dependent_task_ids": [1]}
		]`,
		script: func(call int, name, instruction string) (string, error) {
			return "", errors.New("backend down")
		},
	}
	rec := &countingRecorder{}

	report := newController(t, invoker, maxRetries, rec).Run(context.Background())

	if report.State != StateStalled {
		t.Fatalf("State = %s, want stalled", report.State)
	}

	task1, task2 := report.Tasks[0], report.Tasks[1]
	if task1.Status != models.TaskStatusFailed {
		t.Errorf("task 1 status = %s, want failed", task1.Status)
	}
	if task2.Status != models.TaskStatusIncomplete {
		t.Errorf("task 2 status = %s, want incomplete forever", task2.Status)
	}

	// Retry bound: MAX_RETRIES+1 attempts, all recorded.
	if got := rec.attempts[1]; got != maxRetries+1 {
		t.Errorf("task 1 attempts = %d, want %d", got, maxRetries+1)
	}
	if rec.attempts[2] != 0 {
		t.Errorf("task 2 made %d attempts, want 0", rec.attempts[2])
	}

	// Stall diagnostic names task 2 blocked by failed task 1.
	if len(report.Blocked) != 1 || report.Blocked[0].TaskID != 2 {
		t.Fatalf("Blocked = %+v, want task 2", report.Blocked)
	}
	if !strings.Contains(report.Blocked[0].Reason, "task 1 failed") {
		t.Errorf("blocked reason = %q, want mention of failed task 1", report.Blocked[0].Reason)
	}
	if !strings.Contains(report.Summary(), "task 2 never ran") {
		t.Errorf("Summary() should name never-reached tasks:\n%s", report.Summary())
	}
}

func TestRun_CycleAbortsBeforeExecution(t *testing.T) {
	invoker := &scriptedInvoker{
		planJSON: `[
			{"id": 1, "task": "a", "dependent_task_ids": [2]},
			{"id": 2, "task": "b", "dependent_task_ids": [1]}
		]`,
	}

	report := newController(t, invoker, 0, nil).Run(context.Background())

	if report.State != StateAborted {
		t.Fatalf("State = %s, want aborted", report.State)
	}
	if !errors.Is(report.Err, graph.ErrCycleDetected) {
		t.Errorf("Err = %v, want cycle detection", report.Err)
	}
	if got := invoker.taskCalls(); len(got) != 0 {
		t.Errorf("made %d task invocations, want 0 after cycle detection", len(got))
	}
}

func TestRun_DanglingDependencyAborts(t *testing.T) {
	invoker := &scriptedInvoker{
		planJSON: `[{"id": 1, "task": "a", "dependent_task_ids": [42]}]`,
	}

	report := newController(t, invoker, 0, nil).Run(context.Background())

	if report.State != StateAborted {
		t.Fatalf("State = %s, want aborted", report.State)
	}
	if !errors.Is(report.Err, graph.ErrDanglingDependency) {
		t.Errorf("Err = %v, want dangling dependency", report.Err)
	}
}

func TestRun_UnparseablePlanAborts(t *testing.T) {
	invoker := &scriptedInvoker{planJSON: "not json"}

	report := newController(t, invoker, 0, nil).Run(context.Background())

	if report.State != StateAborted {
		t.Fatalf("State = %s, want aborted", report.State)
	}
	var parseErr *plan.ParseError
	if !errors.As(report.Err, &parseErr) {
		t.Fatalf("Err = %v, want *plan.ParseError", report.Err)
	}
	if len(report.Tasks) != 0 {
		t.Errorf("created %d tasks from unparseable plan, want 0", len(report.Tasks))
	}
	if got := invoker.taskCalls(); len(got) != 0 {
		t.Errorf("made %d task invocations, want 0", len(got))
	}
}

func TestRun_SuccessOnSecondAttempt(t *testing.T) {
	var task1Attempts int
	invoker := &scriptedInvoker{
		planJSON: `[
			{"id": 1, "task": "flaky step", "dependent_task_ids": []},
			{"id": 2, "task": "summary", "dependent_task_ids": [1]}
		]`,
		script: func(call int, name, instruction string) (string, error) {
			if strings.Contains(instruction, "flaky step") {
				task1Attempts++
				if task1Attempts == 1 {
					return "", errors.New("transient")
				}
				return "recovered output", nil
			}
			return "summary output", nil
		},
	}

	report := newController(t, invoker, 2, nil).Run(context.Background())

	if report.State != StateDone {
		t.Fatalf("State = %s, want done", report.State)
	}
	if task1Attempts != 2 {
		t.Errorf("task 1 made %d attempts, want exactly 2", task1Attempts)
	}

	// Task 2's context carries only the successful attempt's output.
	calls := invoker.taskCalls()
	last := calls[len(calls)-1].instruction
	if !strings.Contains(last, "Output from task #1:\nrecovered output") {
		t.Errorf("task 2 instruction missing dependency output:\n%s", last)
	}
	if strings.Contains(last, "transient") {
		t.Errorf("task 2 instruction should not contain failed-attempt residue")
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func() ([]invocation, []models.Result) {
		invoker := &scriptedInvoker{
			planJSON: `[
				{"id": 2, "task": "beta", "dependent_task_ids": []},
				{"id": 1, "task": "alpha", "dependent_task_ids": []},
				{"id": 3, "task": "merge", "dependent_task_ids": [1, 2]}
			]`,
			script: func(call int, name, instruction string) (string, error) {
				return "fixed", nil
			},
		}
		report := newController(t, invoker, 0, nil).Run(context.Background())
		if report.State != StateDone {
			t.Fatalf("State = %s, want done", report.State)
		}
		return invoker.taskCalls(), report.Results
	}

	callsA, resultsA := run()
	callsB, resultsB := run()

	if len(callsA) != len(callsB) {
		t.Fatalf("runs made different invocation counts: %d vs %d", len(callsA), len(callsB))
	}
	for i := range callsA {
		if callsA[i].instruction != callsB[i].instruction {
			t.Errorf("invocation %d differs between runs", i)
		}
	}
	for i := range resultsA {
		if resultsA[i].TaskID != resultsB[i].TaskID || resultsA[i].Success != resultsB[i].Success {
			t.Errorf("result %d differs between runs", i)
		}
	}

	// Ready tasks execute in ascending id order regardless of plan order.
	if !strings.Contains(callsA[0].instruction, "alpha") || !strings.Contains(callsA[1].instruction, "beta") {
		t.Errorf("ready tasks not executed in ascending id order")
	}
}

func TestRun_TerminalCoverageAtDone(t *testing.T) {
	invoker := &scriptedInvoker{
		planJSON: `[
			{"id": 1, "task": "a"}, {"id": 2, "task": "b"}, {"id": 3, "task": "c"}
		]`,
	}

	report := newController(t, invoker, 0, nil).Run(context.Background())

	if report.State != StateDone {
		t.Fatalf("State = %s, want done", report.State)
	}
	for _, task := range report.Tasks {
		if !task.Status.Terminal() {
			t.Errorf("task %d ended non-terminal: %s", task.ID, task.Status)
		}
	}
}

func TestRun_CancellationStopsBeforeNextTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	invoker := &scriptedInvoker{
		planJSON: `[
			{"id": 1, "task": "first"},
			{"id": 2, "task": "second", "dependent_task_ids": [1]}
		]`,
		script: func(call int, name, instruction string) (string, error) {
			cancel() // interrupt arrives while task 1 runs
			return "done anyway", nil
		},
	}

	report := newController(t, invoker, 0, nil).Run(ctx)

	if report.State != StateAborted {
		t.Fatalf("State = %s, want aborted", report.State)
	}
	// Task 1 finished cleanly; task 2 was never started.
	if report.Tasks[0].Status != models.TaskStatusComplete {
		t.Errorf("task 1 status = %s, want complete", report.Tasks[0].Status)
	}
	if report.Tasks[1].Status != models.TaskStatusIncomplete {
		t.Errorf("task 2 status = %s, want incomplete", report.Tasks[1].Status)
	}
	if got := invoker.taskCalls(); len(got) != 1 {
		t.Errorf("made %d task invocations after cancel, want 1", len(got))
	}
}

func TestRun_UnknownAbilityFailsTask(t *testing.T) {
	invoker := &scriptedInvoker{
		planJSON: `[{"id": 1, "task": "use a ghost", "ability": "no-such-ability"}]`,
		script: func(call int, name, instruction string) (string, error) {
			return "", fmt.Errorf("ability not found: %s", name)
		},
	}

	report := newController(t, invoker, 1, nil).Run(context.Background())

	if report.State != StateDone {
		t.Fatalf("State = %s, want done (single failed task is terminal)", report.State)
	}
	if report.Tasks[0].Status != models.TaskStatusFailed {
		t.Errorf("task status = %s, want failed", report.Tasks[0].Status)
	}
	if report.Success() {
		t.Error("Success() = true with a failed sink, want false")
	}
	if !strings.Contains(report.Summary(), "task 1 failed") {
		t.Errorf("Summary() should name the failed task:\n%s", report.Summary())
	}
}

func TestRun_FallbackPlanOnParseFailure(t *testing.T) {
	invoker := &scriptedInvoker{
		planJSON: "definitely not a plan",
		script: func(call int, name, instruction string) (string, error) {
			return "result", nil
		},
	}
	templates, err := plan.LoadTemplates()
	if err != nil {
		t.Fatal(err)
	}
	gen := plan.NewGenerator(invoker, templates, nil)
	exec := NewExecutor(invoker, nil, 0, 0)
	ctrl := NewController(gen, exec, Options{
		Objective:       "objective",
		UseFallbackPlan: true,
	})

	report := ctrl.Run(context.Background())

	if report.State != StateDone {
		t.Fatalf("State = %s, want done via fallback plan (err: %v)", report.State, report.Err)
	}
	if len(report.Tasks) != 2 {
		t.Errorf("fallback plan has %d tasks, want 2", len(report.Tasks))
	}
}
