package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusIncomplete indicates the task has not started.
	TaskStatusIncomplete TaskStatus = "incomplete"
	// TaskStatusRunning indicates the task is being executed.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusComplete indicates the task finished successfully.
	TaskStatusComplete TaskStatus = "complete"
	// TaskStatusFailed indicates the task exhausted its retries and failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusIncomplete, TaskStatusRunning, TaskStatusComplete, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusComplete || s == TaskStatusFailed
}

// DefaultAbility is the ability assigned to tasks that do not name one.
const DefaultAbility = "text-completion"

// Task represents a unit of work in a plan.
type Task struct {
	// ID is the unique identifier for this task within a run.
	ID int `json:"id"`
	// Description is the free-text instruction handed to the ability.
	Description string `json:"description"`
	// Ability is the name of the ability that executes this task.
	Ability string `json:"ability"`
	// DependentTaskIDs lists task IDs that must complete before this task.
	DependentTaskIDs []int `json:"dependent_task_ids,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Output is the text result once the task completes.
	Output string `json:"output,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Metadata holds extra plan fields the loop passes through unmodified.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MarkComplete transitions the task to complete and records its output.
// Output is set exactly once, here.
func (t *Task) MarkComplete(output string) {
	now := time.Now()
	t.Status = TaskStatusComplete
	t.Output = output
	t.CompletedAt = &now
}

// MarkFailed transitions the task to failed with a diagnostic message.
func (t *Task) MarkFailed(diagnostic string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.Output = diagnostic
	t.CompletedAt = &now
}

// SetMetadata stores a metadata value, allocating the map on first use.
func (t *Task) SetMetadata(key string, value any) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	t.Metadata[key] = value
}
