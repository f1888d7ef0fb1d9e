package models

import "time"

// Result represents the outcome of executing a single task.
type Result struct {
	// TaskID is the ID of the task this result belongs to.
	TaskID int `json:"task_id"`
	// Content is the text produced by the ability, empty on failure.
	Content string `json:"content"`
	// Success indicates whether the task completed.
	Success bool `json:"success"`
	// Err is the last error message when the task failed.
	Err string `json:"error,omitempty"`
	// Attempts is the number of ability invocations made.
	Attempts int `json:"attempts"`
	// Duration is the total wall time spent on the task including retries.
	Duration time.Duration `json:"duration"`
	// Timestamp is when the result was produced.
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResult builds a failed Result for a task.
func ErrorResult(taskID int, attempts int, errMsg string) Result {
	return Result{
		TaskID:    taskID,
		Success:   false,
		Err:       errMsg,
		Attempts:  attempts,
		Timestamp: time.Now(),
	}
}
