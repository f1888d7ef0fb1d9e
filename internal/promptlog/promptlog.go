// Package promptlog records every prompt/response exchange with an ability
// backend. Recording is observability only: failures here are logged and
// swallowed, never propagated into the run.
package promptlog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Attempt describes one ability invocation, successful or not.
type Attempt struct {
	// Timestamp is when the attempt finished.
	Timestamp time.Time `json:"timestamp"`
	// Template is the planning template name, set only for plan generation.
	Template string `json:"template_name,omitempty"`
	// Ability is the ability that was invoked.
	Ability string `json:"ability"`
	// TaskID is the task the attempt belongs to; 0 for plan generation.
	TaskID int `json:"task_id"`
	// Attempt is the 1-based attempt number within the task's retry budget.
	Attempt int `json:"attempt"`
	// Prompt is the full composed instruction sent to the ability.
	Prompt string `json:"prompt"`
	// Response is the ability's output, or "ERROR: ..." when it failed.
	Response string `json:"response"`
	// Duration is the wall time of the attempt.
	Duration time.Duration `json:"duration_ns"`
	// Metadata carries extra context such as dependency ids.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Recorder is the reporting contract the executor calls after every attempt.
// Implementations must never return an error to the caller.
type Recorder interface {
	Record(a Attempt)
}

// FileRecorder writes one JSON file per attempt into a directory.
type FileRecorder struct {
	dir     string
	enabled bool
}

// NewFileRecorder creates a recorder writing into dir. When enabled is false
// every Record call is a no-op.
func NewFileRecorder(dir string, enabled bool) *FileRecorder {
	return &FileRecorder{dir: dir, enabled: enabled}
}

// Record persists the attempt. Any failure is logged and dropped.
func (r *FileRecorder) Record(a Attempt) {
	if !r.enabled {
		return
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		log.Printf("[promptlog] create dir %s: %v", r.dir, err)
		return
	}

	name := fmt.Sprintf("%s_%s_task%d_attempt%d_prompt.json",
		a.Timestamp.Format("20060102_150405.000"), a.Ability, a.TaskID, a.Attempt)

	raw, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		log.Printf("[promptlog] marshal attempt: %v", err)
		return
	}
	if err := os.WriteFile(filepath.Join(r.dir, name), raw, 0o644); err != nil {
		log.Printf("[promptlog] write attempt log: %v", err)
	}
}

// Nop is a Recorder that discards every attempt. Used when prompt logging is
// disabled and in tests.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(Attempt) {}
