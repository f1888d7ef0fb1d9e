package plan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"reasonloop/pkg/models"
)

// ParseError indicates the plan response could not be interpreted as a JSON
// array of task descriptors. It carries the raw response so the caller can
// log it or hand it to a fallback.
type ParseError struct {
	// Raw is the unmodified model response.
	Raw string
	// Err is the underlying parse failure.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("plan response is not a task array: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// descriptionKeys is the priority order for extracting a task's instruction
// from a descriptor. Templates name the field differently (default plans use
// "task", insight plans use "insight"); the first present non-empty key wins.
var descriptionKeys = []string{"task", "insight", "action_item", "description"}

// ParseTasks extracts a task list from raw LLM text. Models rarely return
// clean JSON, so after a strict parse fails the array is located in the text
// and repaired before giving up. Descriptor order is preserved and ids are
// taken as-is; duplicate ids surface later when the graph is built.
func ParseTasks(response string) ([]*models.Task, error) {
	descriptors, err := extractArray(response)
	if err != nil {
		return nil, &ParseError{Raw: response, Err: err}
	}

	tasks := make([]*models.Task, 0, len(descriptors))
	for i, desc := range descriptors {
		task, err := taskFromDescriptor(desc)
		if err != nil {
			return nil, &ParseError{Raw: response, Err: fmt.Errorf("descriptor %d: %w", i, err)}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// extractArray parses the response as a JSON array of objects, strict first,
// then repaired, then repaired on the bracketed slice of the text.
func extractArray(response string) ([]map[string]any, error) {
	text := strings.TrimSpace(response)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	if arr, err := unmarshalArray(text); err == nil {
		return arr, nil
	}

	// Some models wrap the array in prose or markdown fences. Repair the
	// whole text, then fall back to the outermost bracketed span.
	if fixed, err := jsonrepair.JSONRepair(text); err == nil {
		if arr, err := unmarshalArray(fixed); err == nil {
			return arr, nil
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		slice := text[start : end+1]
		if arr, err := unmarshalArray(slice); err == nil {
			return arr, nil
		}
		if fixed, err := jsonrepair.JSONRepair(slice); err == nil {
			if arr, err := unmarshalArray(fixed); err == nil {
				return arr, nil
			}
		}
	}

	return nil, fmt.Errorf("no JSON array found")
}

func unmarshalArray(text string) ([]map[string]any, error) {
	var probe any
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil, err
	}
	raw, ok := probe.([]any)
	if !ok {
		return nil, fmt.Errorf("JSON value is %T, not an array", probe)
	}

	descriptors := make([]map[string]any, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("array element %d is %T, not an object", i, item)
		}
		descriptors = append(descriptors, obj)
	}
	return descriptors, nil
}

// taskFromDescriptor maps one plan descriptor into a Task. The id is
// required; status from the plan is ignored and reset to incomplete; unknown
// descriptor keys are folded into metadata untouched.
func taskFromDescriptor(desc map[string]any) (*models.Task, error) {
	idVal, ok := desc["id"]
	if !ok {
		return nil, fmt.Errorf("missing required field %q", "id")
	}
	id, err := toInt(idVal)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", "id", err)
	}

	task := &models.Task{
		ID:        id,
		Ability:   models.DefaultAbility,
		Status:    models.TaskStatusIncomplete,
		CreatedAt: time.Now(),
	}

	consumed := map[string]bool{"id": true, "status": true}

	if ability, ok := desc["ability"].(string); ok && ability != "" {
		task.Ability = ability
	}
	consumed["ability"] = true

	for _, key := range descriptionKeys {
		if text, ok := desc[key].(string); ok && text != "" {
			task.Description = text
			consumed[key] = true
			break
		}
	}

	// Insight-style templates emit dependent_insight_ids instead.
	for _, key := range []string{"dependent_task_ids", "dependent_insight_ids"} {
		if raw, ok := desc[key]; ok {
			consumed[key] = true
			deps, err := toIntSlice(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			if task.DependentTaskIDs == nil {
				task.DependentTaskIDs = deps
			}
		}
	}

	if meta, ok := desc["metadata"].(map[string]any); ok {
		for k, v := range meta {
			task.SetMetadata(k, v)
		}
	}
	consumed["metadata"] = true

	for key, value := range desc {
		if !consumed[key] {
			task.SetMetadata(key, value)
		}
	}

	return task, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case int:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("%v (%T) is not an integer", v, v)
	}
}

func toIntSlice(v any) ([]int, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%v (%T) is not an array", v, v)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		n, err := toInt(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
