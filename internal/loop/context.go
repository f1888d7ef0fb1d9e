package loop

import (
	"fmt"
	"sort"
	"strings"

	"reasonloop/internal/graph"
	"reasonloop/pkg/models"
)

// defaultContextLimit caps the composed instruction size handed to an
// ability. Backends enforce their own hard limits; this is best effort.
const defaultContextLimit = 12000

// ContextBuilder composes the instruction for a task from its own
// description, the run objective, and the outputs of its completed
// dependencies.
type ContextBuilder struct {
	objective string
	maxChars  int
}

// NewContextBuilder creates a builder for the given objective. maxChars <= 0
// selects the default limit.
func NewContextBuilder(objective string, maxChars int) *ContextBuilder {
	if maxChars <= 0 {
		maxChars = defaultContextLimit
	}
	return &ContextBuilder{objective: objective, maxChars: maxChars}
}

// Build returns the composed instruction for a ready task. Dependency
// outputs appear in ascending dependency-id order, each labeled with its
// source task. When the combined context would exceed the limit, outputs are
// dropped oldest-first and the task is flagged with context_truncated
// metadata; the task's own description is never dropped.
func (b *ContextBuilder) Build(task *models.Task, g *graph.Graph) string {
	header := fmt.Sprintf("Complete this task: %s\nObjective: %s", task.Description, b.objective)

	deps := append([]int(nil), task.DependentTaskIDs...)
	sort.Ints(deps)

	sections := make([]string, 0, len(deps))
	for _, depID := range deps {
		dep := g.Task(depID)
		if dep == nil || dep.Output == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("Output from task #%d:\n%s", depID, dep.Output))
	}

	if len(sections) == 0 {
		return header
	}

	budget := b.maxChars - len(header)
	truncated := false
	for len(sections) > 0 && totalLen(sections) > budget {
		// Oldest dependency goes first.
		sections = sections[1:]
		truncated = true
	}
	if truncated {
		task.SetMetadata("context_truncated", true)
	}

	if len(sections) == 0 {
		return header
	}
	return header + "\n\nUse this information from previous tasks:\n\n" + strings.Join(sections, "\n\n")
}

func totalLen(sections []string) int {
	n := 0
	for _, s := range sections {
		n += len(s) + 2
	}
	return n
}
