// Package graph provides the dependency graph used to schedule plan tasks.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"reasonloop/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the plan.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrDanglingDependency indicates a task references an ID not in the plan.
var ErrDanglingDependency = errors.New("dependency references unknown task")

// ErrDuplicateID indicates two plan tasks share the same ID.
var ErrDuplicateID = errors.New("duplicate task id")

// Graph is a directed acyclic graph of task dependencies.
// Nodes are tasks, edges point from a task to the tasks it is blocked by.
type Graph struct {
	mu sync.RWMutex
	// tasks maps task ID to the task itself.
	tasks map[int]*models.Task
	// order preserves plan order of task IDs.
	order []int
	// edges maps task ID to IDs of tasks it depends on.
	edges map[int][]int
}

// New creates a new empty dependency graph.
func New() *Graph {
	return &Graph{
		tasks: make(map[int]*models.Task),
		edges: make(map[int][]int),
	}
}

// Build constructs the graph from a plan's tasks. It fails on duplicate IDs,
// dependencies that reference unknown tasks, and cycles. A failed Build
// leaves the graph unusable; the run must abort before any ability is invoked.
func (g *Graph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		if _, exists := g.tasks[task.ID]; exists {
			return fmt.Errorf("task %d: %w", task.ID, ErrDuplicateID)
		}
		g.tasks[task.ID] = task
		g.order = append(g.order, task.ID)
		g.edges[task.ID] = nil
	}

	for _, task := range tasks {
		for _, depID := range task.DependentTaskIDs {
			if _, exists := g.tasks[depID]; !exists {
				return fmt.Errorf("task %d depends on task %d: %w", task.ID, depID, ErrDanglingDependency)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	return nil
}

// hasCycleLocked runs a depth-first search with coloring to detect back edges.
// Caller must hold g.mu.
func (g *Graph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[int]int, len(g.tasks))

	var visit func(id int) bool
	visit = func(id int) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}

	return false
}

// Ready returns tasks whose status is incomplete and whose every dependency
// has status complete, in ascending ID order.
func (g *Graph) Ready() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for _, id := range g.order {
		task := g.tasks[id]
		if task.Status != models.TaskStatusIncomplete {
			continue
		}

		satisfied := true
		for _, depID := range g.edges[id] {
			if g.tasks[depID].Status != models.TaskStatusComplete {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, task)
		}
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// Stalled reports whether forward progress is impossible: no task is running,
// at least one task is incomplete, and none are ready.
func (g *Graph) Stalled() bool {
	g.mu.RLock()
	anyRunning := false
	anyIncomplete := false
	for _, task := range g.tasks {
		switch task.Status {
		case models.TaskStatusRunning:
			anyRunning = true
		case models.TaskStatusIncomplete:
			anyIncomplete = true
		}
	}
	g.mu.RUnlock()

	if anyRunning || !anyIncomplete {
		return false
	}
	return len(g.Ready()) == 0
}

// Blocked describes a task that can never become ready.
type Blocked struct {
	// TaskID is the blocked task.
	TaskID int
	// Reason names the dependency preventing progress.
	Reason string
}

// BlockedTasks returns the incomplete tasks that can never run, with the
// dependency that blocks each, in ascending ID order. Used for stall
// diagnostics in the final report.
func (g *Graph) BlockedTasks() []Blocked {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var blocked []Blocked
	for _, id := range g.order {
		task := g.tasks[id]
		if task.Status != models.TaskStatusIncomplete {
			continue
		}
		for _, depID := range g.edges[id] {
			dep := g.tasks[depID]
			if dep.Status == models.TaskStatusFailed {
				blocked = append(blocked, Blocked{
					TaskID: id,
					Reason: fmt.Sprintf("dependency task %d failed", depID),
				})
				break
			}
			if dep.Status != models.TaskStatusComplete {
				blocked = append(blocked, Blocked{
					TaskID: id,
					Reason: fmt.Sprintf("dependency task %d never completed", depID),
				})
				break
			}
		}
	}

	sort.Slice(blocked, func(i, j int) bool { return blocked[i].TaskID < blocked[j].TaskID })
	return blocked
}

// Sinks returns tasks no other task depends on, in ascending ID order.
// Their outputs form the run's final report.
func (g *Graph) Sinks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	hasDependent := make(map[int]bool)
	for _, deps := range g.edges {
		for _, depID := range deps {
			hasDependent[depID] = true
		}
	}

	var sinks []*models.Task
	for _, id := range g.order {
		if !hasDependent[id] {
			sinks = append(sinks, g.tasks[id])
		}
	}

	sort.Slice(sinks, func(i, j int) bool { return sinks[i].ID < sinks[j].ID })
	return sinks
}

// AllTerminal reports whether every task is complete or failed.
func (g *Graph) AllTerminal() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, task := range g.tasks {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}

// Task returns the task for a given ID, or nil if not found.
func (g *Graph) Task(id int) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tasks[id]
}

// Tasks returns all tasks in plan order.
func (g *Graph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, g.tasks[id])
	}
	return tasks
}

// Dependencies returns the IDs of tasks the given task depends on.
func (g *Graph) Dependencies(id int) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}
