package plan

import (
	"context"
	"fmt"
	"log"
	"time"

	"reasonloop/internal/abilities"
	"reasonloop/internal/promptlog"
	"reasonloop/pkg/models"
)

// Generator produces the initial task plan for an objective by asking the
// text-completion ability for a JSON task array.
type Generator struct {
	invoker   abilities.Invoker
	templates *Templates
	recorder  promptlog.Recorder
}

// NewGenerator creates a Generator backed by the given ability invoker.
// The planning exchange is reported to recorder; nil disables recording.
func NewGenerator(invoker abilities.Invoker, templates *Templates, recorder promptlog.Recorder) *Generator {
	if recorder == nil {
		recorder = promptlog.Nop{}
	}
	return &Generator{invoker: invoker, templates: templates, recorder: recorder}
}

// Generate builds the planning prompt, invokes text-completion, and parses
// the response into tasks. Plan generation is not retried here; a parse
// failure is returned as a *ParseError for the caller to surface or recover.
func (g *Generator) Generate(ctx context.Context, objective, templateName string) ([]*models.Task, string, error) {
	prompt := g.templates.Prompt(templateName, objective)

	log.Printf("[plan] generating plan with template %s", templateName)
	start := time.Now()
	response, err := g.invoker.Invoke(ctx, models.DefaultAbility, prompt)
	g.recordPlanAttempt(templateName, prompt, response, err, time.Since(start))
	if err != nil {
		return nil, prompt, fmt.Errorf("plan generation: %w", err)
	}

	tasks, err := ParseTasks(response)
	if err != nil {
		return nil, prompt, err
	}

	log.Printf("[plan] created %d initial tasks", len(tasks))
	return tasks, prompt, nil
}

// recordPlanAttempt reports the planning exchange to the prompt log. Task id
// 0 marks plan generation.
func (g *Generator) recordPlanAttempt(templateName, prompt, response string, err error, elapsed time.Duration) {
	if err != nil {
		response = "ERROR: " + err.Error()
	}
	g.recorder.Record(promptlog.Attempt{
		Timestamp: time.Now(),
		Template:  templateName,
		Ability:   models.DefaultAbility,
		TaskID:    0,
		Attempt:   1,
		Prompt:    prompt,
		Response:  response,
		Duration:  elapsed,
	})
}

// Fallback returns the minimal two-task plan used when the model's plan
// cannot be parsed and the caller opted into degraded operation: research
// the objective, then summarize.
func Fallback(objective string) []*models.Task {
	research := &models.Task{
		ID:          1,
		Description: "Research information related to: " + objective,
		Ability:     "web-search",
		Status:      models.TaskStatusIncomplete,
		CreatedAt:   time.Now(),
	}
	summary := &models.Task{
		ID:               2,
		Description:      "Create a final summary report for the objective: " + objective,
		Ability:          models.DefaultAbility,
		DependentTaskIDs: []int{1},
		Status:           models.TaskStatusIncomplete,
		CreatedAt:        time.Now(),
	}
	return []*models.Task{research, summary}
}
