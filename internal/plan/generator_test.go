package plan

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeInvoker returns a canned response for the text-completion ability.
type fakeInvoker struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, name, instruction string) (string, error) {
	f.prompts = append(f.prompts, instruction)
	return f.response, f.err
}

func newTemplates(t *testing.T) *Templates {
	t.Helper()
	tmpl, err := LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	return tmpl
}

func TestGenerator_Generate(t *testing.T) {
	invoker := &fakeInvoker{response: `[{"id": 1, "task": "plan something"}]`}
	gen := NewGenerator(invoker, newTemplates(t), nil)

	tasks, prompt, err := gen.Generate(context.Background(), "visit Bangkok", DefaultTemplate)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Generate() returned %d tasks, want 1", len(tasks))
	}
	if !strings.Contains(prompt, "visit Bangkok") {
		t.Errorf("prompt should contain the objective, got %q", prompt)
	}
	if len(invoker.prompts) != 1 {
		t.Errorf("Generate() made %d invocations, want exactly 1", len(invoker.prompts))
	}
}

func TestGenerator_Generate_ParseFailureNotRetried(t *testing.T) {
	invoker := &fakeInvoker{response: "not json"}
	gen := NewGenerator(invoker, newTemplates(t), nil)

	_, _, err := gen.Generate(context.Background(), "objective", DefaultTemplate)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Generate() error = %v, want *ParseError", err)
	}
	if len(invoker.prompts) != 1 {
		t.Errorf("Generate() made %d invocations, parse failure must not retry", len(invoker.prompts))
	}
}

func TestTemplates_UnknownNameFallsBack(t *testing.T) {
	tmpl := newTemplates(t)

	prompt := tmpl.Prompt("no_such_template", "my objective")
	if !strings.Contains(prompt, "my objective") {
		t.Errorf("fallback prompt missing objective: %q", prompt)
	}
	if !strings.Contains(prompt, "task planning AI") {
		t.Errorf("fallback should use the default template, got %q", prompt)
	}
}

func TestTemplates_BuiltinsPresent(t *testing.T) {
	tmpl := newTemplates(t)

	for _, name := range []string{"default_tasks", "marketing_insights", "propensity_modeling"} {
		prompt := tmpl.Prompt(name, "obj")
		if prompt == "" {
			t.Errorf("template %s produced empty prompt", name)
		}
		if strings.Contains(prompt, "{objective}") {
			t.Errorf("template %s placeholder not substituted", name)
		}
	}
}

func TestFallback(t *testing.T) {
	tasks := Fallback("learn Go")
	if len(tasks) != 2 {
		t.Fatalf("Fallback() returned %d tasks, want 2", len(tasks))
	}
	if tasks[0].Ability != "web-search" {
		t.Errorf("first fallback task ability = %q, want web-search", tasks[0].Ability)
	}
	if len(tasks[1].DependentTaskIDs) != 1 || tasks[1].DependentTaskIDs[0] != 1 {
		t.Errorf("summary task should depend on research task, got %v", tasks[1].DependentTaskIDs)
	}
	if !strings.Contains(tasks[1].Description, "learn Go") {
		t.Errorf("summary task should reference the objective")
	}
}
