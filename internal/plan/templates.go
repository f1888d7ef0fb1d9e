// Package plan turns a natural-language objective into an executable task plan.
package plan

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var embeddedTemplates []byte

// DefaultTemplate is the planning template used when none is named or the
// named one is unknown.
const DefaultTemplate = "default_tasks"

// Templates holds named planning prompt templates. Each template contains an
// {objective} placeholder substituted at prompt-build time.
type Templates struct {
	prompts map[string]string
}

// LoadTemplates parses the built-in template set.
func LoadTemplates() (*Templates, error) {
	prompts := make(map[string]string)
	if err := yaml.Unmarshal(embeddedTemplates, &prompts); err != nil {
		return nil, fmt.Errorf("parse built-in templates: %w", err)
	}
	return &Templates{prompts: prompts}, nil
}

// LoadDir merges user-defined templates from *.yaml files in dir over the
// built-in set. A missing directory is not an error.
func (t *Templates) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read template dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read template file %s: %w", entry.Name(), err)
		}
		extra := make(map[string]string)
		if err := yaml.Unmarshal(raw, &extra); err != nil {
			return fmt.Errorf("parse template file %s: %w", entry.Name(), err)
		}
		for name, prompt := range extra {
			t.prompts[name] = prompt
		}
	}
	return nil
}

// Names returns the available template names, sorted.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.prompts))
	for name := range t.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prompt builds the planning prompt for a template and objective. An unknown
// template name falls back to the default with a warning, matching the
// behavior callers rely on for ad-hoc template flags.
func (t *Templates) Prompt(name, objective string) string {
	tmpl, ok := t.prompts[name]
	if !ok {
		log.Printf("[plan] template %q not found, using %s", name, DefaultTemplate)
		tmpl = t.prompts[DefaultTemplate]
	}
	return strings.ReplaceAll(tmpl, "{objective}", objective)
}
