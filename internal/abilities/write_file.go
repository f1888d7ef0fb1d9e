package abilities

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WriteFileConfig holds the settings for the write-file backend.
type WriteFileConfig struct {
	// Dir is the directory generated files are written to.
	Dir string
}

// frontmatter is the subset of a document's YAML header used to derive
// a filename.
type frontmatter struct {
	Name string `yaml:"name"`
}

// WriteFile returns an ability that saves its input as a markdown file.
// The filename comes from the document's YAML frontmatter `name` field when
// present, falling back to a timestamped name.
func WriteFile(cfg WriteFileConfig) Func {
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join("templates", "created")
	}

	return func(ctx context.Context, content string) (string, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", dir, err)
		}

		name := FrontmatterName(content)
		if name == "" {
			name = "agent_definition_" + time.Now().Format("20060102_150405")
		}
		if !strings.HasSuffix(name, ".md") {
			name += ".md"
		}

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}

		log.Printf("[ability] write-file wrote %s", path)
		return fmt.Sprintf("Successfully wrote agent definition to %s", path), nil
	}
}

// FrontmatterName extracts the `name` field from a document's YAML
// frontmatter block, returning "" when absent or unparseable.
func FrontmatterName(content string) string {
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return ""
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return ""
	}
	return strings.TrimSpace(fm.Name)
}
