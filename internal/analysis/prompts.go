package analysis

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptsFileName is the override file looked up in the base directory.
const PromptsFileName = "prompts.yaml"

// Prompt is a system message plus a user template. Templates use
// {{context}}, {{candidates}} and {{secondary_language}} placeholders.
type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Prompts is the prompt set for the three analysis operations.
type Prompts struct {
	Summarize       Prompt `yaml:"summarize"`
	ProposeTasks    Prompt `yaml:"propose_tasks"`
	CheckCompletion Prompt `yaml:"check_completion"`
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() Prompts {
	var p Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &p); err != nil {
		panic(fmt.Sprintf("analysis: embedded prompts: %v", err))
	}
	return p
}

// LoadPrompts returns the built-in prompts overlaid with baseDir/prompts.yaml.
// Prompts missing from the file keep their defaults.
func LoadPrompts(baseDir string) (Prompts, error) {
	p := DefaultPrompts()
	if baseDir == "" {
		return p, nil
	}

	path := filepath.Join(baseDir, PromptsFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read %s: %w", path, err)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	p.Summarize = mergePrompt(p.Summarize, override.Summarize)
	p.ProposeTasks = mergePrompt(p.ProposeTasks, override.ProposeTasks)
	p.CheckCompletion = mergePrompt(p.CheckCompletion, override.CheckCompletion)
	return p, nil
}

func mergePrompt(base, overlay Prompt) Prompt {
	if strings.TrimSpace(overlay.System) != "" {
		base.System = overlay.System
	}
	if strings.TrimSpace(overlay.User) != "" {
		base.User = overlay.User
	}
	return base
}

// render fills a template's placeholders.
func render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
