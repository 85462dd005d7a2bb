package flow

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v2"

	"github.com/canmore-mixology/barkeep/internal/models"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptTemplate is one prompt as stored in YAML. User is a text/template
// rendered with {{.Input}} bound to the trimmed user input.
type PromptTemplate struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	System      string `yaml:"system"`
	User        string `yaml:"user"`

	tmpl *template.Template
}

// Prompts holds the templates for both suggestion modes and the image flow.
type Prompts struct {
	Ingredients PromptTemplate `yaml:"ingredients"`
	Flavor      PromptTemplate `yaml:"flavor"`
	Image       PromptTemplate `yaml:"image"`
}

type promptData struct {
	Input string
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *Prompts {
	p, err := parsePrompts(defaultPromptsYAML)
	if err != nil {
		// The embedded file is part of the build.
		panic(fmt.Sprintf("flow: invalid embedded prompts: %v", err))
	}
	return p
}

// LoadPrompts returns the built-in templates with any non-empty field from
// the YAML file at path laid over them. An empty path yields the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	p.Ingredients.merge(override.Ingredients)
	p.Flavor.merge(override.Flavor)
	p.Image.merge(override.Image)
	if err := p.compile(); err != nil {
		return nil, err
	}
	slog.Info("LoadPrompts: loaded prompt overrides", "path", path)
	return p, nil
}

func parsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Prompts) compile() error {
	for name, pt := range map[string]*PromptTemplate{
		"ingredients": &p.Ingredients,
		"flavor":      &p.Flavor,
		"image":       &p.Image,
	} {
		if strings.TrimSpace(pt.User) == "" {
			return fmt.Errorf("prompt %q has an empty user template", name)
		}
		t, err := template.New(name).Option("missingkey=error").Parse(pt.User)
		if err != nil {
			return fmt.Errorf("prompt %q: %w", name, err)
		}
		pt.tmpl = t
	}
	return nil
}

// ForMode returns the suggestion template for a mode.
func (p *Prompts) ForMode(mode models.ConciergeMode) (*PromptTemplate, error) {
	switch mode {
	case models.ModeIngredients:
		return &p.Ingredients, nil
	case models.ModeFlavor:
		return &p.Flavor, nil
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidMode, mode)
	}
}

func (pt *PromptTemplate) merge(o PromptTemplate) {
	if o.Name != "" {
		pt.Name = o.Name
	}
	if o.Description != "" {
		pt.Description = o.Description
	}
	if o.System != "" {
		pt.System = o.System
	}
	if o.User != "" {
		pt.User = o.User
	}
}

// Render executes the user template with input.
func (pt *PromptTemplate) Render(input string) (string, error) {
	var b strings.Builder
	if err := pt.tmpl.Execute(&b, promptData{Input: input}); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}
