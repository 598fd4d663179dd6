package llm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TemplatesFile is the optional prompt template catalogue in the prompts
// directory.
const TemplatesFile = "templates.yaml"

// Template is a reusable prompt offered to clients.
type Template struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Template    string `yaml:"template" json:"template"`
	Description string `yaml:"description" json:"description"`
}

var defaultTemplates = []Template{
	{
		ID:          "search",
		Name:        "Search information",
		Template:    "Search for information about {topic}",
		Description: "Searches the web and summarises what it finds about a topic",
	},
	{
		ID:          "visit",
		Name:        "Visit website",
		Template:    "Visit {url} and extract the main information",
		Description: "Opens a website and extracts its main content",
	},
	{
		ID:          "analyze",
		Name:        "Analyse content",
		Template:    "Analyse and summarise information about {topic}",
		Description: "Searches for a topic and returns an analysis of it",
	},
}

// Templates lists the prompt templates, read from TemplatesFile when the
// prompts directory has one.
func (pm *PromptManager) Templates() ([]Template, error) {
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, TemplatesFile))
		switch {
		case err == nil:
			var ts []Template
			if err := yaml.Unmarshal(data, &ts); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", TemplatesFile, err)
			}
			return ts, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read %s: %w", TemplatesFile, err)
		}
	}
	return append([]Template(nil), defaultTemplates...), nil
}
