package llm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Prompt file names looked up in the prompts directory.
const (
	PromptPlanner   = "planner.md"
	PromptContent   = "content.md"
	PromptEvaluator = "evaluator.md"
	PromptAnswer    = "answer.md"
)

// PromptManager serves prompt texts, preferring files in Directory over the
// built-in defaults. Placeholders are written as {{name}}.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// Get returns the prompt stored as name.
func (pm *PromptManager) Get(name string) (string, error) {
	if pm != nil && pm.Directory != "" {
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		switch {
		case err == nil:
			if s := strings.TrimSpace(string(data)); s != "" {
				return s, nil
			}
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	s, ok := defaultPrompts[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	return s, nil
}

// Render fills {{key}} placeholders of the named prompt.
func (pm *PromptManager) Render(name string, vars map[string]string) (string, error) {
	text, err := pm.Get(name)
	if err != nil {
		return "", err
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text), nil
}

var defaultPrompts = map[string]string{
	PromptAnswer: `Answer the user's request directly and concisely. No web browsing is available for it.

REQUEST:
"{{question}}"`,

	PromptPlanner: `You are an assistant that turns a user request into a plan a web browsing agent can follow.

The available step types are:
{{steps}}

Return ONLY a JSON object with this structure:
{
  "goal": "clear description of the objective",
  "steps": [
    {
      "type": "stepType",
      "description": "what this step does",
      "params": { "...": "parameters the step needs" }
    }
  ]
}

Do not add comments or explanations outside the JSON. The JSON must be valid.`,

	PromptContent: `You extract information from web pages.

USER INSTRUCTION:
"{{instruction}}"

WEB CONTENT:
{{content}}
{{images}}
STRICT RULES:
1. Follow the user's instruction exactly and do not add fields that were not requested.
2. If the user asks for JSON, answer ONLY with a valid JSON object.
3. Do not write explanations before or after the result.
4. Do not add metadata fields unless explicitly requested.
5. Keep currency symbols in prices and full URLs in links.
6. Use booleans (true/false) for availability where it applies.

Your answer must be EXCLUSIVELY what the user asked for.`,

	PromptEvaluator: `You judge whether a web browsing task was completed satisfactorily.
Compare the initial goal, the steps performed and the current content to decide:
1. whether the goal was met
2. how good the result is
3. whether more steps are needed

Score fairly:
- If the page holds information relevant to the goal, even if imperfect, the score must be at least 6.
- If exactly what was asked for was found, the score must be 8 or higher.
- Only score below 4 when the page has no relevance to the goal at all.

Return ONLY a JSON object with this structure:
{
  "isCompleted": true,
  "completionPercentage": 0,
  "evaluation": "detailed explanation",
  "suggestionForNextStep": "specific suggestion if the task is not complete",
  "satisfactionScore": 0
}`,
}
