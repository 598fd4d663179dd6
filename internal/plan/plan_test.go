package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackWithURL(t *testing.T) {
	p := Fallback("visit https://example.com and extract title")

	require.Len(t, p.Steps, 2)
	assert.Equal(t, StepNavigate, p.Steps[0].Type)
	assert.Equal(t, "https://example.com", p.Steps[0].Params.String("url"))
	assert.Equal(t, StepExtract, p.Steps[1].Type)
	assert.Equal(t, []string{"main", "#content", ".content", "article"}, p.Steps[1].Params.StringSlice("selectors"))
	assert.NoError(t, p.Validate())
}

func TestFallbackWithoutURL(t *testing.T) {
	p := Fallback("latest go release notes")

	require.Len(t, p.Steps, 2)
	assert.Equal(t, StepSearch, p.Steps[0].Type)
	assert.Equal(t, "latest go release notes", p.Steps[0].Params.String("query"))
	assert.Equal(t, []string{"#search", "#main", "#center_col"}, p.Steps[1].Params.StringSlice("selectors"))
}

func TestHeuristicPlans(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		types  []StepType
		first  string
	}{
		{
			name:   "url with trailing punctuation",
			prompt: "open https://example.com/docs.",
			types:  []StepType{StepNavigate, StepExtract},
			first:  "https://example.com/docs",
		},
		{
			name:   "url inside a google search link",
			prompt: "go to https://www.google.com/search?q=https%3A%2F%2Fgolang.org%2Fdoc",
			types:  []StepType{StepNavigate, StepExtract},
			first:  "https://golang.org/doc",
		},
		{
			name:   "click intent",
			prompt: "visit https://shop.example.com and click on the first product",
			types:  []StepType{StepNavigate, StepClick},
			first:  "https://shop.example.com",
		},
		{
			name:   "plain question",
			prompt: "weather in Lisbon",
			types:  []StepType{StepSearch, StepExtract},
		},
		{
			name:   "form intent",
			prompt: "fill the contact form on https://example.com/contact",
			types:  []StepType{StepNavigate, StepForm},
			first:  "https://example.com/contact",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Heuristic(tt.prompt)
			var got []StepType
			for _, s := range p.Steps {
				got = append(got, s.Type)
			}
			assert.Equal(t, tt.types, got)
			if tt.first != "" {
				assert.Equal(t, tt.first, p.Steps[0].Params.String("url"))
			}
			assert.Equal(t, tt.prompt, p.Goal)
		})
	}
}

func TestHeuristicSearchTerm(t *testing.T) {
	p := Heuristic("go to google and search for golang generics tutorial")
	require.NotEmpty(t, p.Steps)
	assert.Equal(t, StepSearch, p.Steps[0].Type)
	assert.Equal(t, "golang generics tutorial", p.Steps[0].Params.String("query"))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Plan{Steps: []Step{{Type: StepWait}}}.Validate(), ErrMissingGoal)
	assert.ErrorIs(t, Plan{Goal: "x"}.Validate(), ErrNoSteps)
	assert.Error(t, Plan{Goal: "x", Steps: []Step{{}}}.Validate())
}

func TestParamsFromJSON(t *testing.T) {
	var s Step
	require.NoError(t, json.Unmarshal([]byte(`{"type":"scroll","params":{"amount":"0.5","time":2,"selectors":["main",".a"]}}`), &s))

	f, ok := s.Params.Float("amount")
	assert.True(t, ok)
	assert.Equal(t, 0.5, f)

	f, ok = s.Params.Float("time")
	assert.True(t, ok)
	assert.Equal(t, 2.0, f)

	_, ok = s.Params.Float("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"main", ".a"}, s.Params.StringSlice("selectors"))
	assert.True(t, s.Type.Valid())
	assert.False(t, StepType("hover").Valid())
}

func TestEvaluationFloor(t *testing.T) {
	low := Evaluation{IsCompleted: true, SatisfactionScore: 3}.Normalize()
	assert.Equal(t, 5, low.SatisfactionScore)

	high := Evaluation{IsCompleted: true, SatisfactionScore: 9}.Normalize()
	assert.Equal(t, 9, high.SatisfactionScore)
	assert.Equal(t, high, high.Normalize())

	incomplete := Evaluation{IsCompleted: false, SatisfactionScore: 2, CompletionPercentage: 140}.Normalize()
	assert.Equal(t, 2, incomplete.SatisfactionScore)
	assert.Equal(t, 100, incomplete.CompletionPercentage)
}

func TestInterpret(t *testing.T) {
	cases := []struct {
		prompt     string
		action     string
		target     string
		confidence float64
	}{
		{"Busca información sobre los volcanes de Canarias.", IntentExtract, "informacion sobre los volcanes de canarias", 0.8},
		{"Visita https://example.com/trails, por favor", IntentVisit, "https://example.com/trails", 0.7},
		{"Resume el artículo", IntentAnalyze, "Resume el artículo", 0.6},
		{"https://example.com", IntentExtract, "https://example.com", 0.6},
		{"hola", IntentAnalyze, "hola", 0},
	}
	for _, tc := range cases {
		t.Run(tc.prompt, func(t *testing.T) {
			in := Interpret(tc.prompt)
			assert.Equal(t, tc.action, in.Action)
			assert.Equal(t, tc.target, in.Target)
			assert.Equal(t, tc.confidence, in.Confidence)
			assert.Equal(t, tc.prompt, in.OriginalPrompt)
		})
	}
}

func TestInterpretationStartURL(t *testing.T) {
	assert.Equal(t, "https://example.com", Interpretation{Target: "https://example.com"}.StartURL())
	assert.Equal(t, "https://www.google.com/search?q=botas+de+monta%C3%B1a",
		Interpretation{Target: "botas de montaña"}.StartURL())
}

func TestWantsBrowser(t *testing.T) {
	assert.True(t, WantsBrowser("Navega a la página de inicio"))
	assert.True(t, WantsBrowser("haz clic en el botón"))
	assert.True(t, WantsBrowser("https://example.com"))
	assert.False(t, WantsBrowser("¿Cuánto es 2 + 2?"))
	assert.False(t, WantsBrowser("write a haiku about autumn"))
}
