package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/wayfarer/internal/extract"
	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/plan"
)

const (
	// MaxContentChars bounds the page text sent for content processing.
	MaxContentChars = 8000 * 4
	// MaxEvalContentChars bounds the page text sent for evaluation.
	MaxEvalContentChars = 2000
	maxFallbackAnswer   = 1000
)

var (
	planOptions     = CallOptions{Temperature: 0.4, MaxTokens: 2000}
	contentOptions  = CallOptions{Temperature: 0.2}
	evaluateOptions = CallOptions{Temperature: 0.3, MaxTokens: 1500}
)

// StepDoc describes one step type to the planner model.
type StepDoc struct {
	Type        plan.StepType
	Description string
	Parameters  map[string]any
}

// TranscriptWriter persists model exchanges.
type TranscriptWriter interface {
	Append(ctx context.Context, taskID, role, content string) error
}

// Gateway wraps a Completer with the prompts, retry policy and response
// recovery used by the agent.
type Gateway struct {
	completer Completer
	prompts   *PromptManager
	logger    *observability.Logger
	metrics   *observability.Metrics

	Retry Retrier
	// Defaults fill the options a request leaves unset, usually from the
	// provider config.
	Defaults CallOptions
	// Steps is the step catalogue offered to the planner.
	Steps []StepDoc
	// Transcripts is optional.
	Transcripts TranscriptWriter
}

func NewGateway(c Completer, prompts *PromptManager, logger *observability.Logger, metrics *observability.Metrics) *Gateway {
	if prompts == nil {
		prompts = NewPromptManager("")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Gateway{
		completer: c,
		prompts:   prompts,
		logger:    logger,
		metrics:   metrics,
		Retry:     Retrier{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay},
	}
}

func (g *Gateway) exchange(ctx context.Context, taskID, purpose string, msgs []Message, opts CallOptions) (string, error) {
	start := time.Now()
	opts = opts.Or(g.Defaults)
	retry := g.Retry
	retry.Notify = func(attempt int, err error, delay time.Duration) {
		g.logger.Warn("model request failed, retrying",
			"task_id", taskID, "purpose", purpose, "attempt", attempt, "delay", delay, "error", err)
	}

	resp, attempts, err := retry.Do(ctx, func(ctx context.Context) (string, error) {
		out, err := g.completer.Complete(ctx, msgs, opts)
		switch {
		case err == nil:
			g.metrics.LLMAttempt(purpose, "ok")
		case IsTransient(err):
			g.metrics.LLMAttempt(purpose, "transient")
		default:
			g.metrics.LLMAttempt(purpose, "error")
		}
		return out, err
	})
	g.metrics.ObserveLLM(purpose, time.Since(start))
	g.logger.LogLLM(taskID, purpose, msgs, resp, attempts)
	if err != nil {
		g.logger.Error("model request failed", "task_id", taskID, "purpose", purpose, "attempts", attempts, "error", err)
		return "", err
	}

	if g.Transcripts != nil && len(msgs) > 0 {
		for _, m := range []Message{msgs[len(msgs)-1], {Role: RoleAssistant, Content: resp}} {
			if err := g.Transcripts.Append(ctx, taskID, string(m.Role), m.Content); err != nil {
				g.logger.Warn("failed to store transcript", "task_id", taskID, "error", err)
				break
			}
		}
	}
	return resp, nil
}

var examplePlan = plan.Plan{
	Goal: "Search for information about artificial intelligence and visit the first result",
	Steps: []plan.Step{
		{Type: plan.StepSearch, Description: "Search for information about artificial intelligence", Params: plan.Params{"query": "artificial intelligence latest advances"}},
		{Type: plan.StepClick, Description: "Click the first relevant result", Params: plan.Params{"target": "first relevant link"}},
		{Type: plan.StepExtract, Description: "Extract the main content of the page", Params: plan.Params{"selectors": []string{"main", "#content", ".content", "article"}}},
	},
}

func (g *Gateway) stepCatalogue() string {
	var b strings.Builder
	if len(g.Steps) == 0 {
		for _, t := range plan.StepTypes {
			fmt.Fprintf(&b, "- '%s'\n", t)
		}
		return b.String()
	}
	for _, s := range g.Steps {
		fmt.Fprintf(&b, "- '%s': %s", s.Type, s.Description)
		if len(s.Parameters) > 0 {
			params, _ := json.Marshal(s.Parameters)
			fmt.Fprintf(&b, " Params: %s", params)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// GeneratePlan asks the model for a plan. When the model cannot be reached
// or its answer is not a usable plan, the deterministic fallback plan is
// returned and fromModel is false.
func (g *Gateway) GeneratePlan(ctx context.Context, taskID, prompt string) (p plan.Plan, fromModel bool) {
	system, err := g.prompts.Render(PromptPlanner, map[string]string{"steps": strings.TrimRight(g.stepCatalogue(), "\n")})
	if err != nil {
		g.logger.Error("failed to load planner prompt", "task_id", taskID, "error", err)
		return plan.Fallback(prompt), false
	}
	example, _ := json.MarshalIndent(examplePlan, "", "  ")
	msgs := []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: fmt.Sprintf("Create a plan for: %q", examplePlan.Goal)},
		{Role: RoleAssistant, Content: string(example)},
		{Role: RoleUser, Content: fmt.Sprintf("Create a plan for: %q", prompt)},
	}

	resp, err := g.exchange(ctx, taskID, "plan", msgs, planOptions)
	if err != nil {
		return plan.Fallback(prompt), false
	}
	if !DecodeObject(resp, &p) {
		g.logger.Warn("could not parse plan, using fallback", "task_id", taskID)
		return plan.Fallback(prompt), false
	}
	if err := p.Validate(); err != nil {
		g.logger.Warn("invalid plan, using fallback", "task_id", taskID, "error", err)
		return plan.Fallback(prompt), false
	}
	return p, true
}

// Answer is the result of content processing: a JSON object when the model
// produced one, otherwise plain text.
type Answer struct {
	Text   string
	Object map[string]any
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Object != nil {
		return json.Marshal(a.Object)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil && obj != nil {
		a.Object = obj
		return nil
	}
	return json.Unmarshal(data, &a.Text)
}

// Score returns the numeric "score" field of an object answer.
func (a Answer) Score() (float64, bool) {
	if a.Object == nil {
		return 0, false
	}
	return plan.Params(a.Object).Float("score")
}

// Failed reports whether the answer records a backend failure.
func (a Answer) Failed() bool {
	if a.Object == nil {
		return false
	}
	ok, present := a.Object["success"].(bool)
	return present && !ok
}

func (a Answer) String() string {
	if a.Object != nil {
		b, _ := json.Marshal(a.Object)
		return string(b)
	}
	return a.Text
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ProcessContent applies a free-form instruction to extracted page content.
func (g *Gateway) ProcessContent(ctx context.Context, taskID, content, instruction string) Answer {
	body, images := extract.SplitImages(content)
	body = truncateRunes(body, MaxContentChars)

	imageSection := ""
	if len(images) > 0 {
		b, _ := json.Marshal(images)
		imageSection = "\nIMAGES FOUND:\n" + string(b) + "\n"
	}
	prompt, err := g.prompts.Render(PromptContent, map[string]string{
		"instruction": instruction,
		"content":     body,
		"images":      imageSection,
	})
	if err != nil {
		return failedAnswer(err)
	}

	resp, err := g.exchange(ctx, taskID, "content", []Message{{Role: RoleUser, Content: prompt}}, contentOptions)
	if err != nil {
		return failedAnswer(err)
	}

	var obj map[string]any
	if DecodeObject(resp, &obj) && obj != nil {
		return Answer{Object: obj}
	}
	if strings.Contains(strings.ToLower(instruction), "json") {
		return Answer{Object: map[string]any{
			"answer": truncateRunes(resp, maxFallbackAnswer),
			"score":  5,
		}}
	}
	return Answer{Text: strings.TrimSpace(resp)}
}

// Answer replies to a prompt that needs no browsing.
func (g *Gateway) Answer(ctx context.Context, taskID, question string) Answer {
	prompt, err := g.prompts.Render(PromptAnswer, map[string]string{"question": question})
	if err != nil {
		return failedAnswer(err)
	}
	resp, err := g.exchange(ctx, taskID, "answer", []Message{{Role: RoleUser, Content: prompt}}, contentOptions)
	if err != nil {
		return failedAnswer(err)
	}
	return Answer{Text: strings.TrimSpace(resp)}
}

func failedAnswer(err error) Answer {
	return Answer{Object: map[string]any{
		"error":   "failed to process content: " + err.Error(),
		"success": false,
	}}
}

// EvalInput is what the evaluator model sees of a finished run.
type EvalInput struct {
	Goal    string
	Steps   []string
	Content string
	URL     string
}

type rawEvaluation struct {
	IsCompleted           bool    `json:"isCompleted"`
	CompletionPercentage  float64 `json:"completionPercentage"`
	Evaluation            string  `json:"evaluation"`
	SuggestionForNextStep string  `json:"suggestionForNextStep"`
	SatisfactionScore     float64 `json:"satisfactionScore"`
}

// EvaluateProgress asks the model how well the run met its goal.
func (g *Gateway) EvaluateProgress(ctx context.Context, taskID string, in EvalInput) plan.Evaluation {
	system, err := g.prompts.Get(PromptEvaluator)
	if err != nil {
		return plan.UnavailableEvaluation(err)
	}

	steps := "No steps recorded"
	if len(in.Steps) > 0 {
		steps = strings.Join(in.Steps, "\n")
	}
	content := "No content available"
	if in.Content != "" {
		content = truncateRunes(in.Content, MaxEvalContentChars)
	}
	url := in.URL
	if url == "" {
		url = "Unknown"
	}
	user := fmt.Sprintf("Initial goal: %q\n\nSteps executed:\n%s\n\nCurrent content:\n%s\n\nCurrent URL: %s\n\nWas the goal completed satisfactorily? Give a detailed evaluation.",
		in.Goal, steps, content, url)

	resp, err := g.exchange(ctx, taskID, "evaluate", []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, evaluateOptions)
	if err != nil {
		return plan.UnavailableEvaluation(err)
	}

	var raw rawEvaluation
	if !DecodeObject(resp, &raw) {
		g.logger.Warn("could not parse evaluation", "task_id", taskID)
		return plan.NeutralEvaluation()
	}
	return plan.Evaluation{
		IsCompleted:           raw.IsCompleted,
		CompletionPercentage:  int(raw.CompletionPercentage + 0.5),
		Evaluation:            raw.Evaluation,
		SuggestionForNextStep: raw.SuggestionForNextStep,
		SatisfactionScore:     int(raw.SatisfactionScore + 0.5),
	}.Normalize()
}
