package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/executor"
	"github.com/rahul/wayfarer/internal/extract"
	"github.com/rahul/wayfarer/internal/llm"
	"github.com/rahul/wayfarer/internal/task"
)

// Run phases recorded in the task's scratch state.
const (
	PhasePlanning           = "planning"
	PhaseExecuting          = "executing"
	PhaseProcessingResults  = "processing_results"
	PhaseGeneratingResponse = "generating_response"
	PhaseCompleted          = "completed"
	PhaseError              = "error"
)

const (
	noContent           = "No relevant content found"
	stepSucceededMarker = "completed successfully"
	defaultSatisfaction = 10.0
)

var _ task.Runner = (*Agent)(nil)

// Run executes one task run: plan, steps, answer, evaluation. It returns
// the serialised answer stored as the task result.
func (a *Agent) Run(ctx context.Context, t *task.Task, s *browser.Session) (string, error) {
	if a.gateway == nil {
		return "", errors.New("no model gateway configured")
	}
	result, err := a.run(ctx, t, s)
	if err != nil && ctx.Err() == nil {
		t.Logf("Error executing prompt: %v", err)
		t.UpdateState(func(st *task.State) {
			st.Status = PhaseError
			st.Error = err.Error()
		})
	}
	return result, err
}

func (a *Agent) run(ctx context.Context, t *task.Task, s *browser.Session) (string, error) {
	prompt := t.Prompt()
	t.MarkWebTask()
	t.Logf("Executing prompt: %q", truncate(prompt, 100))

	setPhase(t, PhasePlanning)
	a.status.SetStep(t.ID(), PhasePlanning)
	p, fromModel, err := a.Plan(ctx, t.ID(), prompt)
	if err != nil {
		return "", err
	}
	if !fromModel {
		t.AddLog("Using deterministic plan")
	}
	t.Logf("Plan generated with %d steps", len(p.Steps))
	a.logger.LogPlan(t.ID(), p)
	t.UpdateState(func(st *task.State) { st.Plan = &p })

	setPhase(t, PhaseExecuting)
	mem := &executor.Memory{}
	run := &executor.Run{TaskID: t.ID(), Session: s, Memory: mem, Logf: t.Logf}

	var (
		last     executor.Outcome
		executed int
	)
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		t.UpdateState(func(st *task.State) {
			st.CurrentStep = i + 1
			st.CurrentStepDescription = step.Description
		})
		t.SetProgress(10 + 70*i/len(p.Steps))
		a.status.SetStep(t.ID(), fmt.Sprintf("%d/%d %s", i+1, len(p.Steps), step.Type))
		t.Logf("Executing step %d/%d: %s", i+1, len(p.Steps), step.Description)

		out, err := a.exec.Execute(ctx, run, i, step)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			t.Logf("Error executing step %d: %v", i+1, err)
			if errors.Is(err, browser.ErrNotInitialized) {
				return "", err
			}
			if i < len(p.Steps)-1 {
				t.AddLog("Trying to continue with the next step")
				continue
			}
			return "", err
		}
		last = out
		executed = i + 1
		t.Logf("Step %d %s: %s", i+1, stepSucceededMarker, out.Message)
		if mem.CurrentURL != "" {
			t.UpdateState(func(st *task.State) { st.CurrentURL = mem.CurrentURL })
		}
	}

	setPhase(t, PhaseProcessingResults)
	t.SetProgress(85)
	content := noContent
	switch {
	case last.Content != "":
		content = last.Content
	case mem.CurrentURL != "":
		t.AddLog("Extracting content from the final page")
		if d, err := s.Driver(ctx); err == nil {
			if res, err := a.exec.Engine().Extract(ctx, d); err == nil {
				content = extract.WithImages(res.Text, res.Images)
			} else {
				t.Logf("Final extraction failed: %v", err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	setPhase(t, PhaseGeneratingResponse)
	t.SetProgress(90)
	t.AddLog("Generating the final answer from the collected information")
	pageURL, title := a.pageInfo(ctx, s)

	answer := a.gateway.ProcessContent(ctx, t.ID(), content, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if answer.Object != nil {
		if _, ok := answer.Object["metadata"]; !ok {
			answer.Object["metadata"] = map[string]any{
				"url":            pageURL,
				"title":          title,
				"timestamp":      time.Now().UTC().Format(time.RFC3339),
				"steps_executed": executed,
			}
		}
	}
	satisfaction, ok := answer.Score()
	if !ok {
		satisfaction = defaultSatisfaction
	}
	_, images := extract.SplitImages(content)
	t.UpdateState(func(st *task.State) {
		st.Result = answer
		st.SatisfactionScore = &satisfaction
		st.ImageURLs = images
	})

	evaluation := a.gateway.EvaluateProgress(ctx, t.ID(), llm.EvalInput{
		Goal:    prompt,
		Steps:   succeededSteps(t.Logs()),
		Content: content,
		URL:     pageURL,
	})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.UpdateState(func(st *task.State) {
		st.Evaluation = &evaluation
		st.Status = PhaseCompleted
	})
	a.logger.Info("task run finished", "task_id", t.ID(), "satisfaction", satisfaction, "completion", evaluation.CompletionPercentage)
	t.Logf("Task completed successfully (satisfaction %g/10)", satisfaction)
	return answer.String(), nil
}

// pageInfo reads the URL and title of the page, if a browser was started.
func (a *Agent) pageInfo(ctx context.Context, s *browser.Session) (string, string) {
	if !s.Launched() {
		return "", ""
	}
	d, err := s.Driver(ctx)
	if err != nil {
		return "", ""
	}
	u, _ := d.URL(ctx)
	title, _ := d.Title(ctx)
	return u, title
}

func setPhase(t *task.Task, phase string) {
	t.UpdateState(func(st *task.State) { st.Status = phase })
}

func succeededSteps(logs []task.LogEntry) []string {
	var out []string
	for _, l := range logs {
		if strings.Contains(l.Message, stepSucceededMarker) {
			out = append(out, l.Message)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
