package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/browser/browsertest"
	"github.com/rahul/wayfarer/internal/executor"
	"github.com/rahul/wayfarer/internal/extract"
	"github.com/rahul/wayfarer/internal/governance"
	"github.com/rahul/wayfarer/internal/llm"
	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/plan"
	"github.com/rahul/wayfarer/internal/task"
)

// scriptedModel answers Complete calls in order.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (m *scriptedModel) Complete(_ context.Context, _ []llm.Message, _ llm.CallOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

const evaluationReply = `{"isCompleted": true, "completionPercentage": 90, "evaluation": "found it", "suggestionForNextStep": "none", "satisfactionScore": 8}`

var pageText = strings.Repeat("Useful page content. ", 20)

type fixture struct {
	agent *Agent
	fake  *browsertest.Fake
	model *scriptedModel
}

func newFixture(t *testing.T, planner string, replies ...string) *fixture {
	t.Helper()
	policy, err := governance.NewPolicyEngine([]string{`^(?i)file:`})
	require.NoError(t, err)

	exec := executor.New(extract.NewEngine(2), policy, nil, nil, executor.Options{
		Seed:        1,
		SettleDelay: time.Millisecond,
		DefaultWait: time.Millisecond,
	})
	model := &scriptedModel{replies: replies}
	gw := llm.NewGateway(model, llm.NewPromptManager(t.TempDir()), nil, nil)

	f := browsertest.New()
	f.PageTitle = "Example"
	f.Return(extract.ScriptSelectorText, map[string]any{"found": true, "text": pageText, "matched": "main"})

	a := New(exec, gw, policy, nil, nil, Options{Planner: planner, ScreenshotDir: t.TempDir()})
	return &fixture{agent: a, fake: f, model: model}
}

func (fx *fixture) run(t *testing.T, tk *task.Task) (string, error) {
	t.Helper()
	return fx.agent.Run(context.Background(), tk, browser.NewSession(fx.fake))
}

func planReply(t *testing.T, steps ...plan.Step) string {
	t.Helper()
	b, err := json.Marshal(plan.Plan{Goal: "goal", Steps: steps})
	require.NoError(t, err)
	return "Here is the plan:\n" + string(b)
}

func TestRunCompletesWithModelPlan(t *testing.T) {
	fx := newFixture(t, PlannerLLM,
		planReply(t,
			plan.Step{Type: plan.StepNavigate, Description: "open", Params: plan.Params{"url": "https://example.com"}},
			plan.Step{Type: plan.StepExtract, Description: "read", Params: plan.Params{"selectors": []any{"main"}}},
		),
		`{"answer": "42", "score": 8}`,
		evaluationReply,
	)
	tk := task.New(task.Spec{Query: "what is the answer? reply in json"}, nil)

	out, err := fx.run(t, tk)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "42", got["answer"])
	meta := got["metadata"].(map[string]any)
	assert.Equal(t, "https://example.com", meta["url"])
	assert.Equal(t, "Example", meta["title"])
	assert.EqualValues(t, 2, meta["steps_executed"])

	st := tk.State()
	assert.Equal(t, PhaseCompleted, st.Status)
	require.NotNil(t, st.Plan)
	assert.Len(t, st.Plan.Steps, 2)
	require.NotNil(t, st.SatisfactionScore)
	assert.Equal(t, 8.0, *st.SatisfactionScore)
	require.NotNil(t, st.Evaluation)
	assert.Equal(t, 90, st.Evaluation.CompletionPercentage)
	assert.Equal(t, "https://example.com", st.CurrentURL)
	assert.True(t, tk.IsWebTask())
	assert.Equal(t, 3, fx.model.calls)
}

func TestRunTextAnswerDefaultsSatisfaction(t *testing.T) {
	fx := newFixture(t, PlannerHeuristic, "The answer is 42.", evaluationReply)
	tk := task.New(task.Spec{Query: "visit https://example.com and extract the content"}, nil)

	out, err := fx.run(t, tk)
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", out)

	st := tk.State()
	require.NotNil(t, st.SatisfactionScore)
	assert.Equal(t, defaultSatisfaction, *st.SatisfactionScore)
	assert.Equal(t, []string{"https://example.com"}, fx.fake.Navigations)
	// heuristic planning never asks the model for a plan
	assert.Equal(t, 2, fx.model.calls)
}

func TestRunSkipsFailedIntermediateStep(t *testing.T) {
	fx := newFixture(t, PlannerLLM,
		planReply(t,
			plan.Step{Type: plan.StepNavigate, Description: "blocked", Params: plan.Params{"url": "file:///etc/passwd"}},
			plan.Step{Type: plan.StepExtract, Description: "read"},
		),
		"summary",
		evaluationReply,
	)
	tk := task.New(task.Spec{Query: "read the page"}, nil)

	out, err := fx.run(t, tk)
	require.NoError(t, err)
	assert.Equal(t, "summary", out)
	assert.Empty(t, fx.fake.Navigations)

	var skipped bool
	for _, l := range tk.Logs() {
		if l.Message == "Trying to continue with the next step" {
			skipped = true
		}
	}
	assert.True(t, skipped)
}

func TestRunFailsOnFinalStepError(t *testing.T) {
	fx := newFixture(t, PlannerLLM,
		planReply(t,
			plan.Step{Type: plan.StepNavigate, Description: "open", Params: plan.Params{"url": "https://example.com"}},
			plan.Step{Type: plan.StepNavigate, Description: "blocked", Params: plan.Params{"url": "file:///etc/passwd"}},
		),
	)
	tk := task.New(task.Spec{Query: "q"}, nil)

	_, err := fx.run(t, tk)
	require.ErrorIs(t, err, governance.ErrDenied)
	st := tk.State()
	assert.Equal(t, PhaseError, st.Status)
	assert.Contains(t, st.Error, "denied")
}

func TestRunAbortsWhenBrowserCannotStart(t *testing.T) {
	fx := newFixture(t, PlannerHeuristic)
	fx.fake.LaunchErrs = []error{errors.New("no chrome"), errors.New("still no chrome")}
	tk := task.New(task.Spec{Query: "visit https://example.com and extract the content"}, nil)

	_, err := fx.run(t, tk)
	require.ErrorIs(t, err, browser.ErrNotInitialized)
	assert.Zero(t, fx.model.calls)
}

func TestRunHonoursCancellation(t *testing.T) {
	fx := newFixture(t, PlannerHeuristic)
	tk := task.New(task.Spec{Query: "visit https://example.com"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.agent.Run(ctx, tk, browser.NewSession(fx.fake))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, PhaseError, tk.State().Status)
}

func TestUnknownPlanner(t *testing.T) {
	fx := newFixture(t, "astrology")
	_, _, err := fx.agent.Plan(context.Background(), "t", "q")
	assert.Error(t, err)
}

func TestStepDocsFollowRegistry(t *testing.T) {
	exec := executor.New(extract.NewEngine(1), nil, nil, nil, executor.Options{})
	docs := StepDocs(exec.Registry())
	require.Len(t, docs, len(plan.StepTypes))
	assert.Equal(t, plan.StepNavigate, docs[0].Type)
}

func TestSucceededSteps(t *testing.T) {
	logs := []task.LogEntry{
		{Message: "Executing step 1/2: open"},
		{Message: "Step 1 completed successfully: Navigated to x"},
		{Message: "Error executing step 2: boom"},
	}
	assert.Equal(t, []string{"Step 1 completed successfully: Navigated to x"}, succeededSteps(logs))
}

func TestActionNavigateRespectsPolicy(t *testing.T) {
	fx := newFixture(t, PlannerLLM)
	tk := task.New(task.Spec{Query: "q"}, nil)
	s := browser.NewSession(fx.fake)

	_, err := fx.agent.Action(context.Background(), tk, s, ActionNavigate, plan.Params{"url": "file:///etc/hosts"})
	require.ErrorIs(t, err, governance.ErrDenied)

	out, err := fx.agent.Action(context.Background(), tk, s, ActionNavigate, plan.Params{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Contains(t, out, `Title: "Example"`)
	assert.Equal(t, "https://example.com", tk.State().CurrentURL)
}

func TestActionValidation(t *testing.T) {
	fx := newFixture(t, PlannerLLM)
	tk := task.New(task.Spec{Query: "q"}, nil)
	s := browser.NewSession(fx.fake)

	_, err := fx.agent.Action(context.Background(), tk, s, "teleport", nil)
	assert.ErrorIs(t, err, ErrUnsupportedAction)
	_, err = fx.agent.Action(context.Background(), tk, s, ActionClick, plan.Params{})
	assert.ErrorIs(t, err, ErrMissingParam)
	_, err = fx.agent.Action(context.Background(), tk, s, ActionSelect, plan.Params{"selector": "#size"})
	assert.ErrorIs(t, err, ErrMissingParam)
}

func TestActionTypeAndSelect(t *testing.T) {
	fx := newFixture(t, PlannerLLM)
	tk := task.New(task.Spec{Query: "q"}, nil)
	s := browser.NewSession(fx.fake)

	_, err := fx.agent.Action(context.Background(), tk, s, ActionType, plan.Params{"selector": "#q", "text": "boots"})
	require.NoError(t, err)
	_, err = fx.agent.Action(context.Background(), tk, s, ActionSelect, plan.Params{"selector": "#size", "option": "42"})
	require.NoError(t, err)

	assert.Equal(t, [][2]string{{"#q", "boots"}}, fx.fake.Fills)
	assert.Equal(t, [][2]string{{"#size", "42"}}, fx.fake.Selects)
}

func TestActionExtractWithSelector(t *testing.T) {
	fx := newFixture(t, PlannerLLM)
	tk := task.New(task.Spec{Query: "q"}, nil)

	out, err := fx.agent.Action(context.Background(), tk, browser.NewSession(fx.fake), ActionExtract, plan.Params{"selector": "main"})
	require.NoError(t, err)
	assert.Equal(t, pageText, out)
}

func TestActionFind(t *testing.T) {
	fx := newFixture(t, PlannerLLM)
	fx.fake.On(ScriptFind, func(args []any) (any, error) {
		assert.Equal(t, "a.product", args[0])
		return map[string]any{
			"total": 12,
			"elements": []map[string]any{
				{"tag": "a", "id": "first", "classes": []string{"product", "hot"}, "text": "Boots"},
				{"tag": "a", "id": "", "classes": []string{"product"}, "text": "Shoes"},
			},
		}, nil
	})
	tk := task.New(task.Spec{Query: "q"}, nil)

	out, err := fx.agent.Action(context.Background(), tk, browser.NewSession(fx.fake), ActionFind, plan.Params{"selector": "a.product"})
	require.NoError(t, err)
	assert.Equal(t, "0. <a#first.product.hot> Boots\n1. <a.product> Shoes\n... and 10 more", out)
}

func TestFormatFoundEmpty(t *testing.T) {
	assert.Equal(t, "No elements found", FormatFound(nil, 0))
}

func TestActionScreenshotStaysInDirectory(t *testing.T) {
	fx := newFixture(t, PlannerLLM)
	tk := task.New(task.Spec{Query: "q"}, nil)

	out, err := fx.agent.Action(context.Background(), tk, browser.NewSession(fx.fake), ActionScreenshot, plan.Params{"path": "../../escape.png"})
	require.NoError(t, err)

	want := filepath.Join(fx.agent.opts.ScreenshotDir, "escape.png")
	assert.Equal(t, "Screenshot saved to "+want, out)
	b, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), b)
}

func TestActionDiagnose(t *testing.T) {
	fx := newFixture(t, PlannerLLM)
	fx.fake.CurrentURL = "https://example.com/missing"
	fx.fake.PageTitle = "Page not found"
	fx.fake.Return(ScriptDiagnose, map[string]any{
		"dom":            map[string]any{"totalElements": 40, "h1": 1, "links": 3},
		"mainContainers": 0,
		"bodyTextLength": 20,
		"modals":         1,
		"cookieBanner":   true,
		"interactive":    []map[string]any{{"type": "button", "text": "Accept", "visible": true}},
		"frameworks":     []string{"React"},
		"resources":      map[string]any{"total": 3, "byType": map[string]int{"script": 2, "img": 1}},
		"load":           map[string]any{"readyState": "complete", "timeToLoad": 850},
	})
	tk := task.New(task.Spec{Query: "q"}, nil)

	out, err := fx.agent.Action(context.Background(), tk, browser.NewSession(fx.fake), ActionDiagnose, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "URL: https://example.com/missing")
	assert.Contains(t, out, "Load time: 850ms")
	assert.Contains(t, out, "By type: img: 1, script: 2")
	assert.Contains(t, out, `- button: "Accept" (visible)`)
	assert.Contains(t, out, "Frameworks: React")

	diag, ok := tk.State().PageDiagnostic.(Diagnostic)
	require.True(t, ok)
	assert.Len(t, diag.Issues, 5)
}

func TestIssuesOnHealthyPage(t *testing.T) {
	m := PageMeasurements{MainContainers: 1, BodyTextLength: 5000}
	assert.Empty(t, Issues("Welcome", m))
}

func TestSchedulerBeat(t *testing.T) {
	status := observability.NewStatus()
	before := status.Snapshot().LastHeartbeat
	var out bytes.Buffer
	s := NewScheduler(status, nil, 0)
	s.Out = &out
	assert.Equal(t, DefaultHeartbeatInterval, s.Interval)

	time.Sleep(2 * time.Millisecond)
	s.beat()
	assert.True(t, status.Snapshot().LastHeartbeat.After(before))
	assert.Contains(t, out.String(), "HEALTHY")
}
