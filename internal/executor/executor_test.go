package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/browser/browsertest"
	"github.com/rahul/wayfarer/internal/extract"
	"github.com/rahul/wayfarer/internal/governance"
	"github.com/rahul/wayfarer/internal/plan"
)

type harness struct {
	exec *Executor
	fake *browsertest.Fake
	run  *Run
	logs []string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	if opts.SettleDelay == 0 {
		opts.SettleDelay = time.Millisecond
	}
	if opts.DefaultWait == 0 {
		opts.DefaultWait = time.Millisecond
	}
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	policy, err := governance.NewPolicyEngine([]string{`^(?i)file:`})
	require.NoError(t, err)

	h := &harness{fake: browsertest.New()}
	h.exec = New(extract.NewEngine(2), policy, nil, nil, opts)
	h.run = &Run{
		TaskID:  "task-1",
		Session: browser.NewSession(h.fake),
		Memory:  &Memory{},
	}
	h.run.Logf = func(format string, args ...any) {
		h.logs = append(h.logs, format)
	}
	return h
}

func (h *harness) step(t *testing.T, typ plan.StepType, params plan.Params) (Outcome, error) {
	t.Helper()
	return h.exec.Execute(context.Background(), h.run, 0, plan.Step{Type: typ, Params: params})
}

func TestRegistryListsHandlersInPlannerOrder(t *testing.T) {
	h := newHarness(t, Options{})
	var names []plan.StepType
	for _, hd := range h.exec.Registry().Handlers() {
		names = append(names, hd.Name())
		assert.NotEmpty(t, hd.Description())
	}
	assert.Equal(t, plan.StepTypes, names)
}

func TestUnknownStepType(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.step(t, "teleport", nil)
	require.ErrorIs(t, err, ErrUnsupportedStep)
	assert.Contains(t, err.Error(), `unrecognized step type "teleport"`)
	assert.Zero(t, h.fake.Launches)
}

func TestLaunchFailureIsFatal(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.LaunchErrs = []error{errors.New("no chrome"), errors.New("still no chrome")}

	_, err := h.step(t, plan.StepNavigate, plan.Params{"url": "https://example.com"})
	require.ErrorIs(t, err, browser.ErrNotInitialized)
	assert.Empty(t, h.fake.Navigations)
}

func TestNavigate(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.step(t, plan.StepNavigate, plan.Params{"url": 42.0})
	require.ErrorIs(t, err, ErrInvalidParams)

	out, err := h.step(t, plan.StepNavigate, plan.Params{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Navigated to https://example.com", out.Message)
	assert.Equal(t, []string{"https://example.com"}, h.fake.Navigations)
	assert.Equal(t, "https://example.com", h.run.Memory.CurrentURL)
	assert.Equal(t, 1, h.fake.Launches)
}

func TestNavigateDeniedByPolicy(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.step(t, plan.StepNavigate, plan.Params{"url": "file:///etc/passwd"})
	require.ErrorIs(t, err, governance.ErrDenied)
	assert.Empty(t, h.fake.Navigations)
}

func TestSearchNavigatesWhenNotOnEngine(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.step(t, plan.StepSearch, plan.Params{"query": "golang tips"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.google.com/search?q=golang+tips"}, h.fake.Navigations)
	assert.Empty(t, h.fake.Fills)
}

func TestSearchUsesBoxOnEngine(t *testing.T) {
	h := newHarness(t, Options{SearchEngine: "duckduckgo"})
	h.fake.CurrentURL = "https://duckduckgo.com/"

	_, err := h.step(t, plan.StepSearch, plan.Params{"query": "golang"})
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{`input[name="q"]`, "golang"}}, h.fake.Fills)
	assert.Equal(t, []string{"Enter"}, h.fake.Keys)
	assert.Empty(t, h.fake.Navigations)
}

func TestSearchFallsBackToURLWhenBoxFails(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.CurrentURL = "https://www.google.com/"
	h.fake.FillErr = func(string) error { return errors.New("not found") }

	_, err := h.step(t, plan.StepSearch, plan.Params{"query": "a&b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.google.com/search?q=a%26b"}, h.fake.Navigations)

	_, err = h.step(t, plan.StepSearch, plan.Params{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestClickByVisibleText(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Return(ScriptInteractive, []Element{
		{Index: 0, Tag: "button", ID: "info", Text: "Más información", X: 1, Y: 1, InViewport: true},
		{Index: 1, Tag: "button", ID: "accept", Text: "Aceptar cookies", X: 10, Y: 20, InViewport: true},
	})

	_, err := h.step(t, plan.StepClick, plan.Params{"target": "aceptar"})
	require.NoError(t, err)
	assert.Equal(t, []string{`[data-wayfarer-click="1"]`}, h.fake.Clicks)
	assert.Empty(t, h.fake.ClicksAt)
}

func TestClickTargetsMeasuredElementAmongLookalikes(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Return(ScriptInteractive, []Element{
		{Index: 0, Tag: "button", Classes: []string{"btn", "primary"}, Text: "Newsletter", InViewport: true},
		{Index: 1, Tag: "button", Classes: []string{"btn", "primary"}, Text: "Checkout", InViewport: true},
	})

	_, err := h.step(t, plan.StepClick, plan.Params{"target": "checkout"})
	require.NoError(t, err)
	assert.Equal(t, []string{`[data-wayfarer-click="1"]`}, h.fake.Clicks)
}

func TestElementDescribe(t *testing.T) {
	assert.Equal(t, "button#go", Element{Tag: "button", ID: "go"}.Describe())
	assert.Equal(t, "a.nav.item", Element{Tag: "a", Classes: []string{"nav", "item"}}.Describe())
	assert.Equal(t, "button", Element{Tag: "button"}.Describe())
}

func TestClickFallsBackToCoordinates(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.ClickErr = func(string) error { return errors.New("timeout") }
	h.fake.Return(ScriptInteractive, []Element{
		{Tag: "button", Classes: []string{"btn", "ok"}, Text: "Aceptar", X: 10, Y: 20},
	})

	_, err := h.step(t, plan.StepClick, plan.Params{"target": "Aceptar"})
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{10, 20}}, h.fake.ClicksAt)
}

func TestClickByAriaLabelTemplate(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Return(ScriptInteractive, []Element{
		{Index: 0, Tag: "button", AriaLabel: "Close dialog", X: 3, Y: 4},
	})

	_, err := h.step(t, plan.StepClick, plan.Params{"target": "close"})
	require.NoError(t, err)
	assert.Equal(t, []string{`[data-wayfarer-click="0"]`}, h.fake.Clicks)
}

func TestClickFirstSearchResult(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.CurrentURL = "https://www.google.com/search?q=go"
	h.fake.Return(ScriptInteractive, []Element{})
	h.fake.Return(ScriptFirstResult, firstResult{Found: true, Text: "The Go Programming Language", X: 5, Y: 6})

	_, err := h.step(t, plan.StepClick, plan.Params{"target": "primer resultado"})
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{5, 6}}, h.fake.ClicksAt)
}

func TestClickUnresolved(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Return(ScriptInteractive, []Element{})

	_, err := h.step(t, plan.StepClick, plan.Params{"target": "zzz"})
	assert.ErrorIs(t, err, ErrClickUnresolved)

	_, err = h.step(t, plan.StepClick, plan.Params{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestFirstVisible(t *testing.T) {
	els := []Element{
		{Tag: "a", Text: "below", InViewport: false},
		{Tag: "div", Role: "link", InViewport: true},
		{Tag: "div", Role: "button", Text: "menu", InViewport: true},
	}
	el, ok := FirstVisible(els)
	require.True(t, ok)
	assert.Equal(t, "menu", el.Text)
}

func TestOrdinalIntent(t *testing.T) {
	assert.True(t, OrdinalIntent("el primer enlace"))
	assert.True(t, OrdinalIntent("First result"))
	assert.True(t, OrdinalIntent("result 1"))
	assert.False(t, OrdinalIntent("accept cookies"))
}

func TestFieldValue(t *testing.T) {
	tests := []struct {
		field Field
		want  string
	}{
		{Field{Type: "email"}, "usuario.prueba@example.com"},
		{Field{Type: "text", Name: "correo"}, "usuario.prueba@example.com"},
		{Field{Type: "text", Name: "first_name"}, "Usuario Prueba"},
		{Field{Type: "text", ID: "apellido"}, "Apellido Prueba"},
		{Field{Type: "tel"}, "123456789"},
		{Field{Tag: "textarea", Placeholder: "Your message"}, "Este es un mensaje de prueba generado automáticamente."},
		{Field{Type: "text", Name: "city"}, "Ciudad de Prueba"},
		{Field{Type: "text", Name: "zip"}, "28001"},
		{Field{Type: "password"}, "Contraseña123!"},
		{Field{Type: "text", Name: "q"}, "Texto de prueba"},
		{Field{Type: "number", Name: "qty"}, "Datos de prueba"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FieldValue(tt.field), "%+v", tt.field)
	}
}

func TestFormFillsAndSubmits(t *testing.T) {
	h := newHarness(t, Options{CheckboxPolicy: CheckboxSkip})
	h.fake.Return(ScriptFormFields, []Field{
		{Index: 0, Tag: "input", Type: "email", Name: "email"},
		{Index: 1, Tag: "input", Type: "text", Name: "name"},
		{Index: 2, Tag: "input", Type: "checkbox", Name: "terms"},
	})
	h.fake.On(ScriptVisible, func(args []any) (any, error) {
		return args[0] == `button[type="submit"]`, nil
	})

	out, err := h.step(t, plan.StepForm, nil)
	require.NoError(t, err)
	assert.Equal(t, "Form completed with 2 fields", out.Message)
	assert.Equal(t, [][2]string{
		{`[data-wayfarer-field="0"]`, "usuario.prueba@example.com"},
		{`[data-wayfarer-field="1"]`, "Usuario Prueba"},
	}, h.fake.Fills)
	assert.Equal(t, []string{`button[type="submit"]`}, h.fake.Clicks)
}

func TestFormSubmitsByButtonText(t *testing.T) {
	h := newHarness(t, Options{CheckboxPolicy: CheckboxSkip})
	h.fake.Return(ScriptFormFields, []Field{{Index: 0, Tag: "textarea", Name: "comment"}})
	h.fake.Return(ScriptVisible, false)
	h.fake.Return(ScriptInteractive, []Element{
		{Index: 0, Tag: "a", Text: "Enviar"},
		{Index: 1, Tag: "button", ID: "send", Text: "Enviar ahora"},
	})

	_, err := h.step(t, plan.StepForm, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`[data-wayfarer-click="1"]`}, h.fake.Clicks)
}

func TestFormWithoutFieldsDoesNotSubmit(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Return(ScriptFormFields, []Field{})

	out, err := h.step(t, plan.StepForm, nil)
	require.NoError(t, err)
	assert.Equal(t, "Form completed with 0 fields", out.Message)
	assert.Zero(t, h.fake.Count(ScriptVisible))
}

func TestScroll(t *testing.T) {
	h := newHarness(t, Options{})
	var got []any
	h.fake.On(ScriptScroll, func(args []any) (any, error) {
		got = args
		return 0, nil
	})

	_, err := h.step(t, plan.StepScroll, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"down", 0.7}, got)

	_, err = h.step(t, plan.StepScroll, plan.Params{"direction": "up", "amount": "0.5"})
	require.NoError(t, err)
	assert.Equal(t, []any{"up", 0.5}, got)

	_, err = h.step(t, plan.StepScroll, plan.Params{"direction": "sideways"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestWaitHonoursCancellation(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.step(t, plan.StepWait, plan.Params{"time": 0.001})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.exec.Execute(ctx, h.run, 0, plan.Step{Type: plan.StepWait, Params: plan.Params{"time": 60.0}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractPrefersGivenSelectors(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.CurrentURL = "https://example.com/a"
	long := strings.Repeat("content ", 40)
	h.fake.On(extract.ScriptSelectorText, func(args []any) (any, error) {
		if args[0] == "#search" {
			return map[string]any{"found": true, "text": long, "matched": "#search"}, nil
		}
		return map[string]any{"found": false}, nil
	})
	h.fake.Return(extract.ScriptContainerImages, [][]extract.ImageInfo{})
	h.fake.Return(extract.ScriptImages, []extract.ImageInfo{{Src: "/hero.jpg", Width: 400, Height: 400}})

	out, err := h.step(t, plan.StepExtract, plan.Params{"selectors": []any{"#missing", "#search"}})
	require.NoError(t, err)
	require.NotNil(t, out.Extraction)
	assert.Equal(t, "#search", out.Extraction.Selector)
	assert.Equal(t, []string{"https://example.com/hero.jpg"}, out.Images)
	text, images := extract.SplitImages(out.Content)
	assert.Equal(t, strings.TrimSpace(long), text)
	assert.Equal(t, out.Images, images)
}
