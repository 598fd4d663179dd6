package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/governance"
	"github.com/rahul/wayfarer/internal/plan"
	"github.com/rahul/wayfarer/internal/task"
)

// Direct browser actions a caller can run against a task's session.
const (
	ActionNavigate   = "navigate"
	ActionClick      = "click"
	ActionType       = "type"
	ActionExtract    = "extract"
	ActionSelect     = "select"
	ActionFind       = "find"
	ActionScreenshot = "screenshot"
	ActionDiagnose   = "diagnose"
)

var (
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrMissingParam      = errors.New("missing action parameter")
)

const (
	actionTimeout = 5 * time.Second
	maxFound      = 10
)

type actionFunc func(ctx context.Context, t *task.Task, d browser.Driver, params plan.Params) (string, error)

func (a *Agent) actions() map[string]actionFunc {
	return map[string]actionFunc{
		ActionNavigate:   a.actNavigate,
		ActionClick:      a.actClick,
		ActionType:       a.actType,
		ActionExtract:    a.actExtract,
		ActionSelect:     a.actSelect,
		ActionFind:       a.actFind,
		ActionScreenshot: a.actScreenshot,
		ActionDiagnose:   a.actDiagnose,
	}
}

// Action runs one direct browser action on the task's session and returns a
// human-readable report.
func (a *Agent) Action(ctx context.Context, t *task.Task, s *browser.Session, action string, params plan.Params) (string, error) {
	fn, ok := a.actions()[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}
	d, err := s.Driver(ctx)
	if err != nil {
		t.Logf("Error in action '%s': %v", action, err)
		return "", err
	}
	result, err := fn(ctx, t, d, params)
	if err != nil {
		t.Logf("Error in action '%s': %v", action, err)
		return "", err
	}
	t.Logf("Action '%s' executed: %s", action, truncate(result, 100))
	return result, nil
}

func requireParams(params plan.Params, keys ...string) error {
	for _, k := range keys {
		if params.String(k) == "" {
			return fmt.Errorf("%w: %s", ErrMissingParam, k)
		}
	}
	return nil
}

func (a *Agent) actNavigate(ctx context.Context, t *task.Task, d browser.Driver, params plan.Params) (string, error) {
	if err := requireParams(params, "url"); err != nil {
		return "", err
	}
	target := params.String("url")
	_, err := governance.Check(ctx, a.policy, governance.Request{TaskID: t.ID(), URL: target})
	a.logger.LogPolicy(t.ID(), ActionNavigate, target, err == nil)
	if err != nil {
		return "", err
	}
	if err := d.Navigate(ctx, target); err != nil {
		return "", err
	}
	_ = d.WaitIdle(ctx, actionTimeout)
	title, _ := d.Title(ctx)
	t.UpdateState(func(st *task.State) { st.CurrentURL = target })
	return fmt.Sprintf("Navigation to %s completed. Title: %q", target, title), nil
}

func (a *Agent) actClick(ctx context.Context, t *task.Task, d browser.Driver, params plan.Params) (string, error) {
	if err := requireParams(params, "selector"); err != nil {
		return "", err
	}
	sel := params.String("selector")
	if err := d.Click(ctx, sel, actionTimeout); err != nil {
		return "", err
	}
	_ = d.WaitIdle(ctx, actionTimeout)
	return fmt.Sprintf("Clicked element %q", sel), nil
}

func (a *Agent) actType(ctx context.Context, t *task.Task, d browser.Driver, params plan.Params) (string, error) {
	if err := requireParams(params, "selector"); err != nil {
		return "", err
	}
	sel, text := params.String("selector"), params.String("text")
	if err := d.Click(ctx, sel, actionTimeout); err != nil {
		return "", err
	}
	if err := d.Fill(ctx, sel, text); err != nil {
		return "", err
	}
	return fmt.Sprintf("Typed %q into %q", text, sel), nil
}

// actExtract returns the text of a selector, or the readable content of the
// whole page when no selector is given.
func (a *Agent) actExtract(ctx context.Context, t *task.Task, d browser.Driver, params plan.Params) (string, error) {
	engine := a.exec.Engine()
	if sel := params.String("selector"); sel != "" {
		res, ok, err := engine.SelectorText(ctx, d, sel)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("no element matches %q", sel)
		}
		return res.Text, nil
	}
	res, err := engine.ExtractReadable(ctx, d)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (a *Agent) actSelect(ctx context.Context, t *task.Task, d browser.Driver, params plan.Params) (string, error) {
	if err := requireParams(params, "selector", "option"); err != nil {
		return "", err
	}
	sel, option := params.String("selector"), params.String("option")
	if err := d.Select(ctx, sel, option); err != nil {
		return "", err
	}
	return fmt.Sprintf("Selected option %q in %q", option, sel), nil
}

// FoundElement is one element reported by the find action.
type FoundElement struct {
	Tag     string   `json:"tag"`
	ID      string   `json:"id"`
	Classes []string `json:"classes"`
	Text    string   `json:"text"`
}

type findResult struct {
	Total    int            `json:"total"`
	Elements []FoundElement `json:"elements"`
}

// FormatFound renders find results one element per line.
func FormatFound(els []FoundElement, total int) string {
	if total == 0 {
		return "No elements found"
	}
	var b strings.Builder
	for i, el := range els {
		fmt.Fprintf(&b, "%d. <%s", i, el.Tag)
		if el.ID != "" {
			b.WriteString("#" + el.ID)
		}
		for _, c := range el.Classes {
			b.WriteString("." + c)
		}
		b.WriteString("> " + truncate(el.Text, 100) + "\n")
	}
	if total > len(els) {
		fmt.Fprintf(&b, "... and %d more\n", total-len(els))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Agent) actFind(ctx context.Context, t *task.Task, d browser.Driver, params plan.Params) (string, error) {
	if err := requireParams(params, "selector"); err != nil {
		return "", err
	}
	var r findResult
	if err := d.Evaluate(ctx, browser.Script{Name: ScriptFind, Source: findJS, Args: []any{params.String("selector"), maxFound}}, &r); err != nil {
		return "", err
	}
	return FormatFound(r.Elements, r.Total), nil
}

func (a *Agent) actScreenshot(ctx context.Context, t *task.Task, d browser.Driver, params plan.Params) (string, error) {
	name := filepath.Base(params.String("path"))
	if name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("screenshot-%s.png", t.ID())
	}
	img, err := d.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(a.opts.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	path := filepath.Join(a.opts.ScreenshotDir, name)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}
	return "Screenshot saved to " + path, nil
}
