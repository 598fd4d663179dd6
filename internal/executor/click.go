package executor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/plan"
)

// Element is a visible clickable element as measured in the page. The
// measuring script tags it with data-wayfarer-click=Index.
type Element struct {
	Index      int      `json:"index"`
	Tag        string   `json:"tag"`
	ID         string   `json:"id"`
	Classes    []string `json:"classes"`
	Role       string   `json:"role"`
	Text       string   `json:"text"`
	Title      string   `json:"title"`
	AriaLabel  string   `json:"ariaLabel"`
	HasImage   bool     `json:"hasImage"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	InViewport bool     `json:"inViewport"`
}

// Selector addresses exactly the measured element, even when siblings share
// its tag and classes.
func (el Element) Selector() string {
	return `[data-wayfarer-click="` + strconv.Itoa(el.Index) + `"]`
}

// Describe renders the element as tag#id.class for logs.
func (el Element) Describe() string {
	if el.ID != "" {
		return el.Tag + "#" + el.ID
	}
	if len(el.Classes) > 0 {
		return el.Tag + "." + strings.Join(el.Classes, ".")
	}
	return el.Tag
}

func (el Element) isButtonLike() bool {
	return el.Tag == "a" || el.Tag == "button" || el.Role == "button"
}

// ClickStrategy is one way of resolving a click target. ok is false when the
// strategy found nothing to click.
type ClickStrategy struct {
	Name string
	Run  func(ctx context.Context, c *Call, target string) (clicked string, ok bool, err error)
}

func (e *Executor) clickCascade() []ClickStrategy {
	return []ClickStrategy{
		{Name: "text-match", Run: e.clickTextMatch},
		{Name: "selector-templates", Run: e.clickTemplates},
		{Name: "ordinal", Run: e.clickOrdinal},
		{Name: "first-visible", Run: e.clickFirstVisible},
	}
}

type clickHandler struct{ e *Executor }

func (h *clickHandler) Name() plan.StepType { return plan.StepClick }

func (h *clickHandler) Description() string {
	return "Click a link or button described by its visible text, e.g. \"first result\" or \"Accept\"."
}

func (h *clickHandler) Parameters() map[string]any {
	return map[string]any{"target": "visible text or description of the element to click"}
}

func (h *clickHandler) Execute(ctx context.Context, c *Call) (Outcome, error) {
	target := c.Params.String("target")
	if target == "" {
		c.Run.logf("Error: click target not specified")
		return Outcome{}, fmt.Errorf("%w: click requires a non-empty target", ErrInvalidParams)
	}
	c.Run.logf("Trying to click: %s", target)

	for _, s := range h.e.clickCascade() {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		clicked, ok, err := s.Run(ctx, c, target)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			c.Run.logf("Click strategy %s failed: %v", s.Name, err)
			continue
		}
		if ok {
			c.Run.logf("Clicked %s (%s)", clicked, s.Name)
			h.e.waitIdle(ctx, c.Driver)
			return Outcome{Message: fmt.Sprintf("Clicked element related to %q", target)}, nil
		}
	}
	return Outcome{}, fmt.Errorf("%w: nothing clickable related to %q", ErrClickUnresolved, target)
}

func (e *Executor) interactive(ctx context.Context, d browser.Driver) ([]Element, error) {
	var els []Element
	if err := d.Evaluate(ctx, script(ScriptInteractive, interactiveJS), &els); err != nil {
		return nil, err
	}
	return els, nil
}

// clickElement clicks through the derived selector, falling back to the
// element's centre point.
func (e *Executor) clickElement(ctx context.Context, d browser.Driver, el Element) error {
	if err := d.Click(ctx, el.Selector(), e.opts.ClickTimeout); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	}
	return d.ClickAt(ctx, el.X, el.Y)
}

// MatchText returns the elements whose text contains target, ignoring case.
func MatchText(els []Element, target string) []Element {
	want := strings.ToLower(target)
	var out []Element
	for _, el := range els {
		if strings.Contains(strings.ToLower(el.Text), want) {
			out = append(out, el)
		}
	}
	return out
}

func (e *Executor) clickTextMatch(ctx context.Context, c *Call, target string) (string, bool, error) {
	els, err := e.interactive(ctx, c.Driver)
	if err != nil {
		return "", false, err
	}
	matches := MatchText(els, target)
	if len(matches) == 0 {
		return "", false, nil
	}
	best := matches[0]
	c.Run.logf("Matching element found: %q (%s)", best.Text, best.Describe())
	if err := e.clickElement(ctx, c.Driver, best); err != nil {
		return "", false, err
	}
	return fmt.Sprintf("%q", best.Text), true, nil
}

// Template is a text-based selector pattern evaluated against measured
// elements. Display is the pattern as it would be written for a
// text-selector-capable engine.
type Template struct {
	Display string
	Match   func(el Element, target string) bool
}

func textEquals(el Element, target string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(el.Text), " "), strings.TrimSpace(target))
}

func textMatches(el Element, target string) bool {
	re, err := regexp.Compile("(?i)" + target)
	if err != nil {
		return false
	}
	return re.MatchString(el.Text)
}

func attrContains(v, target string) bool {
	return v != "" && strings.Contains(strings.ToLower(v), strings.ToLower(target))
}

func tagIs(tag string) func(Element) bool {
	return func(el Element) bool { return el.Tag == tag }
}

func roleButton(el Element) bool { return el.Role == "button" }

func template(display string, kind func(Element) bool, match func(Element, string) bool) Template {
	return Template{Display: display, Match: func(el Element, t string) bool { return kind(el) && match(el, t) }}
}

// Templates returns the ordered selector templates for target.
func Templates(target string) []Template {
	title := func(el Element, t string) bool { return attrContains(el.Title, t) }
	aria := func(el Element, t string) bool { return attrContains(el.AriaLabel, t) }
	return []Template{
		template(fmt.Sprintf(`a:text(%q)`, target), tagIs("a"), textEquals),
		template(fmt.Sprintf(`button:text(%q)`, target), tagIs("button"), textEquals),
		template(fmt.Sprintf(`[role="button"]:text(%q)`, target), roleButton, textEquals),
		template(fmt.Sprintf(`a:text-matches(%q, "i")`, target), tagIs("a"), textMatches),
		template(fmt.Sprintf(`button:text-matches(%q, "i")`, target), tagIs("button"), textMatches),
		template(fmt.Sprintf(`[role="button"]:text-matches(%q, "i")`, target), roleButton, textMatches),
		template(fmt.Sprintf(`a[title*=%q i]`, target), tagIs("a"), title),
		template(fmt.Sprintf(`a[aria-label*=%q i]`, target), tagIs("a"), aria),
		template(fmt.Sprintf(`button[aria-label*=%q i]`, target), tagIs("button"), aria),
	}
}

func (e *Executor) clickTemplates(ctx context.Context, c *Call, target string) (string, bool, error) {
	els, err := e.interactive(ctx, c.Driver)
	if err != nil {
		return "", false, err
	}
	for _, tpl := range Templates(target) {
		for _, el := range els {
			if !tpl.Match(el, target) {
				continue
			}
			if err := e.clickElement(ctx, c.Driver, el); err != nil {
				if ctx.Err() != nil {
					return "", false, ctx.Err()
				}
				continue
			}
			return tpl.Display, true, nil
		}
	}
	return "", false, nil
}

// OrdinalIntent reports whether target asks for the first result or link.
func OrdinalIntent(target string) bool {
	t := strings.ToLower(target)
	for _, w := range []string{"primer", "1", "first"} {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

type firstResult struct {
	Found bool    `json:"found"`
	Text  string  `json:"text"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

func (e *Executor) clickOrdinal(ctx context.Context, c *Call, target string) (string, bool, error) {
	if !OrdinalIntent(target) {
		return "", false, nil
	}
	current, err := c.Driver.URL(ctx)
	if err != nil {
		return "", false, err
	}

	if strings.Contains(current, "google.com/search") {
		var r firstResult
		if err := c.Driver.Evaluate(ctx, script(ScriptFirstResult, firstResultJS), &r); err != nil {
			return "", false, err
		}
		if r.Found {
			if err := c.Driver.ClickAt(ctx, r.X, r.Y); err != nil {
				return "", false, err
			}
			return fmt.Sprintf("first search result %q", truncateText(r.Text, 30)), true, nil
		}
		if err := c.Driver.Click(ctx, "h3", e.opts.ClickTimeout); err != nil {
			return "", false, err
		}
		return "first search result (h3)", true, nil
	}

	els, err := e.interactive(ctx, c.Driver)
	if err != nil {
		return "", false, err
	}
	for _, el := range els {
		if el.Tag == "a" && el.InViewport && (el.Text != "" || el.HasImage) {
			if err := c.Driver.ClickAt(ctx, el.X, el.Y); err != nil {
				return "", false, err
			}
			return fmt.Sprintf("first visible link %q", truncateText(el.Text, 50)), true, nil
		}
	}
	return "", false, nil
}

// FirstVisible returns the first link or button inside the viewport.
func FirstVisible(els []Element) (Element, bool) {
	for _, el := range els {
		if el.isButtonLike() && el.InViewport {
			return el, true
		}
	}
	return Element{}, false
}

func (e *Executor) clickFirstVisible(ctx context.Context, c *Call, target string) (string, bool, error) {
	els, err := e.interactive(ctx, c.Driver)
	if err != nil {
		return "", false, err
	}
	el, ok := FirstVisible(els)
	if !ok {
		return "", false, fmt.Errorf("no visible elements to click")
	}
	if err := c.Driver.ClickAt(ctx, el.X, el.Y); err != nil {
		return "", false, err
	}
	return fmt.Sprintf("fallback %s %q", el.Tag, truncateText(el.Text, 30)), true, nil
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
