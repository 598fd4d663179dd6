package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/plan"
	"github.com/rahul/wayfarer/internal/task"
)

// Script names used by the agent's direct actions.
const (
	ScriptFind     = "agent.find"
	ScriptDiagnose = "agent.diagnose"
)

const findJS = `(sel, limit) => {
  let els = [];
  try { els = Array.from(document.querySelectorAll(sel)); } catch (e) { return { total: 0, elements: [] }; }
  return {
    total: els.length,
    elements: els.slice(0, limit).map(el => ({
      tag: el.tagName.toLowerCase(),
      id: el.id || '',
      classes: typeof el.className === 'string' ? el.className.split(/\s+/).filter(Boolean) : [],
      text: (el.innerText || '').trim(),
    })),
  };
}`

const diagnoseJS = `() => {
  const count = (sel) => document.querySelectorAll(sel).length;
  const bodyText = document.body ? (document.body.innerText || '') : '';
  const lower = bodyText.toLowerCase();
  const interactive = [];
  for (const el of document.querySelectorAll('a, button, [role="button"], input[type="submit"], input[type="button"]')) {
    const text = (el.innerText || el.value || '').trim();
    const r = el.getBoundingClientRect();
    if (r.width > 0 && r.height > 0 && text.length > 0) {
      interactive.push({
        type: el.tagName.toLowerCase(),
        text: text.substring(0, 50),
        visible: r.top >= 0 && r.left >= 0 && r.bottom <= window.innerHeight && r.right <= window.innerWidth,
      });
      if (interactive.length >= 15) break;
    }
  }
  let cookieBanner = false;
  for (const el of document.querySelectorAll('[id], [class]')) {
    const id = (el.id || '').toLowerCase();
    const cls = (typeof el.className === 'string' ? el.className : '').toLowerCase();
    const attr = id + ' ' + cls;
    if (!/(banner|consent|cookie)/.test(attr)) continue;
    const text = (el.innerText || '').toLowerCase();
    if (text.includes('cookie') || text.includes('privacy') || text.includes('gdpr')) { cookieBanner = true; break; }
  }
  const frameworks = [];
  if (window.React || document.querySelector('[data-reactroot]')) frameworks.push('React');
  if (window.angular || document.querySelector('[ng-app]')) frameworks.push('Angular');
  if (window.Vue) frameworks.push('Vue.js');
  if (document.querySelector('.ember-view')) frameworks.push('Ember.js');
  if (window.jQuery) frameworks.push('jQuery');
  const resources = { total: 0, byType: {}, slow: [] };
  for (const r of performance.getEntriesByType('resource')) {
    const type = r.initiatorType || 'other';
    resources.total++;
    resources.byType[type] = (resources.byType[type] || 0) + 1;
    if (r.duration > 1000 && resources.slow.length < 10) {
      resources.slow.push({ name: r.name, duration: Math.round(r.duration), type });
    }
  }
  const t = performance.timing;
  return {
    dom: {
      totalElements: count('*'), h1: count('h1'), h2: count('h2'), h3: count('h3'),
      paragraphs: count('p'), links: count('a'), images: count('img'), forms: count('form'),
      inputs: count('input'), buttons: count('button'), scripts: count('script'), iframes: count('iframe'),
    },
    mainContainers: count('main, article, #content, .content'),
    bodyTextLength: bodyText.length,
    errorText: lower.includes('404') || lower.includes('not found') || lower.includes('error'),
    modals: count('.modal, [class*="modal"], [id*="modal"], dialog[open]'),
    cookieBanner,
    interactive,
    frameworks,
    viewport: { width: window.innerWidth, height: window.innerHeight },
    resources,
    load: {
      readyState: document.readyState,
      domContentLoaded: t.domContentLoadedEventEnd > 0,
      loaded: t.loadEventEnd > 0,
      timeToInteractive: t.domInteractive - t.navigationStart,
      timeToLoad: t.loadEventEnd - t.navigationStart,
    },
  };
}`

type DOMStats struct {
	TotalElements int `json:"totalElements"`
	H1            int `json:"h1"`
	H2            int `json:"h2"`
	H3            int `json:"h3"`
	Paragraphs    int `json:"paragraphs"`
	Links         int `json:"links"`
	Images        int `json:"images"`
	Forms         int `json:"forms"`
	Inputs        int `json:"inputs"`
	Buttons       int `json:"buttons"`
	Scripts       int `json:"scripts"`
	Iframes       int `json:"iframes"`
}

type InteractiveElement struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

type SlowResource struct {
	Name     string `json:"name"`
	Duration int    `json:"duration"`
	Type     string `json:"type"`
}

type Resources struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"byType"`
	Slow   []SlowResource `json:"slow"`
}

type LoadState struct {
	ReadyState        string `json:"readyState"`
	DOMContentLoaded  bool   `json:"domContentLoaded"`
	Loaded            bool   `json:"loaded"`
	TimeToInteractive int64  `json:"timeToInteractive"`
	TimeToLoad        int64  `json:"timeToLoad"`
}

// PageMeasurements is what the diagnose script reports about the page.
type PageMeasurements struct {
	DOM            DOMStats             `json:"dom"`
	MainContainers int                  `json:"mainContainers"`
	BodyTextLength int                  `json:"bodyTextLength"`
	ErrorText      bool                 `json:"errorText"`
	Modals         int                  `json:"modals"`
	CookieBanner   bool                 `json:"cookieBanner"`
	Interactive    []InteractiveElement `json:"interactive"`
	Frameworks     []string             `json:"frameworks"`
	Viewport       struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"viewport"`
	Resources Resources `json:"resources"`
	Load      LoadState `json:"load"`
}

// Diagnostic is stored in the task state after a diagnose action.
type Diagnostic struct {
	URL       string           `json:"url"`
	Title     string           `json:"title"`
	Timestamp time.Time        `json:"timestamp"`
	Page      PageMeasurements `json:"page"`
	Issues    []string         `json:"potentialIssues"`
}

// Issues derives the likely problems with a page from its measurements.
func Issues(title string, m PageMeasurements) []string {
	var issues []string
	if m.MainContainers == 0 {
		issues = append(issues, "No main content containers found (main, article, #content, .content)")
	}
	if m.BodyTextLength < 100 {
		issues = append(issues, "The page has very little text (under 100 characters)")
	}
	lt := strings.ToLower(title)
	if strings.Contains(lt, "error") || strings.Contains(lt, "not found") || m.ErrorText {
		issues = append(issues, "The page may be showing an error (404, not found, ...)")
	}
	if m.Modals > 0 {
		issues = append(issues, fmt.Sprintf("%d possible modal windows or dialogs detected", m.Modals))
	}
	if m.CookieBanner {
		issues = append(issues, "Possible cookie or GDPR consent banner detected")
	}
	return issues
}

func (a *Agent) actDiagnose(ctx context.Context, t *task.Task, d browser.Driver, _ plan.Params) (string, error) {
	t.AddLog("Running page diagnostic")
	u, err := d.URL(ctx)
	if err != nil {
		return "", err
	}
	title, err := d.Title(ctx)
	if err != nil {
		return "", err
	}
	var m PageMeasurements
	if err := d.Evaluate(ctx, browser.Script{Name: ScriptDiagnose, Source: diagnoseJS}, &m); err != nil {
		return "", fmt.Errorf("failed to diagnose page: %w", err)
	}

	diag := Diagnostic{URL: u, Title: title, Timestamp: time.Now().UTC(), Page: m, Issues: Issues(title, m)}
	t.UpdateState(func(st *task.State) { st.PageDiagnostic = diag })
	t.AddLog("Page diagnostic completed")
	return Report(diag), nil
}

// Report renders a diagnostic as plain text.
func Report(d Diagnostic) string {
	m := d.Page
	lines := []string{
		"=== PAGE DIAGNOSTIC ===",
		"URL: " + d.URL,
		"Title: " + d.Title,
		"State: " + m.Load.ReadyState,
		fmt.Sprintf("Load time: %dms", m.Load.TimeToLoad),
		"",
		"--- DOM STRUCTURE ---",
		fmt.Sprintf("Total elements: %d", m.DOM.TotalElements),
		fmt.Sprintf("Headings: H1: %d, H2: %d, H3: %d", m.DOM.H1, m.DOM.H2, m.DOM.H3),
		fmt.Sprintf("Paragraphs: %d", m.DOM.Paragraphs),
		fmt.Sprintf("Links: %d", m.DOM.Links),
		fmt.Sprintf("Images: %d", m.DOM.Images),
		fmt.Sprintf("Forms: %d", m.DOM.Forms),
		fmt.Sprintf("Buttons: %d", m.DOM.Buttons),
		fmt.Sprintf("Iframes: %d", m.DOM.Iframes),
		"",
		"--- RESOURCES ---",
		fmt.Sprintf("Total resources: %d", m.Resources.Total),
		"By type: " + formatCounts(m.Resources.ByType),
		fmt.Sprintf("Slow resources (>1s): %d", len(m.Resources.Slow)),
	}
	for _, r := range m.Resources.Slow {
		lines = append(lines, fmt.Sprintf("  - %s (%dms)", r.Name, r.Duration))
	}

	lines = append(lines, "", "--- DETECTED ISSUES ---")
	if len(d.Issues) == 0 {
		lines = append(lines, "- No specific issues detected")
	}
	for _, issue := range d.Issues {
		lines = append(lines, "- "+issue)
	}

	lines = append(lines, "", "--- MAIN INTERACTIVE ELEMENTS ---")
	for _, el := range m.Interactive {
		where := "(out of view)"
		if el.Visible {
			where = "(visible)"
		}
		lines = append(lines, fmt.Sprintf("- %s: %q %s", el.Type, el.Text, where))
	}

	frameworks := "None detected"
	if len(m.Frameworks) > 0 {
		frameworks = strings.Join(m.Frameworks, ", ")
	}
	lines = append(lines, "", "--- TECHNOLOGIES ---", "Frameworks: "+frameworks)
	return strings.Join(lines, "\n")
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}
