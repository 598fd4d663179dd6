package executor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rahul/wayfarer/internal/governance"
	"github.com/rahul/wayfarer/internal/plan"
)

type navigateHandler struct{ e *Executor }

func (h *navigateHandler) Name() plan.StepType { return plan.StepNavigate }

func (h *navigateHandler) Description() string {
	return "Open a URL in the browser."
}

func (h *navigateHandler) Parameters() map[string]any {
	return map[string]any{"url": "absolute URL to open"}
}

func (h *navigateHandler) Execute(ctx context.Context, c *Call) (Outcome, error) {
	target := c.Params.String("url")
	if target == "" {
		c.Run.logf("Error: invalid or missing URL: %v", c.Params["url"])
		return Outcome{}, fmt.Errorf("%w: navigate requires a non-empty string url, got %v", ErrInvalidParams, c.Params["url"])
	}
	if err := h.e.navigate(ctx, c, target); err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: "Navigated to " + target}, nil
}

// navigate applies the navigation policy, loads target and records it as the
// run's current URL.
func (e *Executor) navigate(ctx context.Context, c *Call, target string) error {
	res, err := governance.Check(ctx, e.policy, governance.Request{TaskID: c.Run.TaskID, URL: target})
	e.logger.LogPolicy(c.Run.TaskID, "navigate", target, err == nil)
	if err != nil {
		c.Run.logf("Navigation to %s refused: %s", target, res.Reason)
		return err
	}

	c.Run.logf("Navigating to: %s", target)
	if err := c.Driver.Navigate(ctx, target); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", target, err)
	}
	if c.Run.Memory != nil {
		c.Run.Memory.CurrentURL = target
	}
	e.waitIdle(ctx, c.Driver)
	return nil
}

// SearchEngine describes where and how queries are submitted.
type SearchEngine struct {
	Name string
	// Host is matched against the current URL to decide whether the search
	// box is already on screen.
	Host     string
	Box      string
	QueryURL string
}

// SearchEngines lists the supported engines by name.
var SearchEngines = map[string]SearchEngine{
	"google": {
		Name:     "google",
		Host:     "google.com",
		Box:      `textarea[name="q"], input[name="q"]`,
		QueryURL: "https://www.google.com/search?q=",
	},
	"duckduckgo": {
		Name:     "duckduckgo",
		Host:     "duckduckgo.com",
		Box:      `input[name="q"]`,
		QueryURL: "https://duckduckgo.com/?q=",
	},
	"bing": {
		Name:     "bing",
		Host:     "bing.com",
		Box:      `textarea[name="q"], input[name="q"]`,
		QueryURL: "https://www.bing.com/search?q=",
	},
}

// SearchURL returns the results URL for query on engine.
func (s SearchEngine) SearchURL(query string) string {
	return s.QueryURL + url.QueryEscape(query)
}

func (e *Executor) searchEngine() SearchEngine {
	if s, ok := SearchEngines[e.opts.SearchEngine]; ok {
		return s
	}
	return SearchEngines["google"]
}

type searchHandler struct{ e *Executor }

func (h *searchHandler) Name() plan.StepType { return plan.StepSearch }

func (h *searchHandler) Description() string {
	return "Run a web search and open the results page."
}

func (h *searchHandler) Parameters() map[string]any {
	return map[string]any{"query": "search terms"}
}

func (h *searchHandler) Execute(ctx context.Context, c *Call) (Outcome, error) {
	query := c.Params.String("query")
	if query == "" {
		c.Run.logf("Error: search query not specified")
		return Outcome{}, fmt.Errorf("%w: search requires a non-empty query", ErrInvalidParams)
	}
	c.Run.logf("Searching: %q", query)

	engine := h.e.searchEngine()
	current, _ := c.Driver.URL(ctx)

	typed := false
	if strings.Contains(current, engine.Host) {
		if err := h.typeQuery(ctx, c, engine, query); err != nil {
			c.Run.logf("Search box unavailable (%v), opening results URL", err)
		} else {
			typed = true
			if c.Run.Memory != nil {
				c.Run.Memory.CurrentURL, _ = c.Driver.URL(ctx)
			}
		}
	}
	if !typed {
		if err := h.e.navigate(ctx, c, engine.SearchURL(query)); err != nil {
			return Outcome{}, err
		}
	}

	h.e.waitIdle(ctx, c.Driver)
	return Outcome{Message: fmt.Sprintf("Search completed for: %q", query)}, nil
}

func (h *searchHandler) typeQuery(ctx context.Context, c *Call, engine SearchEngine, query string) error {
	if err := c.Driver.Fill(ctx, engine.Box, query); err != nil {
		return err
	}
	return c.Driver.Press(ctx, "Enter")
}
