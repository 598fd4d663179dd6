package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/extract"
	"github.com/rahul/wayfarer/internal/governance"
	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/plan"
)

var (
	ErrInvalidParams   = errors.New("invalid step parameters")
	ErrUnsupportedStep = errors.New("unsupported step")
	ErrClickUnresolved = errors.New("click target could not be resolved")
)

// minSelectorText is the length a caller-supplied selector must yield before
// automatic detection is skipped.
const minSelectorText = 200

const (
	CheckboxRandom = "random"
	CheckboxSkip   = "skip"
)

// Options tunes handler behaviour.
type Options struct {
	SearchEngine   string
	ScrollFraction float64
	CheckboxPolicy string
	// Seed for the checkbox policy; zero seeds from the clock.
	Seed         int64
	IdleTimeout  time.Duration
	ClickTimeout time.Duration
	// SettleDelay is waited after scrolling.
	SettleDelay time.Duration
	// DefaultWait is used by wait steps without a time parameter.
	DefaultWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.SearchEngine == "" {
		o.SearchEngine = "google"
	}
	if o.ScrollFraction <= 0 {
		o.ScrollFraction = 0.7
	}
	if o.CheckboxPolicy == "" {
		o.CheckboxPolicy = CheckboxRandom
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = 5 * time.Second
	}
	if o.ClickTimeout == 0 {
		o.ClickTimeout = 3 * time.Second
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = time.Second
	}
	if o.DefaultWait == 0 {
		o.DefaultWait = 3 * time.Second
	}
	return o
}

// Memory is the per-run state shared between steps.
type Memory struct {
	CurrentURL string
}

// Run ties a step to the task it belongs to.
type Run struct {
	TaskID  string
	Session *browser.Session
	Memory  *Memory
	// Logf appends to the task log; may be nil.
	Logf func(format string, args ...any)
}

func (r *Run) logf(format string, args ...any) {
	if r != nil && r.Logf != nil {
		r.Logf(format, args...)
	}
}

// Outcome is what a step produced.
type Outcome struct {
	Message string
	// Content is set by steps that read the page.
	Content    string
	Images     []string
	Extraction *extract.Result
	Elapsed    time.Duration
}

// Executor dispatches plan steps to registered handlers.
type Executor struct {
	registry *Registry
	engine   *extract.Engine
	policy   governance.PolicyEngine
	logger   *observability.Logger
	metrics  *observability.Metrics
	opts     Options

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds an executor with the seven built-in step handlers. policy,
// logger and metrics may be nil.
func New(engine *extract.Engine, policy governance.PolicyEngine, logger *observability.Logger, metrics *observability.Metrics, opts Options) *Executor {
	opts = opts.withDefaults()
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e := &Executor{
		registry: NewRegistry(),
		engine:   engine,
		policy:   policy,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		rng:      rand.New(rand.NewSource(seed)),
	}
	e.registry.Register(&navigateHandler{e})
	e.registry.Register(&searchHandler{e})
	e.registry.Register(&extractHandler{e})
	e.registry.Register(&clickHandler{e})
	e.registry.Register(&formHandler{e})
	e.registry.Register(&scrollHandler{e})
	e.registry.Register(&waitHandler{e})
	return e
}

func (e *Executor) Registry() *Registry { return e.registry }

func (e *Executor) Engine() *extract.Engine { return e.engine }

// Execute runs one step. The session's browser is launched on first use; a
// launch failure is returned as is.
func (e *Executor) Execute(ctx context.Context, run *Run, index int, step plan.Step) (Outcome, error) {
	start := time.Now()

	h, ok := e.registry.Get(step.Type)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: unrecognized step type %q", ErrUnsupportedStep, step.Type)
	}

	d, err := run.Session.Driver(ctx)
	if err != nil {
		run.logf("Browser initialisation failed: %v", err)
		return Outcome{}, err
	}

	out, err := h.Execute(ctx, &Call{Run: run, Driver: d, Params: step.Params})
	out.Elapsed = time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.logger.LogStep(run.TaskID, index, string(step.Type), outcome, out.Elapsed)
	e.metrics.ObserveStep(string(step.Type), outcome, out.Elapsed)
	return out, err
}

func (e *Executor) chance() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}

// waitIdle waits for the page to settle; timeouts are not errors.
func (e *Executor) waitIdle(ctx context.Context, d browser.Driver) {
	_ = d.WaitIdle(ctx, e.opts.IdleTimeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type extractHandler struct{ e *Executor }

func (h *extractHandler) Name() plan.StepType { return plan.StepExtract }

func (h *extractHandler) Description() string {
	return "Extract the main content of the current page, plus relevant image URLs."
}

func (h *extractHandler) Parameters() map[string]any {
	return map[string]any{
		"selectors": "optional list of CSS selectors to try before the automatic content detection",
	}
}

func (h *extractHandler) Execute(ctx context.Context, c *Call) (Outcome, error) {
	c.Run.logf("Extracting page content")

	var res extract.Result
	found := false
	for _, sel := range c.Params.StringSlice("selectors") {
		r, ok, err := h.e.engine.SelectorText(ctx, c.Driver, sel)
		if err == nil && ok && len(r.Text) > minSelectorText {
			res, found = r, true
			break
		}
	}
	if found {
		if images, err := h.e.engine.Images(ctx, c.Driver, ""); err == nil {
			res.Images = images
		}
	} else {
		r, err := h.e.engine.Extract(ctx, c.Driver)
		if err != nil {
			return Outcome{}, err
		}
		res = r
	}

	c.Run.logf("Content extracted with %s (%d characters, %d images)", res.Strategy, len(res.Text), len(res.Images))
	return Outcome{
		Message:    fmt.Sprintf("Extracted %d characters", len(res.Text)),
		Content:    extract.WithImages(res.Text, res.Images),
		Images:     res.Images,
		Extraction: &res,
	}, nil
}
