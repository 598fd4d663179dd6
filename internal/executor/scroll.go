package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rahul/wayfarer/internal/plan"
)

type scrollHandler struct{ e *Executor }

func (h *scrollHandler) Name() plan.StepType { return plan.StepScroll }

func (h *scrollHandler) Description() string {
	return "Scroll the page to reveal more content."
}

func (h *scrollHandler) Parameters() map[string]any {
	return map[string]any{
		"direction": "down (default), up, top or bottom",
		"amount":    "fraction of the viewport height for up/down, default 0.7",
	}
}

func (h *scrollHandler) Execute(ctx context.Context, c *Call) (Outcome, error) {
	direction := c.Params.String("direction")
	if direction == "" {
		direction = "down"
	}
	switch direction {
	case "down", "up", "top", "bottom":
	default:
		return Outcome{}, fmt.Errorf("%w: unknown scroll direction %q", ErrInvalidParams, direction)
	}
	amount, ok := c.Params.Float("amount")
	if !ok || amount <= 0 {
		amount = h.e.opts.ScrollFraction
	}

	c.Run.logf("Scrolling %s", direction)
	if err := c.Driver.Evaluate(ctx, script(ScriptScroll, scrollJS, direction, amount), nil); err != nil {
		return Outcome{}, fmt.Errorf("failed to scroll: %w", err)
	}
	if err := sleep(ctx, h.e.opts.SettleDelay); err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: "Scrolled " + direction}, nil
}

type waitHandler struct{ e *Executor }

func (h *waitHandler) Name() plan.StepType { return plan.StepWait }

func (h *waitHandler) Description() string {
	return "Pause to let the page finish loading."
}

func (h *waitHandler) Parameters() map[string]any {
	return map[string]any{"time": "seconds to wait, default 3"}
}

func (h *waitHandler) Execute(ctx context.Context, c *Call) (Outcome, error) {
	d := h.e.opts.DefaultWait
	if secs, ok := c.Params.Float("time"); ok && secs > 0 {
		d = time.Duration(secs * float64(time.Second))
	}
	c.Run.logf("Waiting %s", d)
	if err := sleep(ctx, d); err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: fmt.Sprintf("Waited %s", d)}, nil
}
