// Package agent runs browser tasks end to end: planning, step execution,
// answer shaping and evaluation, plus direct browser actions on a task.
package agent

import (
	"context"
	"fmt"

	"github.com/rahul/wayfarer/internal/executor"
	"github.com/rahul/wayfarer/internal/governance"
	"github.com/rahul/wayfarer/internal/llm"
	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/plan"
)

// Planner names accepted in Options.
const (
	PlannerLLM       = "llm"
	PlannerHeuristic = "heuristic"
)

type Options struct {
	// Planner selects how plans are made: "llm" (default) asks the model and
	// falls back to the deterministic plan, "heuristic" never calls the
	// model for planning.
	Planner       string
	ScreenshotDir string
}

// Agent is the browser agent service.
type Agent struct {
	exec    *executor.Executor
	gateway *llm.Gateway
	policy  governance.PolicyEngine
	logger  *observability.Logger
	status  *observability.Status
	opts    Options
}

func New(exec *executor.Executor, gateway *llm.Gateway, policy governance.PolicyEngine, logger *observability.Logger, status *observability.Status, opts Options) *Agent {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if status == nil {
		status = observability.NewStatus()
	}
	if opts.Planner == "" {
		opts.Planner = PlannerLLM
	}
	if opts.ScreenshotDir == "" {
		opts.ScreenshotDir = "screenshots"
	}
	if gateway != nil && len(gateway.Steps) == 0 {
		gateway.Steps = StepDocs(exec.Registry())
	}
	return &Agent{exec: exec, gateway: gateway, policy: policy, logger: logger, status: status, opts: opts}
}

// StepDocs describes the registered step handlers for the planner prompt.
func StepDocs(r *executor.Registry) []llm.StepDoc {
	handlers := r.Handlers()
	docs := make([]llm.StepDoc, 0, len(handlers))
	for _, h := range handlers {
		docs = append(docs, llm.StepDoc{Type: h.Name(), Description: h.Description(), Parameters: h.Parameters()})
	}
	return docs
}

// Plan produces the plan for prompt with the configured planner. fromModel
// is false when a deterministic planner produced it.
func (a *Agent) Plan(ctx context.Context, taskID, prompt string) (p plan.Plan, fromModel bool, err error) {
	switch a.opts.Planner {
	case PlannerHeuristic:
		return plan.Heuristic(prompt), false, nil
	case PlannerLLM:
		if a.gateway == nil {
			return plan.Fallback(prompt), false, nil
		}
		p, fromModel = a.gateway.GeneratePlan(ctx, taskID, prompt)
		return p, fromModel, nil
	default:
		return plan.Plan{}, false, fmt.Errorf("unknown planner %q", a.opts.Planner)
	}
}
