package executor

import (
	"context"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/plan"
)

// Handler executes one step type against a launched driver.
type Handler interface {
	Name() plan.StepType
	Description() string
	Parameters() map[string]any // parameter name -> description, shown to the planner
	Execute(ctx context.Context, call *Call) (Outcome, error)
}

// Call is the input of a single handler invocation.
type Call struct {
	Run    *Run
	Driver browser.Driver
	Params plan.Params
}

// Registry manages the set of step handlers.
type Registry struct {
	handlers map[plan.StepType]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[plan.StepType]Handler),
	}
}

func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

func (r *Registry) Get(name plan.StepType) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Handlers returns the registered handlers in planner presentation order.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, 0, len(r.handlers))
	for _, t := range plan.StepTypes {
		if h, ok := r.handlers[t]; ok {
			out = append(out, h)
		}
	}
	return out
}
