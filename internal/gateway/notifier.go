package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/task"
)

// Route pairs a messenger with the chat that receives task notices.
type Route struct {
	Messenger Messenger
	Target    string
}

// Multi sends every finished task's summary to all of its routes.
type Multi struct {
	routes []Route
	logger *observability.Logger
}

var _ task.Notifier = (*Multi)(nil)

func NewMulti(logger *observability.Logger, routes ...Route) *Multi {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Multi{routes: routes, logger: logger}
}

func (m *Multi) Add(r Route) { m.routes = append(m.routes, r) }

func (m *Multi) Len() int { return len(m.routes) }

// Notify delivers to every route even when some fail; the failures are
// joined.
func (m *Multi) Notify(ctx context.Context, t *task.Task) error {
	text := Summary(t)
	var errs []error
	for _, r := range m.routes {
		if r.Target == "" {
			continue
		}
		if err := r.Messenger.Send(ctx, r.Target, text); err != nil {
			m.logger.Warn("task notification failed", "task_id", t.ID(), "gateway", r.Messenger.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Messenger.Name(), err))
		}
	}
	return errors.Join(errs...)
}
