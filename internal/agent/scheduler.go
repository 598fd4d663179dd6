package agent

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rahul/wayfarer/internal/observability"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Scheduler beats the process heartbeat on a fixed interval and, when Out is
// set, prints a one-line status of the live task runs.
type Scheduler struct {
	Status   *observability.Status
	Logger   *observability.Logger
	Interval time.Duration
	Out      io.Writer
}

func NewScheduler(status *observability.Status, logger *observability.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Scheduler{Status: status, Logger: logger, Interval: interval}
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.Info("heartbeat scheduler started", "interval", s.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.beat()
		}
	}
}

func (s *Scheduler) beat() {
	s.Status.Heartbeat()
	s.Logger.LogHeartbeat()
	if s.Out != nil {
		fmt.Fprintln(s.Out, observability.StatusLine(s.Status.Snapshot()))
	}
}
