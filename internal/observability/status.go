package observability

import (
	"sort"
	"sync"
	"time"
)

// Status tracks which task runs are live and when the process last
// reported a heartbeat.
type Status struct {
	mu            sync.RWMutex
	active        map[string]string
	startedAt     time.Time
	lastHeartbeat time.Time
}

type StatusSnapshot struct {
	ActiveRuns    int               `json:"activeRuns"`
	Steps         map[string]string `json:"steps"`
	Uptime        string            `json:"uptime"`
	LastHeartbeat time.Time         `json:"lastHeartbeat"`
}

func NewStatus() *Status {
	now := time.Now()
	return &Status{
		active:        make(map[string]string),
		startedAt:     now,
		lastHeartbeat: now,
	}
}

// SetStep records the step a running task is currently on.
func (s *Status) SetStep(taskID, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[taskID] = step
}

// Done forgets a task once its run ends.
func (s *Status) Done(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, taskID)
}

// Heartbeat updates the last heartbeat time.
func (s *Status) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := make(map[string]string, len(s.active))
	for id, step := range s.active {
		steps[id] = step
	}
	return StatusSnapshot{
		ActiveRuns:    len(s.active),
		Steps:         steps,
		Uptime:        time.Since(s.startedAt).Round(time.Second).String(),
		LastHeartbeat: s.lastHeartbeat,
	}
}

// ActiveTaskIDs lists running task IDs in sorted order.
func (s *Status) ActiveTaskIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
