// Package task holds the task model and the manager that runs tasks in the
// background.
package task

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/plan"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether a run has ended in s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

type Type string

const (
	TypeAnalysis      Type = "analysis"
	TypeExtraction    Type = "extraction"
	TypeCustomization Type = "customization"
)

const DefaultPriority = 5

// Spec is what a caller supplies to create a task.
type Spec struct {
	Query       string `json:"query"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	Type        Type   `json:"type,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	IsWebTask   bool   `json:"isWebTask,omitempty"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// State is the scratch state a run records while it works.
type State struct {
	Status                 string           `json:"status,omitempty"`
	Plan                   *plan.Plan       `json:"plan,omitempty"`
	CurrentStep            int              `json:"currentStep,omitempty"`
	CurrentStepDescription string           `json:"currentStepDescription,omitempty"`
	CurrentURL             string           `json:"currentUrl,omitempty"`
	Result                 any              `json:"result,omitempty"`
	SatisfactionScore      *float64         `json:"satisfactionScore,omitempty"`
	Evaluation             *plan.Evaluation `json:"evaluation,omitempty"`
	Error                  string           `json:"error,omitempty"`
	PageDiagnostic         any              `json:"pageDiagnostic,omitempty"`
	ImageURLs              []string         `json:"imageUrls,omitempty"`
}

// Task is one natural-language goal and the record of its runs. All access
// goes through methods that hold the task mutex.
type Task struct {
	mu sync.Mutex

	id          string
	query       string
	description string
	priority    int
	typ         Type
	prompt      string
	isWebTask   bool

	status    Status
	createdAt time.Time
	updatedAt time.Time
	progress  int
	logs      []LogEntry
	err       *string
	result    *string
	state     State

	// run counts Start calls; a run may only finish the task while it is
	// still the latest one.
	run uint64

	logger *observability.Logger
}

// New creates a pending task from spec.
func New(spec Spec, logger *observability.Logger) *Task {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	now := time.Now()
	t := &Task{
		id:          uuid.NewString(),
		query:       spec.Query,
		description: spec.Description,
		priority:    spec.Priority,
		typ:         spec.Type,
		prompt:      spec.Prompt,
		isWebTask:   spec.IsWebTask,
		status:      StatusPending,
		createdAt:   now,
		updatedAt:   now,
		logger:      logger,
	}
	if t.description == "" {
		t.description = t.query
	}
	if t.priority == 0 {
		t.priority = DefaultPriority
	}
	if t.typ == "" {
		t.typ = TypeExtraction
	}
	t.AddLog("Task created: " + t.description)
	return t
}

func (t *Task) ID() string { return t.id }

func (t *Task) Query() string { return t.query }

func (t *Task) Description() string { return t.description }

func (t *Task) Priority() int { return t.priority }

// Prompt returns the original prompt, falling back to the query.
func (t *Task) Prompt() string {
	if t.prompt != "" {
		return t.prompt
	}
	return t.query
}

func (t *Task) IsWebTask() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isWebTask
}

func (t *Task) MarkWebTask() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isWebTask = true
	t.updatedAt = time.Now()
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *Task) Result() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil {
		return "", false
	}
	return *t.result, true
}

func (t *Task) Error() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		return "", false
	}
	return *t.err, true
}

// Logs returns a copy of the log trail.
func (t *Task) Logs() []LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LogEntry, len(t.logs))
	copy(out, t.logs)
	return out
}

// State returns a copy of the scratch state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	s.ImageURLs = append([]string(nil), t.state.ImageURLs...)
	return s
}

// AddLog appends a timestamped message to the log trail.
func (t *Task) AddLog(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addLogLocked(message)
}

// Logf is AddLog with formatting.
func (t *Task) Logf(format string, args ...any) {
	t.AddLog(fmt.Sprintf(format, args...))
}

func (t *Task) addLogLocked(message string) {
	t.logs = append(t.logs, LogEntry{Timestamp: time.Now(), Message: message})
	t.logger.LogTask(t.id, message)
}

// SetProgress records progress clamped to [0,100].
func (t *Task) SetProgress(p int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = max(0, min(100, p))
	t.updatedAt = time.Now()
}

func (t *Task) SetResult(result string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = &result
	t.updatedAt = time.Now()
	t.addLogLocked("Result set")
}

func (t *Task) SetError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setErrorLocked(msg)
}

func (t *Task) setErrorLocked(msg string) {
	t.err = &msg
	t.updatedAt = time.Now()
	t.addLogLocked("Error: " + msg)
}

// UpdateState applies fn to the scratch state under the task lock.
func (t *Task) UpdateState(fn func(s *State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.state)
	t.updatedAt = time.Now()
}

func (t *Task) setStatusLocked(s Status) {
	t.status = s
	t.updatedAt = time.Now()
	t.addLogLocked("Status updated to: " + string(s))
}

// finish moves the task to a terminal status on behalf of run. It refuses
// when a newer run exists or the task already left running/paused, so a
// stopped run never overwrites the stop.
func (t *Task) finish(run uint64, s Status, result, errMsg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.run != run || (t.status != StatusRunning && t.status != StatusPaused) {
		return false
	}
	switch s {
	case StatusCompleted:
		t.progress = 100
		t.result = &result
		t.addLogLocked("Result set")
	case StatusFailed:
		t.setErrorLocked(errMsg)
	case StatusStopped:
		t.addLogLocked("Task aborted by user request")
	}
	t.setStatusLocked(s)
	return true
}

// View is a point-in-time copy of a task.
type View struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Progress    int        `json:"progress"`
	Logs        []LogEntry `json:"logs"`
	Error       *string    `json:"error"`
	Result      *string    `json:"result"`
	IsWebTask   bool       `json:"isWebTask"`
	State       State      `json:"state"`
}

func (t *Task) Snapshot() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	logs := make([]LogEntry, len(t.logs))
	copy(logs, t.logs)
	return View{
		ID:          t.id,
		Query:       t.query,
		Description: t.description,
		Priority:    t.priority,
		Type:        t.typ,
		Status:      t.status,
		CreatedAt:   t.createdAt,
		UpdatedAt:   t.updatedAt,
		Progress:    t.progress,
		Logs:        logs,
		Error:       t.err,
		Result:      t.result,
		IsWebTask:   t.isWebTask,
		State:       t.state,
	}
}

func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Snapshot())
}
