package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/observability"
)

var (
	ErrNotFound     = errors.New("task not found")
	ErrInvalidState = errors.New("invalid task state for this operation")
)

// Runner executes one run of a task against its browser session and returns
// the serialised result.
type Runner interface {
	Run(ctx context.Context, t *Task, s *browser.Session) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, t *Task, s *browser.Session) (string, error)

func (f RunnerFunc) Run(ctx context.Context, t *Task, s *browser.Session) (string, error) {
	return f(ctx, t, s)
}

// Notifier is told about every run that reaches a terminal status.
type Notifier interface {
	Notify(ctx context.Context, t *Task) error
}

// SessionFactory creates a fresh, unlaunched browser session.
type SessionFactory func() (*browser.Session, error)

// DefaultInspectIdle is how long an unused inspection session survives
// outside debug mode.
const DefaultInspectIdle = 5 * time.Minute

type Options struct {
	// Debug keeps a finished run's session open for inspection.
	Debug bool
	// InspectIdle closes a direct-action session after this long without
	// use. Debug sessions never expire.
	InspectIdle time.Duration
	Notifier Notifier
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Status   *observability.Status
}

// execution is the live part of a run.
type execution struct {
	run     uint64
	session *browser.Session
	cancel  context.CancelFunc
}

// inspection is a session opened for direct actions outside a run.
type inspection struct {
	session *browser.Session
	idle    *time.Timer
}

func (in *inspection) stop() {
	if in.idle != nil {
		in.idle.Stop()
	}
}

// Manager owns every task and its running executions.
type Manager struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	order    []string
	running  map[string]*execution
	inspect  map[string]*inspection
	closed   bool
	wg       sync.WaitGroup
	baseCtx  context.Context
	shutdown context.CancelFunc

	runner     Runner
	newSession SessionFactory
	opts       Options
}

func NewManager(runner Runner, sessions SessionFactory, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = observability.NewNopLogger()
	}
	if opts.Status == nil {
		opts.Status = observability.NewStatus()
	}
	if opts.InspectIdle <= 0 {
		opts.InspectIdle = DefaultInspectIdle
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		tasks:      make(map[string]*Task),
		running:    make(map[string]*execution),
		inspect:    make(map[string]*inspection),
		baseCtx:    ctx,
		shutdown:   cancel,
		runner:     runner,
		newSession: sessions,
		opts:       opts,
	}
}

// Create registers a pending task. Priorities above 8 start immediately.
func (m *Manager) Create(spec Spec) *Task {
	t := New(spec, m.opts.Logger)
	m.mu.Lock()
	m.tasks[t.id] = t
	m.order = append(m.order, t.id)
	m.mu.Unlock()

	m.opts.Logger.Info("task created", "task_id", t.id, "query", t.query)
	if t.priority > 8 {
		if _, err := m.Start(t.id); err != nil {
			m.opts.Logger.Error("failed to auto-start task", "task_id", t.id, "error", err)
		}
	}
	return t
}

func (m *Manager) Get(id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// List returns every task in creation order.
func (m *Manager) List() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id])
	}
	return out
}

// Running reports whether a run of the task is live.
func (m *Manager) Running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// Start launches a new run in the background and returns at once. Starting
// a running task is a no-op. Any earlier in-flight run is cancelled first.
func (m *Manager) Start(id string) (*Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.closed {
		m.mu.Unlock()
		return t, fmt.Errorf("%w: manager is shut down", ErrInvalidState)
	}

	t.mu.Lock()
	if t.status == StatusRunning {
		t.mu.Unlock()
		m.mu.Unlock()
		m.opts.Logger.Warn("task already running", "task_id", id)
		return t, nil
	}
	if prev, ok := m.running[id]; ok {
		prev.cancel()
		delete(m.running, id)
	}
	t.run++
	run := t.run
	t.setStatusLocked(StatusRunning)
	t.mu.Unlock()

	// a run always gets a fresh browser
	if in, ok := m.inspect[id]; ok {
		delete(m.inspect, id)
		in.stop()
		go func() { _ = in.session.Close() }()
	}

	session, err := m.newSession()
	if err != nil {
		m.mu.Unlock()
		t.finish(run, StatusFailed, "", "failed to create browser session: "+err.Error())
		return t, nil
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	ex := &execution{run: run, session: session, cancel: cancel}
	m.running[id] = ex
	m.wg.Add(1)
	m.mu.Unlock()

	m.opts.Metrics.TaskStarted()
	m.opts.Status.SetStep(id, "starting")
	go m.execute(ctx, t, ex)
	return t, nil
}

func (m *Manager) execute(ctx context.Context, t *Task, ex *execution) {
	defer m.wg.Done()
	defer ex.cancel()

	t.AddLog("Executing query: " + t.query)
	t.SetProgress(10)

	var (
		result string
		err    error
	)
	if ctx.Err() == nil {
		result, err = m.runner.Run(ctx, t, ex.session)
	}

	var finished bool
	switch {
	case ctx.Err() != nil:
		finished = t.finish(ex.run, StatusStopped, "", "")
	case err != nil:
		m.opts.Logger.Error("task run failed", "task_id", t.id, "error", err)
		finished = t.finish(ex.run, StatusFailed, "", err.Error())
	default:
		finished = t.finish(ex.run, StatusCompleted, result, "")
		if finished {
			m.opts.Logger.Info("task completed", "task_id", t.id)
		}
	}

	m.release(t.id, ex)

	status := t.Status()
	if !m.Running(t.id) {
		m.opts.Status.Done(t.id)
	}
	if !status.Terminal() {
		// a newer run owns the task now
		m.opts.Metrics.TaskFinished("superseded")
		return
	}
	m.opts.Metrics.TaskFinished(string(status))
	if finished || status == StatusStopped {
		m.notify(t)
	}
}

// release unregisters the execution and closes or retains its session.
func (m *Manager) release(id string, ex *execution) {
	m.mu.Lock()
	if cur, ok := m.running[id]; ok && cur == ex {
		delete(m.running, id)
	}
	var stale *inspection
	keep := m.opts.Debug && !m.closed
	if keep {
		stale = m.inspect[id]
		m.inspect[id] = &inspection{session: ex.session}
	}
	m.mu.Unlock()

	if stale != nil && stale.session != ex.session {
		stale.stop()
		_ = stale.session.Close()
	}
	if !keep {
		if err := ex.session.Close(); err != nil {
			m.opts.Logger.Warn("failed to close browser session", "task_id", id, "error", err)
		}
	}
}

func (m *Manager) notify(t *Task) {
	if m.opts.Notifier == nil {
		return
	}
	if err := m.opts.Notifier.Notify(context.Background(), t); err != nil {
		m.opts.Logger.Warn("failed to send task notification", "task_id", t.id, "error", err)
	}
}

// Pause labels a running task as paused. The run itself keeps going.
func (m *Manager) Pause(id string) (*Task, error) {
	t, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusRunning {
		return t, fmt.Errorf("%w: cannot pause a %s task", ErrInvalidState, t.status)
	}
	t.setStatusLocked(StatusPaused)
	return t, nil
}

// Stop cancels a running or paused task.
func (m *Manager) Stop(id string) (*Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t.mu.Lock()
	if t.status != StatusRunning && t.status != StatusPaused {
		status := t.status
		t.mu.Unlock()
		m.mu.Unlock()
		return t, fmt.Errorf("%w: cannot stop a %s task", ErrInvalidState, status)
	}
	if ex, ok := m.running[id]; ok {
		ex.cancel()
		delete(m.running, id)
	}
	t.setStatusLocked(StatusStopped)
	t.mu.Unlock()
	m.mu.Unlock()

	m.opts.Logger.Info("task stopped", "task_id", id)
	return t, nil
}

// Resume restarts a paused task from scratch.
func (m *Manager) Resume(id string) (*Task, error) {
	t, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if s := t.Status(); s != StatusPaused {
		return t, fmt.Errorf("%w: cannot resume a %s task", ErrInvalidState, s)
	}
	return m.Start(id)
}

// Session returns the browser session for direct actions on a task: the
// live run's session, else an inspection session kept per task. Outside
// debug mode the inspection session is closed after InspectIdle without use.
func (m *Manager) Session(id string) (*browser.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if ex, ok := m.running[id]; ok {
		return ex.session, nil
	}
	if in, ok := m.inspect[id]; ok {
		if in.idle != nil {
			in.idle.Reset(m.opts.InspectIdle)
		}
		return in.session, nil
	}
	if m.closed {
		return nil, fmt.Errorf("%w: manager is shut down", ErrInvalidState)
	}
	s, err := m.newSession()
	if err != nil {
		return nil, err
	}
	in := &inspection{session: s}
	if !m.opts.Debug {
		in.idle = time.AfterFunc(m.opts.InspectIdle, func() { m.expire(id, in) })
	}
	m.inspect[id] = in
	return s, nil
}

// expire closes an idle inspection session unless it was replaced meanwhile.
func (m *Manager) expire(id string, in *inspection) {
	m.mu.Lock()
	if m.inspect[id] != in {
		m.mu.Unlock()
		return
	}
	delete(m.inspect, id)
	m.mu.Unlock()

	m.opts.Logger.Debug("closing idle inspection session", "task_id", id)
	if err := in.session.Close(); err != nil {
		m.opts.Logger.Warn("failed to close browser session", "task_id", id, "error", err)
	}
}

// Close cancels every run, waits for them to wind down (or ctx to expire)
// and closes all sessions.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.shutdown()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	m.mu.Lock()
	sessions := make([]*browser.Session, 0, len(m.inspect))
	for id, in := range m.inspect {
		in.stop()
		sessions = append(sessions, in.session)
		delete(m.inspect, id)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
	return err
}
