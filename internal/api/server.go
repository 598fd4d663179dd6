// Package api exposes the task manager and direct browser actions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rahul/wayfarer/internal/agent"
	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/governance"
	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/plan"
	"github.com/rahul/wayfarer/internal/store"
	"github.com/rahul/wayfarer/internal/task"
)

// Actor runs direct browser actions on a task's session.
type Actor interface {
	Action(ctx context.Context, t *task.Task, s *browser.Session, action string, params plan.Params) (string, error)
}

// TranscriptLog holds the stored model exchanges of each task.
type TranscriptLog interface {
	List(ctx context.Context, taskID string, limit int) ([]store.Entry, error)
	Delete(ctx context.Context, taskID string) error
}

type Options struct {
	Actor       Actor
	Transcripts TranscriptLog
	Answerer    Answerer
	Templates   TemplateSource
	Gatherer    prometheus.Gatherer
	Status      *observability.Status
	Logger      *observability.Logger
	Debug       bool
}

type Server struct {
	engine *gin.Engine
	tasks  *task.Manager
	opts   Options
}

func NewServer(tasks *task.Manager, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewNopLogger()
	}
	if opts.Status == nil {
		opts.Status = observability.NewStatus()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(opts.Logger))

	s := &Server{engine: engine, tasks: tasks, opts: opts}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")

	tasks := api.Group("/tasks")
	{
		tasks.GET("", s.listTasks)
		tasks.POST("", s.createTask)
		tasks.GET("/:id", s.getTask)
		tasks.GET("/:id/status", s.taskStatus)
		tasks.GET("/:id/result", s.taskResult)
		tasks.GET("/:id/transcript", s.taskTranscript)
		tasks.DELETE("/:id/transcript", s.clearTranscript)
		tasks.POST("/:id/start", s.control(s.tasks.Start))
		tasks.POST("/:id/pause", s.control(s.tasks.Pause))
		tasks.POST("/:id/stop", s.control(s.tasks.Stop))
		tasks.POST("/:id/resume", s.control(s.tasks.Resume))
	}

	prompt := api.Group("/prompt")
	{
		prompt.POST("", s.handlePrompt)
		prompt.GET("/templates", s.promptTemplates)
	}

	web := api.Group("/browser/tasks")
	{
		web.POST("", s.createWebTask)
		web.POST("/:id/action", s.runAction)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"runs":   s.opts.Status.Snapshot(),
		"active": s.opts.Status.ActiveTaskIDs(),
	})
}

type createTaskRequest struct {
	Query       string    `json:"query" binding:"required"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
	Type        task.Type `json:"type"`
}

func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	t := s.tasks.Create(task.Spec{
		Query:       req.Query,
		Description: req.Description,
		Priority:    req.Priority,
		Type:        req.Type,
	})
	c.JSON(http.StatusCreated, t)
}

type webTaskRequest struct {
	Prompt   string `json:"prompt" binding:"required"`
	Priority int    `json:"priority"`
}

// createWebTask creates a browser task from a prompt and starts it.
func (s *Server) createWebTask(c *gin.Context) {
	var req webTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	t := s.tasks.Create(task.Spec{
		Query:     req.Prompt,
		Prompt:    req.Prompt,
		Priority:  req.Priority,
		IsWebTask: true,
	})
	if _, err := s.tasks.Start(t.ID()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, t)
}

func (s *Server) listTasks(c *gin.Context) {
	list := s.tasks.List()
	views := make([]task.View, 0, len(list))
	for _, t := range list {
		views = append(views, t.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{"tasks": views})
}

func (s *Server) getTask(c *gin.Context) {
	t, err := s.tasks.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) taskStatus(c *gin.Context) {
	t, err := s.tasks.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       t.ID(),
		"status":   t.Status(),
		"progress": t.Progress(),
		"running":  s.tasks.Running(t.ID()),
		"state":    t.State(),
	})
}

// taskResult returns the stored result, embedded as JSON when it is JSON.
func (s *Server) taskResult(c *gin.Context) {
	t, err := s.tasks.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	res, ok := t.Result()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"id": t.ID(), "status": t.Status(), "error": "task has no result"})
		return
	}
	var body any = res
	if json.Valid([]byte(res)) {
		body = json.RawMessage(res)
	}
	c.JSON(http.StatusOK, gin.H{"id": t.ID(), "status": t.Status(), "result": body})
}

func (s *Server) taskTranscript(c *gin.Context) {
	t, err := s.tasks.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if s.opts.Transcripts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transcript storage is disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := s.opts.Transcripts.List(c.Request.Context(), t.ID(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": t.ID(), "entries": entries})
}

func (s *Server) clearTranscript(c *gin.Context) {
	t, err := s.tasks.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if s.opts.Transcripts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transcript storage is disabled"})
		return
	}
	if err := s.opts.Transcripts.Delete(c.Request.Context(), t.ID()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) control(op func(id string) (*task.Task, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := op(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

type actionRequest struct {
	Action string      `json:"action" binding:"required"`
	Params plan.Params `json:"params"`
}

func (s *Server) runAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if s.opts.Actor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "browser actions are disabled"})
		return
	}
	t, err := s.tasks.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	session, err := s.tasks.Session(t.ID())
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := s.opts.Actor.Action(c.Request.Context(), t, session, req.Action, req.Params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": t.ID(), "action": req.Action, "result": out})
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, agent.ErrUnsupportedAction), errors.Is(err, agent.ErrMissingParam):
		return http.StatusBadRequest
	case errors.Is(err, governance.ErrDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
