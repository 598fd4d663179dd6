package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rahul/wayfarer/internal/llm"
	"github.com/rahul/wayfarer/internal/plan"
	"github.com/rahul/wayfarer/internal/task"
)

// Answerer replies to prompts that need no browsing.
type Answerer interface {
	Answer(ctx context.Context, taskID, question string) llm.Answer
}

// TemplateSource lists the prompt templates offered to clients.
type TemplateSource interface {
	Templates() ([]llm.Template, error)
}

type promptRequest struct {
	Prompt   string `json:"prompt" binding:"required"`
	Priority int    `json:"priority"`
}

// handlePrompt routes a free-form prompt either to a new web task or, when
// it needs no browser and an Answerer is set, to a direct model answer.
func (s *Server) handlePrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	in := plan.Interpret(req.Prompt)

	if !plan.WantsBrowser(req.Prompt) && s.opts.Answerer != nil {
		ans := s.opts.Answerer.Answer(c.Request.Context(), "", req.Prompt)
		status := http.StatusOK
		if ans.Failed() {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"success":        !ans.Failed(),
			"webAgent":       false,
			"interpretation": in,
			"answer":         ans,
		})
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
	s.opts.Logger.Info("prompt routed to web task", "task_id", t.ID(), "action", in.Action, "target", in.Target)
	c.JSON(http.StatusAccepted, gin.H{
		"success":        true,
		"message":        "task started, poll its status for the result",
		"taskId":         t.ID(),
		"webAgent":       true,
		"interpretation": in,
	})
}

func (s *Server) promptTemplates(c *gin.Context) {
	if s.opts.Templates == nil {
		c.JSON(http.StatusOK, gin.H{"templates": []llm.Template{}})
		return
	}
	ts, err := s.opts.Templates.Templates()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": ts})
}
