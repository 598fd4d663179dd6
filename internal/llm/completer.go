// Package llm talks to the language-model backend: plan generation, content
// shaping and run evaluation, with retry and JSON recovery.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CallOptions are per-request generation settings. Zero values fall back to
// the backend defaults.
type CallOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Or fills the zero fields of o from d.
func (o CallOptions) Or(d CallOptions) CallOptions {
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.Temperature == 0 {
		o.Temperature = d.Temperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = d.MaxTokens
	}
	return o
}

// Completer sends one chat request and returns the assistant text.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts CallOptions) (string, error)
}

// ErrTransient marks backend failures worth retrying: rate limiting and
// temporary unavailability.
var ErrTransient = errors.New("model backend temporarily unavailable")

// StatusError carries the HTTP status a backend answered with.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model backend returned status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Is makes rate-limit and busy statuses match ErrTransient.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransient && transientStatus(e.StatusCode)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

var transientPhrases = []string{
	"429", "503", "rate limit", "too many requests", "service unavailable", "overloaded", "server busy",
}

// IsTransient reports whether err should be retried. Clients that do not
// expose a status code are classified by their error text.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
