// Package gateway connects chat services to the task manager: finished
// tasks are reported to configured chats, and chat commands can create and
// inspect tasks.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/task"
	"github.com/rahul/wayfarer/pkg/config"
)

var ErrUnknownGateway = errors.New("unknown gateway")

// Messenger delivers text to a chat on one service.
type Messenger interface {
	Name() string
	Send(ctx context.Context, target, text string) error
}

// Listener receives chat commands until Stop is called or ctx ends.
type Listener interface {
	Start(ctx context.Context) error
	Stop() error
}

// TaskService is the part of the task manager chat commands drive.
type TaskService interface {
	Create(spec task.Spec) *task.Task
	Start(id string) (*task.Task, error)
	Get(id string) (*task.Task, error)
}

// Open connects the named gateway. The returned value also implements
// Listener.
func Open(name string, gc config.GatewayConfig, tasks TaskService, logger *observability.Logger) (Messenger, error) {
	switch name {
	case "telegram":
		return NewTelegramGateway(gc.Token, gc.Target, tasks, logger)
	case "discord":
		return NewDiscordGateway(gc.Token, gc.Target, tasks, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
}

const maxSummaryResult = 1500

// Summary renders the completion notice for a task.
func Summary(t *task.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s %s\n", t.ID(), t.Status())
	fmt.Fprintf(&b, "Query: %s\n", t.Query())
	if res, ok := t.Result(); ok {
		fmt.Fprintf(&b, "Result: %s\n", clip(res, maxSummaryResult))
	}
	if msg, ok := t.Error(); ok {
		fmt.Fprintf(&b, "Error: %s\n", msg)
	}
	return strings.TrimRight(b.String(), "\n")
}

const usage = `Commands:
/task <query> - create and start a browser task
/status <id> - show a task's status
/help - show this message`

// HandleCommand executes one chat command and returns the reply.
func HandleCommand(tasks TaskService, text string) string {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(text), " ")
	arg = strings.TrimSpace(arg)
	// telegram appends the bot name in groups: /task@wayfarer_bot
	cmd, _, _ = strings.Cut(strings.ToLower(cmd), "@")

	switch cmd {
	case "/task", "/run":
		if arg == "" {
			return "Usage: /task <query>"
		}
		t := tasks.Create(task.Spec{Query: arg})
		if _, err := tasks.Start(t.ID()); err != nil {
			return fmt.Sprintf("Task %s created but could not start: %v", t.ID(), err)
		}
		return fmt.Sprintf("Task %s started: %s", t.ID(), arg)
	case "/status":
		if arg == "" {
			return "Usage: /status <id>"
		}
		t, err := tasks.Get(arg)
		if err != nil {
			return fmt.Sprintf("Task %s: %v", arg, err)
		}
		return fmt.Sprintf("Task %s: %s (%d%%)", t.ID(), t.Status(), t.Progress())
	default:
		return usage
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
