package observability

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeTask        EventType = "task"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	Output     io.Writer
	LLMLogPath string // empty disables the model exchange file
}

// Logger handles structured logging. Events go through slog; model
// exchanges are additionally appended to a rotating JSONL file.
type Logger struct {
	logger     *slog.Logger
	llmLogPath string
	maxSize    int64
	mu         sync.Mutex
}

func NewLogger(config LogConfig) *Logger {
	level := slog.LevelInfo
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		logger:     slog.New(handler),
		llmLogPath: config.LLMLogPath,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewNopLogger discards everything. Used by tests and library callers that
// don't care about logs.
func NewNopLogger() *Logger {
	return NewLogger(LogConfig{Output: io.Discard})
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	l.logger.Info(string(evt.Type),
		slog.String("type", string(evt.Type)),
		slog.String("task_id", evt.TaskID),
		slog.Any("data", evt.Data),
	)

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		data, err := json.Marshal(evt)
		if err != nil {
			l.logger.Error("failed to marshal event", "error", err)
			return
		}
		l.writeToFile(data)
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *Logger) writeToFile(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		l.logger.Error("failed to create log directory", "error", err)
		return
	}

	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.logger.Error("failed to open log file", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.logger.Error("failed to write to log file", "error", err)
	}
}

func (l *Logger) rotateLogs() {
	// keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogTask(taskID, message string) {
	l.Log(Event{
		Type:   EventTypeTask,
		TaskID: taskID,
		Data:   map[string]string{"message": message},
	})
}

func (l *Logger) LogPlan(taskID string, plan any) {
	l.Log(Event{
		Type:   EventTypePlan,
		TaskID: taskID,
		Data:   plan,
	})
}

func (l *Logger) LogStep(taskID string, index int, stepType, outcome string, elapsed time.Duration) {
	l.Log(Event{
		Type:   EventTypeStep,
		TaskID: taskID,
		Data: map[string]any{
			"index":      index,
			"step":       stepType,
			"outcome":    outcome,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

func (l *Logger) LogPolicy(taskID, action, target string, allowed bool) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		TaskID: taskID,
		Data: map[string]any{
			"action":  action,
			"target":  target,
			"allowed": allowed,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(taskID, purpose string, prompt any, response string, attempts int) {
	l.Log(Event{
		Type:   EventTypeLLM,
		TaskID: taskID,
		Data: map[string]any{
			"purpose":  purpose,
			"prompt":   prompt,
			"response": response,
			"attempts": attempts,
		},
	})
}
