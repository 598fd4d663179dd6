package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesLLMEventsToFile(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "llm.jsonl")
	l := NewLogger(LogConfig{Format: "json", Output: &out, LLMLogPath: path})

	l.LogLLM("t1", "plan", "prompt", "response", 1)
	l.LogTask("t1", "Task created")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"task_id":"t1"`)
	assert.Contains(t, out.String(), "Task created")
}

func TestLoggerRotatesLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	l := NewLogger(LogConfig{Output: &bytes.Buffer{}, LLMLogPath: path})
	l.maxSize = 10

	l.LogLLM("t1", "plan", "p", "first", 1)
	l.LogLLM("t1", "plan", "p", "second", 1)

	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Contains(t, string(old), "first")

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(cur), "second")
}

func TestLoggerLevelFilters(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(LogConfig{Level: "warn", Output: &out})
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
}

func TestStatusTracksRuns(t *testing.T) {
	s := NewStatus()
	s.SetStep("b", "navigate")
	s.SetStep("a", "extract")
	assert.Equal(t, []string{"a", "b"}, s.ActiveTaskIDs())

	s.Done("a")
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.ActiveRuns)
	assert.Equal(t, "navigate", snap.Steps["b"])
	assert.Contains(t, StatusLine(snap), "runs=1")
}

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.TaskStarted()
	m.TaskStarted()
	m.TaskFinished("completed")
	m.ObserveStep("navigate", "ok", time.Second)
	m.LLMAttempt("plan", "retry")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("plan", "retry")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.TaskFinished("failed") })
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
