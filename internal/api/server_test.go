package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/wayfarer/internal/agent"
	"github.com/rahul/wayfarer/internal/browser"
	"github.com/rahul/wayfarer/internal/browser/browsertest"
	"github.com/rahul/wayfarer/internal/governance"
	"github.com/rahul/wayfarer/internal/llm"
	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/plan"
	"github.com/rahul/wayfarer/internal/store"
	"github.com/rahul/wayfarer/internal/task"
)

type fakeActor struct {
	calls []string
}

func (a *fakeActor) Action(_ context.Context, t *task.Task, s *browser.Session, action string, params plan.Params) (string, error) {
	a.calls = append(a.calls, action)
	switch action {
	case agent.ActionNavigate:
		if strings.HasPrefix(params.String("url"), "file:") {
			return "", fmt.Errorf("%w: local files", governance.ErrDenied)
		}
		return "navigated", nil
	case agent.ActionFind:
		return "", agent.ErrMissingParam
	default:
		return "", agent.ErrUnsupportedAction
	}
}

type fakeAnswerer struct {
	questions []string
}

func (a *fakeAnswerer) Answer(_ context.Context, _, question string) llm.Answer {
	a.questions = append(a.questions, question)
	if strings.Contains(question, "fail") {
		return llm.Answer{Object: map[string]any{"error": "model offline", "success": false}}
	}
	return llm.Answer{Text: "Four."}
}

type testServer struct {
	srv         *Server
	manager     *task.Manager
	actor       *fakeActor
	answerer    *fakeAnswerer
	transcripts *store.TranscriptStore
	release     chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{actor: &fakeActor{}, answerer: &fakeAnswerer{}, release: make(chan struct{})}

	runner := task.RunnerFunc(func(ctx context.Context, tk *task.Task, s *browser.Session) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ts.release:
		}
		return `{"answer":"42"}`, nil
	})
	ts.manager = task.NewManager(runner, func() (*browser.Session, error) {
		return browser.NewSession(browsertest.New()), nil
	}, task.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ts.manager.Close(ctx)
	})

	var err error
	ts.transcripts, err = store.NewTranscriptStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.transcripts.Close() })

	reg := prometheus.NewRegistry()
	_, err = observability.NewMetrics(reg)
	require.NoError(t, err)

	ts.srv = NewServer(ts.manager, Options{
		Actor:       ts.actor,
		Transcripts: ts.transcripts,
		Answerer:    ts.answerer,
		Templates:   llm.NewPromptManager(""),
		Gatherer:    reg,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestCreateAndGetTask(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/tasks", `{"query":"find boots","type":"analysis"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := body["id"].(string)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "analysis", body["type"])

	rec, body = ts.do(t, http.MethodGet, "/api/tasks/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "find boots", body["query"])

	rec, body = ts.do(t, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["tasks"], 1)
}

func TestCreateTaskRequiresQuery(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodPost, "/api/tasks", `{"description":"no query"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "invalid request")
}

func TestUnknownTaskIs404(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/tasks/nope", "/api/tasks/nope/status", "/api/tasks/nope/result", "/api/tasks/nope/transcript"} {
		rec, _ := ts.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec, _ := ts.do(t, http.MethodPost, "/api/tasks/nope/start", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, http.MethodPost, "/api/tasks", `{"query":"q"}`)
	id := body["id"].(string)

	rec, _ := ts.do(t, http.MethodPost, "/api/tasks/"+id+"/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/tasks/"+id+"/result", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = ts.do(t, http.MethodPost, "/api/tasks/"+id+"/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["status"])

	_, body = ts.do(t, http.MethodGet, "/api/tasks/"+id+"/status", "")
	assert.Equal(t, true, body["running"])

	close(ts.release)
	require.Eventually(t, func() bool {
		_, b := ts.do(t, http.MethodGet, "/api/tasks/"+id+"/status", "")
		return b["status"] == "completed"
	}, 2*time.Second, 5*time.Millisecond)

	rec, body = ts.do(t, http.MethodGet, "/api/tasks/"+id+"/result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"answer": "42"}, body["result"])

	rec, _ = ts.do(t, http.MethodPost, "/api/tasks/"+id+"/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStopRunningTask(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, http.MethodPost, "/api/browser/tasks", `{"prompt":"visit https://example.com"}`)
	id := body["id"].(string)
	assert.Equal(t, true, body["isWebTask"])

	rec, body := ts.do(t, http.MethodPost, "/api/tasks/"+id+"/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", body["status"])
}

func TestBrowserActionErrors(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, http.MethodPost, "/api/tasks", `{"query":"q"}`)
	id := body["id"].(string)
	path := "/api/browser/tasks/" + id + "/action"

	rec, body := ts.do(t, http.MethodPost, path, `{"action":"navigate","params":{"url":"https://example.com"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "navigated", body["result"])

	rec, _ = ts.do(t, http.MethodPost, path, `{"action":"navigate","params":{"url":"file:///etc/hosts"}}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, path, `{"action":"find"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, path, `{"action":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/browser/tasks/nope/action", `{"action":"navigate"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{"navigate", "navigate", "find", "teleport"}, ts.actor.calls)
}

func TestTranscript(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, http.MethodPost, "/api/tasks", `{"query":"q"}`)
	id := body["id"].(string)

	ctx := context.Background()
	require.NoError(t, ts.transcripts.Append(ctx, id, "user", "plan this"))
	require.NoError(t, ts.transcripts.Append(ctx, id, "assistant", `{"goal":"q"}`))

	rec, body := ts.do(t, http.MethodGet, "/api/tasks/"+id+"/transcript?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)

	rec, _ = ts.do(t, http.MethodDelete, "/api/tasks/"+id+"/transcript", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, body = ts.do(t, http.MethodGet, "/api/tasks/"+id+"/transcript", "")
	assert.Empty(t, body["entries"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Empty(t, body["active"])

	rec, _ = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wayfarer_")
}

func TestPromptStartsWebTask(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodPost, "/api/prompt", `{"prompt":"Visita https://example.com y extrae el título"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, body["webAgent"])
	in := body["interpretation"].(map[string]any)
	assert.Equal(t, plan.IntentExtract, in["action"])
	assert.Equal(t, "https://example.com", in["target"])

	id := body["taskId"].(string)
	_, body = ts.do(t, http.MethodGet, "/api/tasks/"+id+"/status", "")
	assert.Equal(t, true, body["running"])
	assert.Empty(t, ts.answerer.questions)
}

func TestPromptAnswersDirectly(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodPost, "/api/prompt", `{"prompt":"¿Cuánto es 2 + 2?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["webAgent"])
	assert.Equal(t, "Four.", body["answer"])
	assert.Equal(t, []string{"¿Cuánto es 2 + 2?"}, ts.answerer.questions)
	assert.Empty(t, ts.manager.List())

	rec, body = ts.do(t, http.MethodPost, "/api/prompt", `{"prompt":"this will fail"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = ts.do(t, http.MethodPost, "/api/prompt", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPromptTemplates(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodGet, "/api/prompt/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	templates := body["templates"].([]any)
	require.Len(t, templates, 3)
	assert.Equal(t, "search", templates[0].(map[string]any)["id"])
}
