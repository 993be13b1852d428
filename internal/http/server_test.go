package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/events"
	"github.com/fyrsmithlabs/pland/internal/state"
	"github.com/fyrsmithlabs/pland/internal/task"
	"github.com/fyrsmithlabs/pland/internal/taskmgr"
	"github.com/fyrsmithlabs/pland/internal/validator"
)

const testPlan = `# Implementation Plan

- [ ] 1. First task
  - [ ] 1.1 First child
- [ ] 2. Second task (optional)
`

func newTestServer(t *testing.T) (*Server, *taskmgr.Manager, *events.Broker) {
	t.Helper()

	g, err := task.ParseTasksDocument([]byte(testPlan))
	require.NoError(t, err)
	store, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	require.NoError(t, err)
	mgr, err := taskmgr.NewManager("demo", g, store, zap.NewNop())
	require.NoError(t, err)

	broker := events.NewBroker(zap.NewNop())
	g.AddListener(broker.Dispatch)

	srv, err := NewServer(mgr, broker, validator.NewService(nil, zap.NewNop()), zap.NewNop(), nil)
	require.NoError(t, err)
	return srv, mgr, broker
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func doJSONRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestHandleState(t *testing.T) {
	srv, mgr, _ := newTestServer(t)
	require.NoError(t, mgr.QueueTask("1.1"))
	require.NoError(t, mgr.StartTask("1.1"))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var st state.ExecutionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "demo", st.CurrentSpec)
	assert.Equal(t, "1.1", st.CurrentTask)
}

func TestHandleTasks(t *testing.T) {
	srv, mgr, _ := newTestServer(t)
	require.NoError(t, mgr.QueueTask("1.1"))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/tasks")
	require.Equal(t, http.StatusOK, rec.Code)

	var body TasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tasks, 3)

	// Depth-first document order.
	assert.Equal(t, "1", body.Tasks[0].ID)
	assert.Equal(t, "1.1", body.Tasks[1].ID)
	assert.Equal(t, "1", body.Tasks[1].ParentID)
	assert.Equal(t, task.StatusQueued, body.Tasks[1].Status)
	assert.Equal(t, "2", body.Tasks[2].ID)
	assert.True(t, body.Tasks[2].Optional)

	assert.Equal(t, 2, body.Counts[task.StatusNotStarted])
	assert.Equal(t, 1, body.Counts[task.StatusQueued])
}

func TestHandleNextTask(t *testing.T) {
	srv, mgr, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/tasks/next")
	require.Equal(t, http.StatusOK, rec.Code)

	var body NextTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Task)
	assert.Equal(t, "1.1", body.Task.ID)
	assert.Equal(t, task.StatusQueued, body.Task.Status)

	// The queued task blocks further selection until it resolves.
	require.NoError(t, mgr.StartTask("1.1"))
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/tasks/next")
	require.Equal(t, http.StatusOK, rec.Code)
	body = NextTaskResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body.Task)
}

func TestTaskLifecycleEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/tasks/next")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/tasks/1.1/start")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/tasks/1.1/complete")
	require.Equal(t, http.StatusOK, rec.Code)

	var done CompleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Equal(t, "1.1", done.Completed)
	require.NotNil(t, done.Next)
	assert.Equal(t, "1", done.Next.ID)
}

func TestHandleStartTask_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/tasks/nope/start")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Not queued yet.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/tasks/1.1/start")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleFailTask(t *testing.T) {
	srv, mgr, _ := newTestServer(t)
	require.NoError(t, mgr.QueueTask("1.1"))
	require.NoError(t, mgr.StartTask("1.1"))

	rec := doJSONRequest(t, srv, http.MethodPost, "/api/v1/tasks/1.1/fail",
		`{"error_message":"--- FAIL: TestWidget","failed_test":"TestWidget"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body FailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.ErrorContext)
	assert.Equal(t, "1.1", body.ErrorContext.TaskID)
	require.NotNil(t, body.Analysis)
	// Attempts are consumed by the correction loop, not by the report.
	assert.Equal(t, 0, body.Attempts)
	assert.Equal(t, 3, body.RemainingAttempts)
	assert.False(t, body.Exhausted)

	// The task is back to not_started and no task is in flight.
	got, err := mgr.Graph().Get("1.1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusNotStarted, got.Status)
}

func TestHandleFailTask_RequiresMessage(t *testing.T) {
	srv, mgr, _ := newTestServer(t)
	require.NoError(t, mgr.QueueTask("1.1"))
	require.NoError(t, mgr.StartTask("1.1"))

	rec := doJSONRequest(t, srv, http.MethodPost, "/api/v1/tasks/1.1/fail", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSkipTask(t *testing.T) {
	srv, mgr, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/tasks/2/skip")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, mgr.State().SkippedTasks, "2")

	// Non-optional tasks cannot be skipped.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/tasks/1/skip")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleValidateFile(t *testing.T) {
	srv, _, _ := newTestServer(t)

	path := filepath.Join(t.TempDir(), "artifact.txt")
	require.NoError(t, os.WriteFile(path, []byte("built"), 0o644))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/validate/file?path="+path)
	require.Equal(t, http.StatusOK, rec.Code)

	var result validator.ValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Passed)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/validate/file?path="+filepath.Join(t.TempDir(), "missing"))
	require.Equal(t, http.StatusOK, rec.Code)
	result = validator.ValidationResult{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Passed)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/validate/file")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleValidateHTTP_RequiresURL(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/validate/http")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvents_StreamsTransitions(t *testing.T) {
	srv, mgr, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.Handler().ServeHTTP(rec, req)
	}()

	// Let the handler subscribe before the transition fires.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, mgr.QueueTask("1.1"))
	time.Sleep(100 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "), "body: %q", body)

	var ev task.TransitionEvent
	payload := strings.TrimSpace(strings.TrimPrefix(strings.SplitN(body, "\n\n", 2)[0], "data: "))
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))
	assert.Equal(t, "1.1", ev.TaskID)
	assert.Equal(t, task.StatusQueued, ev.NewStatus)
}

func TestHandleMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewServer_Validation(t *testing.T) {
	broker := events.NewBroker(zap.NewNop())
	val := validator.NewService(nil, zap.NewNop())

	_, err := NewServer(nil, broker, val, zap.NewNop(), nil)
	assert.Error(t, err)

	g, err := task.ParseTasksDocument([]byte(testPlan))
	require.NoError(t, err)
	store, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	require.NoError(t, err)
	mgr, err := taskmgr.NewManager("demo", g, store, zap.NewNop())
	require.NoError(t, err)

	_, err = NewServer(mgr, nil, val, zap.NewNop(), nil)
	assert.Error(t, err)

	_, err = NewServer(mgr, broker, nil, zap.NewNop(), nil)
	assert.Error(t, err)
}
