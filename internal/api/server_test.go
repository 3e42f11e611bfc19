package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"

	"cronbeat/internal/admin"
	"cronbeat/internal/dispatch"
	"cronbeat/internal/registry"
	"cronbeat/internal/store"
)

type fakeDispatcher struct{ n int }

func (f *fakeDispatcher) Dispatch(ctx context.Context, m dispatch.Message) (string, error) {
	f.n++
	return fmt.Sprintf("msg_%d", f.n), nil
}

func (f *fakeDispatcher) Close() error { return nil }

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := store.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	reg := registry.New()
	reg.Register("tasks.cleanup_expired_tokens", "")
	svc := admin.NewService(store.NewSQLiteRepo(db), &fakeDispatcher{}, reg)
	return NewServer(svc)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("content-type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func createInterval(t *testing.T, h http.Handler) string {
	t.Helper()
	w := doJSON(t, h, "POST", "/api/schedules/intervals", map[string]any{
		"every": 15, "period": "minutes",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create interval: %d %s", w.Code, w.Body.String())
	}
	return decode[map[string]any](t, w)["id"].(string)
}

func createTask(t *testing.T, h http.Handler, name, intervalID string) string {
	t.Helper()
	w := doJSON(t, h, "POST", "/api/tasks", map[string]any{
		"name":        name,
		"task":        "tasks.cleanup_expired_tokens",
		"interval_id": intervalID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create task: %d %s", w.Code, w.Body.String())
	}
	return decode[map[string]any](t, w)["id"].(string)
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, "GET", "/health", nil)
	if w.Code != 200 || w.Body.String() != "ok" {
		t.Fatalf("health: %d %q", w.Code, w.Body.String())
	}
}

func TestIntervalEndpoints(t *testing.T) {
	h := newTestServer(t)
	id := createInterval(t, h)

	w := doJSON(t, h, "GET", "/api/schedules/intervals", nil)
	if w.Code != 200 {
		t.Fatalf("list intervals: %d", w.Code)
	}
	items := decode[[]map[string]any](t, w)
	if len(items) != 1 {
		t.Fatalf("got %d intervals", len(items))
	}

	if w := doJSON(t, h, "DELETE", "/api/schedules/intervals/"+id, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete interval: %d", w.Code)
	}
	if w := doJSON(t, h, "DELETE", "/api/schedules/intervals/"+id, nil); w.Code != http.StatusNotFound {
		t.Fatalf("delete missing interval: %d", w.Code)
	}
}

func TestInvalidIntervalRejected(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, "POST", "/api/schedules/intervals", map[string]any{
		"every": -1, "period": "seconds",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative interval: %d", w.Code)
	}
}

func TestInvalidCrontabRejected(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, "POST", "/api/schedules/crontabs", map[string]any{
		"minute": "61",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad crontab: %d %s", w.Code, w.Body.String())
	}
}

func TestTaskLifecycle(t *testing.T) {
	h := newTestServer(t)
	intervalID := createInterval(t, h)
	taskID := createTask(t, h, "cleanup", intervalID)

	w := doJSON(t, h, "GET", "/api/tasks/"+taskID, nil)
	if w.Code != 200 {
		t.Fatalf("get task: %d", w.Code)
	}
	task := decode[map[string]any](t, w)
	if task["name"] != "cleanup" || task["enabled"] != true {
		t.Errorf("task = %v", task)
	}

	// Disable, list with filter, re-enable.
	if w := doJSON(t, h, "POST", "/api/tasks/"+taskID+"/disable", nil); w.Code != 200 {
		t.Fatalf("disable: %d", w.Code)
	}
	w = doJSON(t, h, "GET", "/api/tasks?enabled=true", nil)
	env := decode[map[string]any](t, w)
	if env["total"].(float64) != 0 {
		t.Errorf("enabled filter after disable: %v", env)
	}
	if w := doJSON(t, h, "POST", "/api/tasks/"+taskID+"/enable", nil); w.Code != 200 {
		t.Fatalf("enable: %d", w.Code)
	}

	// Update description.
	w = doJSON(t, h, "PUT", "/api/tasks/"+taskID, map[string]any{"description": "nightly cleanup"})
	if w.Code != 200 {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]any](t, w)["description"]; got != "nightly cleanup" {
		t.Errorf("description = %v", got)
	}

	if w := doJSON(t, h, "DELETE", "/api/tasks/"+taskID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete task: %d", w.Code)
	}
}

func TestTaskWithoutBindingRejected(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, "POST", "/api/tasks", map[string]any{
		"name": "t", "task": "tasks.cleanup_expired_tokens",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unbound task: %d %s", w.Code, w.Body.String())
	}
}

func TestDeleteInUseIntervalConflicts(t *testing.T) {
	h := newTestServer(t)
	intervalID := createInterval(t, h)
	createTask(t, h, "cleanup", intervalID)

	w := doJSON(t, h, "DELETE", "/api/schedules/intervals/"+intervalID, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete in-use interval: %d", w.Code)
	}
}

func TestRunNowAndResults(t *testing.T) {
	h := newTestServer(t)
	intervalID := createInterval(t, h)
	taskID := createTask(t, h, "cleanup", intervalID)

	w := doJSON(t, h, "POST", "/api/tasks/"+taskID+"/run", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("run now: %d %s", w.Code, w.Body.String())
	}
	dispatchID := decode[map[string]string](t, w)["dispatch_id"]
	if dispatchID == "" {
		t.Fatal("no dispatch id")
	}

	w = doJSON(t, h, "GET", "/api/results/"+dispatchID, nil)
	if w.Code != 200 {
		t.Fatalf("get result: %d", w.Code)
	}
	if got := decode[map[string]any](t, w)["status"]; got != "pending" {
		t.Errorf("result status = %v", got)
	}

	w = doJSON(t, h, "GET", "/api/results?status=pending", nil)
	env := decode[map[string]any](t, w)
	if env["total"].(float64) != 1 {
		t.Errorf("pending results: %v", env)
	}

	if w := doJSON(t, h, "GET", "/api/results?status=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter: %d", w.Code)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	h := newTestServer(t)
	intervalID := createInterval(t, h)
	createTask(t, h, "cleanup", intervalID)

	w := doJSON(t, h, "GET", "/api/statistics", nil)
	if w.Code != 200 {
		t.Fatalf("statistics: %d", w.Code)
	}
	stats := decode[map[string]any](t, w)
	if stats["total_tasks"].(float64) != 1 || stats["enabled_tasks"].(float64) != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestAvailableTasksEndpoint(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, "GET", "/api/available-tasks", nil)
	if w.Code != 200 {
		t.Fatalf("available tasks: %d", w.Code)
	}
	items := decode[[]map[string]any](t, w)
	if len(items) != 1 || items[0]["path"] != "tasks.cleanup_expired_tokens" {
		t.Errorf("available tasks = %v", items)
	}
}

func TestResultCleanupValidatesDays(t *testing.T) {
	h := newTestServer(t)
	w := doJSON(t, h, "DELETE", "/api/results/cleanup?days=0", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("days=0: %d", w.Code)
	}
	w = doJSON(t, h, "DELETE", "/api/results/cleanup?days=30", nil)
	if w.Code != 200 {
		t.Fatalf("cleanup: %d %s", w.Code, w.Body.String())
	}
}
