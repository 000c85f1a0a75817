package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"audiomill/internal/api"
	"audiomill/internal/config"
	"audiomill/internal/logging"
	"audiomill/internal/pipeline"
	"audiomill/internal/progress"
	"audiomill/internal/tasks"
	"audiomill/internal/testsupport"
)

type runnerFunc func(ctx context.Context, job pipeline.Job) (pipeline.Result, error)

func (f runnerFunc) Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	return f(ctx, job)
}

type fixture struct {
	cfg     *config.Config
	store   *progress.Store
	sup     *tasks.Supervisor
	daemon  *Daemon
	hub     *logging.StreamHub
	handler http.Handler
}

func twoSegmentRunner(store *progress.Store) runnerFunc {
	return func(_ context.Context, job pipeline.Job) (pipeline.Result, error) {
		if err := store.SetTotal(job.TaskID, 2); err != nil {
			return pipeline.Result{}, err
		}
		store.Increment(job.TaskID)
		store.Increment(job.TaskID)
		return pipeline.Result{OutputPath: "/out/" + job.SourceName + ".mp3", Segments: 2}, nil
	}
}

func newFixture(t *testing.T, runner func(*progress.Store) runnerFunc, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := progress.NewStore()
	hist := testsupport.MustOpenHistory(t, cfg)
	sup := tasks.New(store, runner(store), tasks.Options{
		WorkDir:        cfg.Paths.WorkDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		History:        hist,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	hub := logging.NewStreamHub(32)
	d, err := New(cfg, Options{Supervisor: sup, History: hist, LogHub: hub, Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{cfg: cfg, store: store, sup: sup, daemon: d, hub: hub, handler: d.api.server.Handler}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, field, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("note", "ignored"); err != nil {
		t.Fatal(err)
	}
	part, err := form.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := form.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func waitForTask(t *testing.T, sup *tasks.Supervisor, id string) {
	t.Helper()
	done, ok := sup.Done(id)
	if !ok {
		t.Fatalf("task %s not registered", id)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("task %s did not finish", id)
	}
}

func TestUploadThenPollProgress(t *testing.T) {
	f := newFixture(t, twoSegmentRunner)

	w := f.do(uploadRequest(t, "file", "talk.mp4", "video"))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	id, ok := strings.CutPrefix(w.Body.String(), api.UploadAccepted)
	if !ok || id == "" {
		t.Fatalf("unexpected upload body %q", w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
	waitForTask(t, f.sup, id)

	w = f.do(httptest.NewRequest(http.MethodGet, "/progress?task-id="+id, nil))
	if w.Code != http.StatusOK || w.Body.String() != progress.MessageCompleted {
		t.Fatalf("unexpected progress reply %d %q", w.Code, w.Body.String())
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	f := newFixture(t, twoSegmentRunner)

	w := f.do(uploadRequest(t, "file", "empty.mp4", ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w.Body.String() != tasks.MessageEmptyUpload {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
	if got := len(f.sup.Tasks()); got != 0 {
		t.Fatalf("empty upload must not create tasks, got %d", got)
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	f := newFixture(t, twoSegmentRunner)

	w := f.do(uploadRequest(t, "attachment", "talk.mp4", "video"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("raw"))
	req.Header.Set("Content-Type", "application/octet-stream")
	if w := f.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", w.Code)
	}
}

func TestUploadMethodNotAllowed(t *testing.T) {
	f := newFixture(t, twoSegmentRunner)
	if w := f.do(httptest.NewRequest(http.MethodGet, "/upload", nil)); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestProgressUnknownTask(t *testing.T) {
	f := newFixture(t, twoSegmentRunner)
	for _, target := range []string{"/progress?task-id=nope", "/progress"} {
		w := f.do(httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusOK || w.Body.String() != progress.MessageNotFound {
			t.Fatalf("%s: unexpected reply %d %q", target, w.Code, w.Body.String())
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t, twoSegmentRunner, testsupport.WithAPIToken("s3cret"))

	if w := f.do(httptest.NewRequest(http.MethodGet, "/progress?task-id=x", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/progress?task-id=x", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := f.do(req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/progress?task-id=x", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if w := f.do(req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestTasksListIncludesHistory(t *testing.T) {
	f := newFixture(t, twoSegmentRunner)

	w := f.do(uploadRequest(t, "file", "a.mp4", "video"))
	id := strings.TrimPrefix(w.Body.String(), api.UploadAccepted)
	waitForTask(t, f.sup, id)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.TaskListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].TaskID != id || resp.Tasks[0].Status != progress.StatusCompleted {
		t.Fatalf("unexpected tasks %+v", resp.Tasks)
	}
	if len(resp.History) != 1 || resp.History[0].TaskID != id || resp.History[0].Segments != 2 {
		t.Fatalf("unexpected history %+v", resp.History)
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/tasks/"+id, nil))
	var one api.TaskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &one); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if one.Message != progress.MessageCompleted || one.Task == nil || one.History == nil {
		t.Fatalf("unexpected task response %+v", one)
	}

	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/tasks?history=abc", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad history limit, got %d", w.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	started := make(chan struct{}, 1)
	blocking := func(store *progress.Store) runnerFunc {
		return func(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
			_ = store.SetTotal(job.TaskID, 3)
			started <- struct{}{}
			<-ctx.Done()
			return pipeline.Result{}, ctx.Err()
		}
	}
	f := newFixture(t, blocking)

	w := f.do(uploadRequest(t, "file", "a.mp4", "video"))
	id := strings.TrimPrefix(w.Body.String(), api.UploadAccepted)
	<-started

	if w := f.do(httptest.NewRequest(http.MethodDelete, "/api/tasks/"+id, nil)); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	waitForTask(t, f.sup, id)
	if got := f.sup.Query(id); got != progress.MessageFailed {
		t.Fatalf("expected Failed, got %q", got)
	}
	if w := f.do(httptest.NewRequest(http.MethodDelete, "/api/tasks/"+id, nil)); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for finished task, got %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodDelete, "/api/tasks/unknown", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, twoSegmentRunner)
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Running || status.Workers != 2 || status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.HistoryPath != f.cfg.HistoryPath() {
		t.Fatalf("unexpected history path %q", status.HistoryPath)
	}
}

func TestLogsEndpointFilters(t *testing.T) {
	f := newFixture(t, twoSegmentRunner)
	f.hub.Publish(logging.LogEvent{Level: "info", Message: "one", Component: "pipeline", TaskID: "t1"})
	f.hub.Publish(logging.LogEvent{Level: "error", Message: "two", Component: "pipeline", TaskID: "t2"})
	f.hub.Publish(logging.LogEvent{Level: "debug", Message: "three", Component: "tasks", TaskID: "t1"})

	fetch := func(target string) api.LogStreamResponse {
		t.Helper()
		w := f.do(httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, w.Code)
		}
		var resp api.LogStreamResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp
	}

	all := fetch("/api/logs?tail=1")
	if len(all.Events) != 3 || all.Next != 3 {
		t.Fatalf("unexpected tail %+v", all)
	}
	byTask := fetch("/api/logs?task=t1")
	if len(byTask.Events) != 2 {
		t.Fatalf("expected 2 events for t1, got %+v", byTask.Events)
	}
	byLevel := fetch("/api/logs?level=warn")
	if len(byLevel.Events) != 1 || byLevel.Events[0].Message != "two" {
		t.Fatalf("unexpected level filter %+v", byLevel.Events)
	}
	paged := fetch("/api/logs?since=1&limit=1")
	if len(paged.Events) != 1 || paged.Events[0].Message != "two" || paged.Next != 2 {
		t.Fatalf("unexpected page %+v", paged)
	}
}
