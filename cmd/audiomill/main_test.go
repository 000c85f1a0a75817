package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audiomill/internal/api"
	"audiomill/internal/logging"
	"audiomill/internal/progress"
	"audiomill/internal/testsupport"
)

func submitClip(t *testing.T, env *cliTestEnv, extra ...string) (string, string) {
	t.Helper()
	input := filepath.Join(testsupport.BaseDir(env.cfg), "clip.mp4")
	testsupport.WriteFile(t, input, 2048)

	out, err := env.run(t, append([]string{"submit", input}, extra...)...)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	first, _, _ := strings.Cut(out, "\n")
	id, ok := strings.CutPrefix(first, api.UploadAccepted)
	if !ok || id == "" {
		t.Fatalf("unexpected submit output %q", out)
	}
	return id, out
}

func waitCompleted(t *testing.T, env *cliTestEnv, id string) {
	t.Helper()
	done, ok := env.supervisor.Done(id)
	if !ok {
		t.Fatalf("task %s unknown to supervisor", id)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("task %s never finished", id)
	}
}

func TestCLISubmitWaitReportsOutput(t *testing.T) {
	env := setupCLITestEnv(t)

	id, out := submitClip(t, env, "--wait", "--interval", "10ms")
	if !strings.Contains(out, "Task "+id+" Completed") {
		t.Fatalf("expected completion line, got %q", out)
	}
	if !strings.Contains(out, "Output: /out/clip.mp3") {
		t.Fatalf("expected output path, got %q", out)
	}

	progressOut, err := env.run(t, "progress", id)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if strings.TrimSpace(progressOut) != progress.MessageCompleted {
		t.Fatalf("expected %q, got %q", progress.MessageCompleted, progressOut)
	}
}

func TestCLIProgressUnknownTask(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "progress", "missing")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if strings.TrimSpace(out) != progress.MessageNotFound {
		t.Fatalf("expected not found message, got %q", out)
	}

	if _, err := env.run(t, "progress", "missing", "--wait"); err == nil {
		t.Fatal("expected waiting on an unknown task to fail")
	}
}

func TestCLITasksListShowAndJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	id, _ := submitClip(t, env)
	waitCompleted(t, env, id)

	out, err := env.run(t, "tasks")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	for _, want := range []string{id, "Completed", "2/2", "clip.mp4", "2.0 KiB"} {
		if !strings.Contains(out, want) {
			t.Fatalf("tasks output missing %q:\n%s", want, out)
		}
	}

	out, err = env.run(t, "tasks", "--json")
	if err != nil {
		t.Fatalf("tasks --json: %v", err)
	}
	var resp api.TaskListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode tasks json: %v\n%s", err, out)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].TaskID != id {
		t.Fatalf("unexpected tasks payload %+v", resp)
	}

	out, err = env.run(t, "tasks", "show", id)
	if err != nil {
		t.Fatalf("tasks show: %v", err)
	}
	if !strings.Contains(out, "Progress: Completed") || !strings.Contains(out, "Output:   /out/clip.mp3") {
		t.Fatalf("unexpected show output:\n%s", out)
	}
}

func TestCLITaskCancelErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := env.run(t, "tasks", "cancel", "missing")
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}

	id, _ := submitClip(t, env)
	waitCompleted(t, env, id)
	if _, err := env.run(t, "tasks", "cancel", id); err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected 409 for finished task, got %v", err)
	}
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"== Daemon ==", "[OK] running", "Workers:", "== Tasks =="} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	out, err = env.run(t, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Version != "test" || status.PID != os.Getpid() {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestCLILogsFilters(t *testing.T) {
	env := setupCLITestEnv(t)
	env.hub.Publish(logging.LogEvent{Timestamp: time.Now(), Level: "info", Message: "segment done", Component: "pipeline", TaskID: "task-a"})
	env.hub.Publish(logging.LogEvent{Timestamp: time.Now(), Level: "error", Message: "merge failed", Component: "pipeline", TaskID: "task-b"})

	out, err := env.run(t, "logs", "--task", "task-b")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "merge failed") || strings.Contains(out, "segment done") {
		t.Fatalf("unexpected filtered logs:\n%s", out)
	}

	out, err = env.run(t, "logs", "--component", "nothing-here")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "No log entries available") {
		t.Fatalf("expected empty notice, got %q", out)
	}
}

func TestCLIReportsUnreachableDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := testsupport.WriteConfig(t, cfg)

	_, _, err := runCLI(t, []string{"status"}, "127.0.0.1:1", configPath)
	if err == nil {
		t.Fatal("expected error without a daemon")
	}
	if !strings.Contains(err.Error(), "audiomill serve") {
		t.Fatalf("expected serve hint, got %v", err)
	}
}

func TestCLIRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	env := setupCLITestEnvWithConfig(t, cfg)

	if _, err := env.run(t, "status"); err != nil {
		t.Fatalf("status with token: %v", err)
	}

	anonymous := *cfg
	anonymous.Paths.APIToken = ""
	noToken := testsupport.WriteConfig(t, &anonymous)
	_, _, err := runCLI(t, []string{"status"}, env.apiAddr, noToken)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 without token, got %v", err)
	}
}
