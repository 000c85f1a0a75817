package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"audiomill/internal/logging"
	"audiomill/internal/progress"
)

func TestParseProgress(t *testing.T) {
	tests := []struct {
		message string
		want    progressState
		ok      bool
	}{
		{"0 / 0 completed", progressState{Status: progress.StatusRunning}, true},
		{"3 / 7 completed", progressState{Completed: 3, Total: 7, Status: progress.StatusRunning}, true},
		{"Completed", progressState{Status: progress.StatusCompleted}, true},
		{"Failed", progressState{Status: progress.StatusFailed}, true},
		{"Task ID not found", progressState{}, false},
		{"x / 2 completed", progressState{}, false},
		{"garbage", progressState{}, false},
	}
	for _, tt := range tests {
		got, ok := parseProgress(tt.message)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseProgress(%q) = %+v, %v; want %+v, %v", tt.message, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWaitForTaskReportsTransitions(t *testing.T) {
	replies := []string{"0 / 0 completed", "1 / 2 completed", "1 / 2 completed", "2 / 2 completed", "Completed"}
	poll := func(context.Context) (string, error) {
		reply := replies[0]
		if len(replies) > 1 {
			replies = replies[1:]
		}
		return reply, nil
	}
	var buf bytes.Buffer
	state, err := waitForTask(context.Background(), "t1", time.Millisecond, poll, newProgressReporter(&buf, "t1"))
	if err != nil {
		t.Fatalf("waitForTask: %v", err)
	}
	if state.Status != progress.StatusCompleted {
		t.Fatalf("expected completed state, got %+v", state)
	}
	want := "t1: 0 / 0 completed\nt1: 1 / 2 completed\nt1: 2 / 2 completed\nTask t1 Completed\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWaitForTaskFailure(t *testing.T) {
	poll := func(context.Context) (string, error) { return progress.MessageFailed, nil }
	var buf bytes.Buffer
	_, err := waitForTask(context.Background(), "t2", time.Millisecond, poll, newProgressReporter(&buf, "t2"))
	if !errors.Is(err, errTaskFailed) {
		t.Fatalf("expected errTaskFailed, got %v", err)
	}
	if !strings.Contains(buf.String(), "Task t2 Failed") {
		t.Fatalf("expected failure line, got %q", buf.String())
	}
}

func TestWaitForTaskHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	poll := func(context.Context) (string, error) {
		cancel()
		return "1 / 3 completed", nil
	}
	_, err := waitForTask(ctx, "t3", time.Hour, poll, newProgressReporter(&bytes.Buffer{}, "t3"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFormatLogEvent(t *testing.T) {
	evt := logging.LogEvent{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local),
		Level:     "warn",
		Message:   "segment retried",
		Component: "pipeline",
		TaskID:    "0f8fad5b-d9cb-469f-a165-70867728950e",
		Stage:     "extract",
		Fields:    map[string]string{"segment": "3", "attempt": "2"},
	}
	got := formatLogEvent(evt)
	want := "2026-01-02 03:04:05 WARN [pipeline] Task 0f8fad5b (extract) - segment retried\n    - attempt: 2\n    - segment: 3"
	if got != want {
		t.Fatalf("formatLogEvent:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatStatus("running"); got != "Running" {
		t.Fatalf("formatStatus = %q", got)
	}
	if got := formatBytes(0); got != "-" {
		t.Fatalf("formatBytes(0) = %q", got)
	}
	if got := formatBytes(1536); got != "1.5 KiB" {
		t.Fatalf("formatBytes(1536) = %q", got)
	}
	if got := formatSegments(1, 0); got != "-" {
		t.Fatalf("formatSegments = %q", got)
	}
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("shortID = %q", got)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]tableColumn{{Header: "A"}, {Header: "B", Align: alignRight}}, [][]string{{"x"}})
	if !strings.Contains(out, "A") || !strings.Contains(out, "x") || strings.Count(out, "\n") < 4 {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty render without columns")
	}
}
