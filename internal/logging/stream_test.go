package logging

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerCarriesWithAttrs(t *testing.T) {
	hub := NewStreamHub(16)
	handler := newStreamHandler(slog.NewTextHandler(io.Discard, nil), hub)
	logger := slog.New(handler).
		With(slog.String(FieldComponent, "pipeline")).
		With(slog.String(FieldTaskID, "task-42"))

	logger.Info("segment converted", slog.String(FieldStage, "extract"), slog.Int(FieldSegmentIndex, 3))

	events, seq := hub.Tail(10)
	if len(events) != 1 || seq != 1 {
		t.Fatalf("expected one event at seq 1, got %d events seq %d", len(events), seq)
	}
	evt := events[0]
	if evt.TaskID != "task-42" || evt.Component != "pipeline" || evt.Stage != "extract" {
		t.Fatalf("unexpected event routing fields: %+v", evt)
	}
	if evt.Fields[FieldSegmentIndex] != "3" {
		t.Fatalf("expected segment_index field, got %+v", evt.Fields)
	}
}

func TestStreamHubDropsOldestWhenFull(t *testing.T) {
	hub := NewStreamHub(2)
	for _, msg := range []string{"a", "b", "c"} {
		hub.Publish(LogEvent{Message: msg})
	}
	events, seq := hub.Tail(0)
	if seq != 3 {
		t.Fatalf("expected seq 3, got %d", seq)
	}
	if len(events) != 2 || events[0].Message != "b" || events[1].Message != "c" {
		t.Fatalf("unexpected buffered events: %+v", events)
	}
}

func TestStreamHubFetchSince(t *testing.T) {
	hub := NewStreamHub(8)
	for _, msg := range []string{"a", "b", "c"} {
		hub.Publish(LogEvent{Message: msg})
	}
	events, next, err := hub.Fetch(context.Background(), 1, 1, false)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(events) != 1 || events[0].Message != "b" || next != 2 {
		t.Fatalf("unexpected fetch result %+v next=%d", events, next)
	}
	events, _, _ = hub.Fetch(context.Background(), 3, 10, false)
	if len(events) != 0 {
		t.Fatalf("expected no events after latest seq, got %+v", events)
	}
}

func TestStreamHubFetchWaitsForPublish(t *testing.T) {
	hub := NewStreamHub(8)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "late"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "late" {
			t.Fatalf("unexpected events %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestStreamHubFetchHonorsCancel(t *testing.T) {
	hub := NewStreamHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error")
	}
}
