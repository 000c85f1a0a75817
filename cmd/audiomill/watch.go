package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"audiomill/internal/progress"
)

const defaultPollInterval = 500 * time.Millisecond

var errTaskFailed = errors.New("task failed")

// progressReporter renders task progress while a command waits.
type progressReporter interface {
	Update(state progressState)
	Finish(state progressState)
}

func newProgressReporter(out io.Writer, taskID string) progressReporter {
	if isTerminal(out) {
		return &barReporter{out: out, taskID: taskID}
	}
	return &lineReporter{out: out, taskID: taskID}
}

type barReporter struct {
	out    io.Writer
	taskID string
	bar    *progressbar.ProgressBar
}

func (r *barReporter) Update(state progressState) {
	if state.Total <= 0 {
		return
	}
	if r.bar == nil {
		r.bar = progressbar.NewOptions(state.Total,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetDescription("segments"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetWidth(30),
		)
	}
	_ = r.bar.Set(state.Completed)
}

func (r *barReporter) Finish(state progressState) {
	if r.bar != nil {
		if state.Status == progress.StatusCompleted {
			_ = r.bar.Finish()
		} else {
			_ = r.bar.Exit()
		}
		fmt.Fprintln(r.out)
	}
	fmt.Fprintf(r.out, "Task %s %s\n", r.taskID, formatStatus(string(state.Status)))
}

type lineReporter struct {
	out    io.Writer
	taskID string
	last   progressState
	seen   bool
}

func (r *lineReporter) Update(state progressState) {
	if r.seen && state == r.last {
		return
	}
	r.seen = true
	r.last = state
	fmt.Fprintf(r.out, "%s: %d / %d completed\n", r.taskID, state.Completed, state.Total)
}

func (r *lineReporter) Finish(state progressState) {
	fmt.Fprintf(r.out, "Task %s %s\n", r.taskID, formatStatus(string(state.Status)))
}

// waitForTask polls until the task reaches a terminal state or ctx ends. A
// failed task returns errTaskFailed.
func waitForTask(ctx context.Context, taskID string, interval time.Duration, poll func(context.Context) (string, error), reporter progressReporter) (progressState, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		message, err := poll(ctx)
		if err != nil {
			return progressState{}, err
		}
		state, ok := parseProgress(message)
		if !ok {
			return progressState{}, fmt.Errorf("task %s: %s", taskID, message)
		}
		if state.terminal() {
			reporter.Finish(state)
			if state.Status == progress.StatusFailed {
				return state, fmt.Errorf("task %s: %w", taskID, errTaskFailed)
			}
			return state, nil
		}
		reporter.Update(state)

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-ticker.C:
		}
	}
}
