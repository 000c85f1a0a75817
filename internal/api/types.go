package api

import (
	"time"

	"audiomill/internal/deps"
	"audiomill/internal/history"
	"audiomill/internal/logging"
	"audiomill/internal/tasks"
)

// UploadAccepted prefixes the plain-text body returned by POST /upload.
const UploadAccepted = "Processing started. Task ID: "

// TaskListResponse is returned by GET /api/tasks.
type TaskListResponse struct {
	Tasks   []tasks.TaskInfo `json:"tasks"`
	History []history.Record `json:"history,omitempty"`
}

// TaskResponse is returned by GET /api/tasks/<id>.
type TaskResponse struct {
	Task    *tasks.TaskInfo `json:"task,omitempty"`
	History *history.Record `json:"history,omitempty"`
	Message string          `json:"message"`
}

// DaemonStatus is returned by GET /api/status.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StartedAt    time.Time      `json:"started_at"`
	Version      string         `json:"version,omitempty"`
	Workers      int            `json:"workers"`
	LockFilePath string         `json:"lock_file_path"`
	HistoryPath  string         `json:"history_path,omitempty"`
	Tasks        tasks.Stats    `json:"tasks"`
	HistoryStats map[string]int `json:"history_stats,omitempty"`
	Dependencies []deps.Status  `json:"dependencies"`
}

// LogStreamResponse is returned by GET /api/logs.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// ErrorResponse is the JSON body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
