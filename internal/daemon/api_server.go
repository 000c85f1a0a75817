package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"audiomill/internal/api"
	"audiomill/internal/config"
	"audiomill/internal/logging"
	"audiomill/internal/services"
	"audiomill/internal/tasks"
)

const (
	uploadField         = "file"
	defaultHistoryLimit = 20
	defaultLogLimit     = 200
	maxLogLimit         = 2000
	logFollowWindow     = 25 * time.Second
	// multipartOverhead covers boundaries and part headers on top of the
	// configured upload limit.
	multipartOverhead = 1 << 20
)

type apiServer struct {
	bind      string
	logger    *slog.Logger
	daemon    *Daemon
	maxUpload int64

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		logger:    logging.NewComponentLogger(logger, "api-server"),
		daemon:    d,
		maxUpload: cfg.MaxUploadBytes(),
	}
	srv.server = &http.Server{
		Handler:           srv.routes(strings.TrimSpace(cfg.Paths.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /progress", s.handleProgress)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleCancel)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	return requestIDMiddleware(authMiddleware(token, mux))
}

func (s *apiServer) start() error {
	if s.bind == "" {
		return errors.New("api bind address is required")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
		_ = s.server.Close()
	}
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeText(w, http.StatusBadRequest, "Expected multipart/form-data upload")
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeText(w, http.StatusBadRequest, "Missing file field")
			return
		}
		if err != nil {
			s.writeText(w, http.StatusBadRequest, "Malformed multipart body")
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		id, err := s.daemon.supervisor.Submit(r.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			s.writeSubmitError(w, r, err)
			return
		}
		s.writeText(w, http.StatusAccepted, api.UploadAccepted+id)
		return
	}
}

func (s *apiServer) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.WithContext(r.Context(), s.logger)
	switch {
	case errors.Is(err, tasks.ErrShuttingDown):
		s.writeText(w, http.StatusServiceUnavailable, "Server is shutting down")
	case errors.Is(err, services.ErrValidation):
		details := services.Details(err)
		logger.Info("upload rejected",
			logging.String(logging.FieldEventType, "upload_rejected"),
			logging.String("reason", details.Message),
		)
		s.writeText(w, http.StatusBadRequest, details.Message)
	default:
		logging.ErrorWithContext(logger, "upload failed", "upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check work_dir permissions and free space"),
		)
		s.writeText(w, http.StatusInternalServerError, "Upload failed")
	}
}

func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("task-id")
	s.writeText(w, http.StatusOK, s.daemon.supervisor.Query(id))
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	resp := api.TaskListResponse{Tasks: s.daemon.supervisor.Tasks()}
	if s.daemon.history != nil {
		limit := defaultHistoryLimit
		if value := strings.TrimSpace(r.URL.Query().Get("history")); value != "" {
			parsed, err := strconv.Atoi(value)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "invalid history limit")
				return
			}
			limit = parsed
		}
		if limit > 0 {
			records, err := s.daemon.history.List(r.Context(), limit)
			if err != nil {
				s.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp.History = records
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp := api.TaskResponse{Message: s.daemon.supervisor.Query(id)}
	if info, ok := s.daemon.supervisor.Task(id); ok {
		resp.Task = &info
	}
	if s.daemon.history != nil {
		rec, err := s.daemon.history.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.History = rec
	}
	if resp.Task == nil && resp.History == nil {
		s.writeError(w, http.StatusNotFound, resp.Message)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.daemon.supervisor.Cancel(id)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "cancel requested"})
	case errors.Is(err, services.ErrUnknownTask):
		s.writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, tasks.ErrNotRunning):
		s.writeError(w, http.StatusConflict, "task is not running")
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	limit = min(limit, maxLogLimit)
	follow := isTruthy(query.Get("follow"))
	tail := isTruthy(query.Get("tail"))
	component := strings.TrimSpace(query.Get("component"))
	taskID := strings.TrimSpace(query.Get("task"))
	level := strings.ToLower(strings.TrimSpace(query.Get("level")))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		ctx := r.Context()
		if follow {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, logFollowWindow)
			defer cancel()
		}
		var err error
		events, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if next < since {
			next = since
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		if taskID != "" && evt.TaskID != taskID {
			continue
		}
		if level != "" && !levelAtLeast(evt.Level, level) {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

func levelAtLeast(eventLevel, threshold string) bool {
	want, ok := levelRank[threshold]
	if !ok {
		return true
	}
	return levelRank[strings.ToLower(eventLevel)] >= want
}

func isTruthy(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

func (s *apiServer) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
