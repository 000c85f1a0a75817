package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"audiomill/internal/api"
	"audiomill/internal/config"
	"audiomill/internal/deps"
	"audiomill/internal/history"
	"audiomill/internal/logging"
	"audiomill/internal/tasks"
)

const shutdownTimeout = 30 * time.Second

// HistoryReader is the read side of the history store used by the API.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Record, error)
	Get(ctx context.Context, taskID string) (*history.Record, error)
	Stats(ctx context.Context) (map[string]int, error)
	Path() string
}

// Options carries the collaborators a Daemon serves.
type Options struct {
	Supervisor   *tasks.Supervisor
	History      HistoryReader
	LogHub       *logging.StreamHub
	Dependencies []deps.Status
	Workers      int
	Version      string
	Logger       *slog.Logger
}

// Daemon owns the API server, the supervisor lifecycle, and the instance lock.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	supervisor *tasks.Supervisor
	history    HistoryReader
	logHub     *logging.StreamHub
	deps       []deps.Status
	workers    int
	version    string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu        sync.Mutex
	running   atomic.Bool
	startedAt atomic.Int64
}

// New constructs a daemon. The supervisor is required.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil || opts.Supervisor == nil {
		return nil, errors.New("daemon requires config and task supervisor")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(opts.Logger, "daemon"),
		supervisor: opts.Supervisor,
		history:    opts.History,
		logHub:     opts.LogHub,
		deps:       opts.Dependencies,
		workers:    opts.Workers,
		version:    opts.Version,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, opts.Logger)
	return d, nil
}

// Start acquires the instance lock, starts the retention sweeper, and
// begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another audiomill daemon instance is already running")
	}

	if err := d.api.start(); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	d.supervisor.StartSweeper(ctx)

	d.startedAt.Store(time.Now().UnixNano())
	d.running.Store(true)
	d.logger.Info("audiomill daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api_address", d.api.address()),
		logging.Int("workers", d.workers),
	)
	return nil
}

// Stop stops the API, cancels in-flight tasks, and releases the lock. The
// ctx bounds how long running tasks are given to wind down.
func (d *Daemon) Stop(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := d.supervisor.Shutdown(waitCtx); err != nil {
		logging.WarnWithContext(d.logger, "tasks still running at shutdown", "shutdown_timeout",
			logging.Error(err),
			logging.Int("running", d.supervisor.Running()),
			logging.String(logging.FieldImpact, "work directories of unfinished tasks may remain"),
		)
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("audiomill daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Addr returns the API listener address once started.
func (d *Daemon) Addr() net.Addr {
	if d.api == nil || d.api.listener == nil {
		return nil
	}
	return d.api.listener.Addr()
}

// LogStream returns the in-memory log hub served by /api/logs.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Version:      d.version,
		Workers:      d.workers,
		LockFilePath: d.lockPath,
		Tasks:        d.supervisor.Stats(),
		Dependencies: d.deps,
	}
	if started := d.startedAt.Load(); started > 0 {
		status.StartedAt = time.Unix(0, started)
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
		stats, err := d.history.Stats(ctx)
		if err != nil {
			d.logger.Warn("failed to read history stats", logging.Error(err))
		}
		status.HistoryStats = stats
	}
	return status
}
