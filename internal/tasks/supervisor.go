package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"audiomill/internal/fileutil"
	"audiomill/internal/history"
	"audiomill/internal/logging"
	"audiomill/internal/media"
	"audiomill/internal/pipeline"
	"audiomill/internal/progress"
	"audiomill/internal/services"
)

// MessageEmptyUpload is reported for zero-byte uploads.
const MessageEmptyUpload = "File is empty"

const (
	stageUpload          = "upload"
	historyWriteTimeout  = 5 * time.Second
	defaultSweepInterval = time.Minute
	defaultMaxFinished   = 10000
)

var (
	// ErrShuttingDown is returned by Submit once Shutdown has begun.
	ErrShuttingDown = errors.New("supervisor is shutting down")
	// ErrNotRunning is returned by Cancel for a task that already finished.
	ErrNotRunning = errors.New("task is not running")
)

// Runner executes one conversion job.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// Recorder persists finished tasks.
type Recorder interface {
	Record(ctx context.Context, rec history.Record) error
}

// Options configures a Supervisor.
type Options struct {
	WorkDir        string
	MaxUploadBytes int64
	// Timeout bounds each run. Zero leaves runs unbounded.
	Timeout time.Duration
	// Retention is how long terminal tasks stay queryable. Zero disables
	// the sweeper.
	Retention     time.Duration
	SweepInterval time.Duration
	// MaxFinished caps the finished tasks kept while Retention is zero; the
	// oldest are forgotten first. Zero means 10000, negative keeps all.
	MaxFinished int
	Logger        *slog.Logger
	History       Recorder
	NewID         func() string
	Now           func() time.Time
}

// TaskInfo joins a progress snapshot with submission details.
type TaskInfo struct {
	progress.Snapshot
	SourceName string `json:"source_name"`
	InputBytes int64  `json:"input_bytes"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Stats summarizes supervisor activity since start.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Active    int    `json:"active"`
}

type run struct {
	cancel    context.CancelFunc
	done      chan struct{}
	source    string
	input     fileutil.Written
	started   time.Time
	finished  bool
	output    string
	errorText string
}

// Supervisor launches and tracks conversion tasks.
type Supervisor struct {
	store     *progress.Store
	runner    Runner
	logger    *slog.Logger
	history   Recorder
	workDir   string
	maxUpload int64
	timeout   time.Duration
	retention time.Duration
	interval  time.Duration
	keep      int
	newID     func() string
	now       func() time.Time

	base       context.Context
	baseCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	runs   map[string]*run
	ended  []string
	wg     sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New constructs a supervisor that runs jobs through runner and reports to store.
func New(store *progress.Store, runner Runner, opts Options) *Supervisor {
	base, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		store:      store,
		runner:     runner,
		logger:     logging.NewComponentLogger(opts.Logger, "tasks"),
		history:    opts.History,
		workDir:    opts.WorkDir,
		maxUpload:  opts.MaxUploadBytes,
		timeout:    opts.Timeout,
		retention:  opts.Retention,
		interval:   opts.SweepInterval,
		keep:       opts.MaxFinished,
		newID:      opts.NewID,
		now:        opts.Now,
		base:       base,
		baseCancel: cancel,
		runs:       make(map[string]*run),
	}
	if s.workDir == "" {
		s.workDir = os.TempDir()
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.interval <= 0 {
		s.interval = min(defaultSweepInterval, max(s.retention, time.Second))
	}
	if s.keep == 0 {
		s.keep = defaultMaxFinished
	}
	return s
}

// Submit stages r as the input of a new task and starts the conversion in
// the background. It returns once the task is registered; ctx only bounds
// staging, never the conversion itself.
func (s *Supervisor) Submit(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := s.reserve(); err != nil {
		return "", err
	}
	launched := false
	defer func() {
		if !launched {
			s.wg.Done()
		}
	}()

	id := s.newID()
	ctx = services.WithTaskID(services.WithStage(ctx, stageUpload), id)
	logger := logging.WithContext(ctx, s.logger)

	dir := filepath.Join(s.workDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, stageUpload, "create work directory", dir, err)
	}
	source := media.SanitizeFileName(name)
	input := filepath.Join(dir, source)

	written, err := fileutil.WriteStream(r, input, s.maxUpload)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		if errors.Is(err, fileutil.ErrTooLarge) {
			return "", services.Wrap(services.ErrValidation, stageUpload, "stage upload",
				fmt.Sprintf("File exceeds the %d byte upload limit", s.maxUpload), err)
		}
		return "", services.Wrap(services.ErrValidation, stageUpload, "stage upload", "upload could not be read", err)
	}
	if written.Size == 0 {
		_ = os.RemoveAll(dir)
		return "", services.Wrap(services.ErrValidation, stageUpload, "stage upload", MessageEmptyUpload, nil)
	}

	if err := s.store.Init(id); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}

	job := pipeline.Job{TaskID: id, InputPath: input, WorkDir: dir, SourceName: source}
	s.launch(job, written)
	launched = true
	s.submitted.Add(1)

	logger.Info("task submitted",
		logging.String(logging.FieldEventType, "task_submitted"),
		logging.String("source_name", source),
		logging.Int64("input_bytes", written.Size),
		logging.String("input_sha256", written.SHA256),
	)
	return id, nil
}

// SubmitFile submits the local file at path.
func (s *Supervisor) SubmitFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, stageUpload, "open input", path, err)
	}
	defer f.Close()
	return s.Submit(ctx, filepath.Base(path), f)
}

func (s *Supervisor) reserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShuttingDown
	}
	s.wg.Add(1)
	return nil
}

func (s *Supervisor) launch(job pipeline.Job, written fileutil.Written) {
	runCtx, cancel := context.WithCancel(s.base)
	if s.timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, s.timeout)
		parent := cancel
		cancel = func() {
			timeoutCancel()
			parent()
		}
	}
	r := &run{
		cancel:  cancel,
		done:    make(chan struct{}),
		source:  job.SourceName,
		input:   written,
		started: s.now(),
	}
	s.mu.Lock()
	s.runs[job.TaskID] = r
	s.mu.Unlock()

	go s.execute(runCtx, job, r)
}

func (s *Supervisor) execute(ctx context.Context, job pipeline.Job, r *run) {
	defer s.wg.Done()
	defer close(r.done)
	defer r.cancel()

	ctx = services.WithTaskID(ctx, job.TaskID)
	result, err := s.invoke(ctx, job)
	s.finish(ctx, job, r, result, err)
}

func (s *Supervisor) invoke(ctx context.Context, job pipeline.Job) (result pipeline.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "pipeline panicked", "task_panic",
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()
	return s.runner.Run(ctx, job)
}

func (s *Supervisor) finish(ctx context.Context, job pipeline.Job, r *run, result pipeline.Result, runErr error) {
	logger := logging.WithContext(ctx, s.logger)
	finishedAt := s.now()

	// A run that returned its output is Completed even if a cancel landed
	// after the work was done.
	s.mu.Lock()
	// Visible before the terminal status so pollers that see it can read the output.
	r.output = result.OutputPath
	if runErr != nil {
		r.errorText = runErr.Error()
	}
	s.mu.Unlock()

	status := progress.StatusCompleted
	if runErr != nil {
		status = progress.StatusFailed
		s.store.Fail(job.TaskID)
		s.failed.Add(1)
		attrs := logging.FailureAttrs(runErr)
		attrs = append(attrs,
			logging.String(logging.FieldEventType, "task_failed"),
			logging.String("source_name", job.SourceName),
			logging.Duration("elapsed", finishedAt.Sub(r.started)),
		)
		logger.Error("task failed", logging.Args(attrs...)...)
	} else {
		s.store.Complete(job.TaskID)
		s.completed.Add(1)
		logger.Info("task completed",
			logging.String(logging.FieldEventType, "task_complete"),
			logging.String("source_name", job.SourceName),
			logging.String("output_path", result.OutputPath),
			logging.Int(logging.FieldSegmentCount, result.Segments),
			logging.Duration("elapsed", finishedAt.Sub(r.started)),
		)
	}

	if err := os.RemoveAll(job.WorkDir); err != nil {
		logging.WarnWithContext(logger, "work directory not removed", "workdir_cleanup_failed",
			logging.String("work_dir", job.WorkDir),
			logging.Error(err),
		)
	}

	s.mu.Lock()
	r.finished = true
	forgotten := s.trimFinished(job.TaskID)
	s.mu.Unlock()
	for _, id := range forgotten {
		s.store.Remove(id)
	}
	if len(forgotten) > 0 {
		logger.Debug("forgot oldest finished tasks",
			logging.String(logging.FieldEventType, "task_trim"),
			logging.Int("forgotten", len(forgotten)),
		)
	}

	s.record(ctx, logger, job, r, status, result, runErr, finishedAt)
}

// trimFinished queues id as finished and returns the oldest finished IDs past
// the cap. Only used without retention, where nothing else evicts. Callers
// hold s.mu.
func (s *Supervisor) trimFinished(id string) []string {
	if s.retention > 0 || s.keep < 0 {
		return nil
	}
	s.ended = append(s.ended, id)
	var forgotten []string
	for len(s.ended) > s.keep {
		oldest := s.ended[0]
		s.ended = s.ended[1:]
		if r, ok := s.runs[oldest]; ok && r.finished {
			delete(s.runs, oldest)
		}
		forgotten = append(forgotten, oldest)
	}
	return forgotten
}

func (s *Supervisor) record(ctx context.Context, logger *slog.Logger, job pipeline.Job, r *run, status progress.Status, result pipeline.Result, runErr error, finishedAt time.Time) {
	if s.history == nil {
		return
	}
	rec := history.Record{
		TaskID:      job.TaskID,
		SourceName:  job.SourceName,
		InputBytes:  r.input.Size,
		InputSHA256: r.input.SHA256,
		OutputPath:  result.OutputPath,
		Status:      string(status),
		Segments:    result.Segments,
		StartedAt:   r.started,
		FinishedAt:  finishedAt,
	}
	if runErr != nil {
		details := services.Details(runErr)
		rec.ErrorKind = string(details.Kind)
		rec.Error = runErr.Error()
		if snap, ok := s.store.Snapshot(job.TaskID); ok {
			rec.Segments = snap.Total
		}
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	if err := s.history.Record(writeCtx, rec); err != nil {
		logging.WarnWithContext(logger, "task history not recorded", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the history database"),
			logging.String(logging.FieldImpact, "task will be missing from history listings"),
		)
	}
}

// Query renders the poller-facing status string for id.
func (s *Supervisor) Query(id string) string {
	return s.store.Query(strings.TrimSpace(id))
}

// Task returns details for one task still held in the progress table.
func (s *Supervisor) Task(id string) (TaskInfo, bool) {
	snap, ok := s.store.Snapshot(id)
	if !ok {
		return TaskInfo{}, false
	}
	return s.info(snap), true
}

// Tasks lists every task in the progress table, oldest first.
func (s *Supervisor) Tasks() []TaskInfo {
	snaps := s.store.List()
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].TaskID < snaps[j].TaskID
		}
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	out := make([]TaskInfo, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, s.info(snap))
	}
	return out
}

func (s *Supervisor) info(snap progress.Snapshot) TaskInfo {
	info := TaskInfo{Snapshot: snap}
	s.mu.Lock()
	if r, ok := s.runs[snap.TaskID]; ok {
		info.SourceName = r.source
		info.InputBytes = r.input.Size
		info.OutputPath = r.output
		info.Error = r.errorText
	}
	s.mu.Unlock()
	return info
}

// Cancel stops a running task. The task finishes as Failed unless its run
// had already produced the output.
func (s *Supervisor) Cancel(id string) error {
	s.mu.Lock()
	r, ok := s.runs[id]
	if !ok {
		s.mu.Unlock()
		if _, known := s.store.Snapshot(id); known {
			return fmt.Errorf("cancel %s: %w", id, ErrNotRunning)
		}
		return fmt.Errorf("cancel %s: %w", id, services.ErrUnknownTask)
	}
	if r.finished {
		s.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", id, ErrNotRunning)
	}
	cancel := r.cancel
	s.mu.Unlock()

	cancel()
	s.logger.Info("task cancel requested",
		logging.String(logging.FieldTaskID, id),
		logging.String(logging.FieldEventType, "task_cancel_requested"),
	)
	return nil
}

// Done returns a channel closed when the task's goroutine exits.
func (s *Supervisor) Done(id string) (<-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	return r.done, true
}

// Running reports how many tasks have not finished.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, r := range s.runs {
		if !r.finished {
			active++
		}
	}
	return active
}

// Stats returns activity counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Active:    s.Running(),
	}
}

// Sweep evicts terminal tasks older than the retention window and returns
// their IDs. It does nothing when retention is disabled.
func (s *Supervisor) Sweep() []string {
	if s.retention <= 0 {
		return nil
	}
	evicted := s.store.SweepTerminal(s.now().Add(-s.retention))
	if len(evicted) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, id := range evicted {
		if r, ok := s.runs[id]; ok && r.finished {
			delete(s.runs, id)
		}
	}
	s.mu.Unlock()
	s.logger.Debug("evicted finished tasks",
		logging.String(logging.FieldEventType, "task_sweep"),
		logging.Int("evicted", len(evicted)),
	)
	return evicted
}

// StartSweeper runs Sweep periodically until ctx ends or Shutdown is called.
func (s *Supervisor) StartSweeper(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	if err := s.reserve(); err != nil {
		return
	}
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.base.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Shutdown refuses new submissions, cancels running tasks, and waits for
// their goroutines to exit or ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
