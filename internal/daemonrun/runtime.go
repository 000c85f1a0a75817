package daemonrun

import (
	"context"
	"fmt"
	"log/slog"

	"audiomill/internal/config"
	"audiomill/internal/history"
	"audiomill/internal/media"
	"audiomill/internal/media/ffprobe"
	"audiomill/internal/pipeline"
	"audiomill/internal/progress"
	"audiomill/internal/tasks"
)

// Runtime is the assembled conversion stack shared by the daemon and the
// local convert command.
type Runtime struct {
	Store      *progress.Store
	Pipeline   *pipeline.Orchestrator
	Supervisor *tasks.Supervisor
	// History is nil when history is disabled.
	History *history.Store
	Workers int
}

// NewRuntime wires the progress store, ffmpeg engine, orchestrator, and
// supervisor for cfg. Callers own Close.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	rt := &Runtime{Store: progress.NewStore(), Workers: cfg.WorkerCount()}
	if cfg.Tasks.HistoryEnabled {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		rt.History = store
	}

	var probe pipeline.ProbeFunc
	if cfg.FFmpeg.ProbeInput {
		binary := cfg.FFmpeg.FFprobeBinary
		probe = func(ctx context.Context, path string) (ffprobe.Result, error) {
			return ffprobe.Inspect(ctx, binary, path)
		}
	}

	engine := media.NewFFmpegFromConfig(cfg, logger)
	rt.Pipeline = pipeline.New(engine, rt.Store, pipeline.Options{
		Workers:   rt.Workers,
		Chunk:     cfg.SegmentDuration(),
		OutputDir: cfg.Paths.OutputDir,
		OutputExt: engine.OutputExtension(),
		Probe:     probe,
		Logger:    logger,
	})

	opts := tasks.Options{
		WorkDir:        cfg.Paths.WorkDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Timeout:        cfg.TaskTimeout(),
		Retention:      cfg.Retention(),
		Logger:         logger,
	}
	if rt.History != nil {
		opts.History = rt.History
	}
	rt.Supervisor = tasks.New(rt.Store, rt.Pipeline, opts)
	return rt, nil
}

// Close waits for running tasks, bounded by ctx, and closes the history store.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	shutdownErr := rt.Supervisor.Shutdown(ctx)
	if rt.History != nil {
		if err := rt.History.Close(); err != nil && shutdownErr == nil {
			return err
		}
	}
	return shutdownErr
}
