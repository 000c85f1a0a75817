package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"audiomill/internal/config"
	"audiomill/internal/daemon"
	"audiomill/internal/deps"
	"audiomill/internal/logging"
	"audiomill/internal/services"
)

const (
	logStreamCapacity = 4096
	versionProbeLimit = 5 * time.Second
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Version     string
	// Stdout mirrors daemon logs to stdout alongside the per-run log file.
	Stdout bool
}

// Run starts the audiomill daemon and blocks until cmdCtx ends or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("audiomill-%s.log", runID))
	logHub := logging.NewStreamHub(logStreamCapacity)

	outputs := []string{logPath}
	errorOutputs := []string{logPath}
	if opts.Stdout {
		outputs = append(outputs, "stdout")
		errorOutputs = append(errorOutputs, "stderr")
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputs,
		ErrorOutputPaths: errorOutputs,
		Development:      opts.Development,
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update audiomill.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "audiomill-*.log", Exclude: []string{logPath}},
	)

	statuses := dependencySnapshot(signalCtx, logger, cfg)
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		err := services.Wrap(services.ErrConfiguration, "", "dependency check",
			fmt.Sprintf("required tools unavailable: %v", missing), nil)
		logging.ErrorWithContext(logger, "daemon cannot start", "dependency_missing",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set ffmpeg.ffmpeg_binary"),
		)
		return err
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "audiomilld.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := NewRuntime(cfg, logger)
	if err != nil {
		logger.Error("assemble runtime", logging.Error(err))
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = rt.Close(closeCtx)
	}()
	pruneHistory(signalCtx, logger, cfg, rt)

	daemonOpts := daemon.Options{
		Supervisor:   rt.Supervisor,
		LogHub:       logHub,
		Dependencies: statuses,
		Workers:      rt.Workers,
		Version:      opts.Version,
		Logger:       logger,
	}
	if rt.History != nil {
		daemonOpts.History = rt.History
	}
	d, err := daemon.New(cfg, daemonOpts)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api_bind and whether another daemon holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("audiomill daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop(context.Background())
	return nil
}

func pruneHistory(ctx context.Context, logger *slog.Logger, cfg *config.Config, rt *Runtime) {
	retention := cfg.HistoryRetention()
	if rt.History == nil || retention <= 0 {
		return
	}
	removed, err := rt.History.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		logging.WarnWithContext(logger, "history prune failed", "history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old task records remain in the history database"),
		)
		return
	}
	if removed > 0 {
		logger.Info("pruned task history",
			logging.String(logging.FieldEventType, "history_pruned"),
			logging.Int64("removed", removed),
		)
	}
}

func dependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries(deps.MediaRequirements(cfg.FFmpeg.FFmpegBinary, cfg.FFmpeg.FFprobeBinary, cfg.FFmpeg.ProbeInput))
	for i, status := range statuses {
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("dependency", status.Name),
			logging.String("command", status.Command),
			logging.Bool("available", status.Available),
			logging.Bool("optional", status.Optional),
		}
		if status.Available {
			probeCtx, cancel := context.WithTimeout(ctx, versionProbeLimit)
			version, err := deps.ToolVersion(probeCtx, status.Path)
			cancel()
			if err == nil {
				statuses[i].Detail = version
				attrs = append(attrs, logging.String("version", version))
			}
			logger.Info("dependency snapshot", logging.Args(attrs...)...)
			continue
		}
		attrs = append(attrs, logging.String("detail", status.Detail))
		if status.Optional {
			logging.WarnWithContext(logger, "optional dependency missing", "dependency_snapshot",
				append(attrs, logging.String(logging.FieldImpact, "input probing is skipped"))...)
			continue
		}
		logger.Error("required dependency missing", logging.Args(attrs...)...)
	}
	return statuses
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "audiomill.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
