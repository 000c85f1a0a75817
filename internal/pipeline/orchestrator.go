package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"audiomill/internal/logging"
	"audiomill/internal/media"
	"audiomill/internal/media/ffprobe"
	"audiomill/internal/progress"
	"audiomill/internal/services"
)

const manifestName = "concat_list.txt"

// Job describes one conversion run. WorkDir is owned exclusively by the run
// and is deleted when Run returns.
type Job struct {
	TaskID     string
	InputPath  string
	WorkDir    string
	SourceName string
}

// Result describes a successful conversion.
type Result struct {
	OutputPath string
	Segments   int
	Elapsed    time.Duration
}

// ProbeFunc inspects the staged input before segmentation.
type ProbeFunc func(ctx context.Context, path string) (ffprobe.Result, error)

// Options configures an Orchestrator.
type Options struct {
	// Workers caps concurrent per-segment subpipelines. Values below one are
	// treated as one.
	Workers   int
	Chunk     time.Duration
	OutputDir string
	OutputExt string
	Probe     ProbeFunc
	Logger    *slog.Logger
	Now       func() time.Time
}

// Orchestrator drives conversions through a media.Engine.
type Orchestrator struct {
	engine    media.Engine
	store     *progress.Store
	logger    *slog.Logger
	workers   int
	chunk     time.Duration
	outputDir string
	outputExt string
	probe     ProbeFunc
	now       func() time.Time
}

// New constructs an orchestrator.
func New(engine media.Engine, store *progress.Store, opts Options) *Orchestrator {
	o := &Orchestrator{
		engine:    engine,
		store:     store,
		logger:    logging.NewComponentLogger(opts.Logger, "pipeline"),
		workers:   max(opts.Workers, 1),
		chunk:     opts.Chunk,
		outputDir: opts.OutputDir,
		outputExt: strings.TrimPrefix(strings.TrimSpace(opts.OutputExt), "."),
		probe:     opts.Probe,
		now:       opts.Now,
	}
	if o.chunk <= 0 {
		o.chunk = 30 * time.Second
	}
	if o.outputExt == "" {
		o.outputExt = "mp3"
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Workers reports the fan-out bound.
func (o *Orchestrator) Workers() int {
	return o.workers
}

// Run converts job.InputPath into a single audio file under the output
// directory. Progress totals and per-segment increments are written to the
// store as the run advances; terminal transitions are not.
func (o *Orchestrator) Run(ctx context.Context, job Job) (Result, error) {
	if o.engine == nil || o.store == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "", "pipeline", "engine and progress store are required", nil)
	}
	started := o.now()
	ctx = services.WithTaskID(ctx, job.TaskID)
	logger := logging.WithContext(ctx, o.logger)
	defer o.cleanup(logger, job.WorkDir)

	base := media.BaseName(job.SourceName)
	if strings.TrimSpace(job.SourceName) == "" {
		base = media.BaseName(filepath.Base(job.InputPath))
	}

	if err := o.inspect(ctx, logger, job.InputPath); err != nil {
		return Result{}, err
	}

	segments, err := o.segment(ctx, logger, job, base)
	if err != nil {
		return Result{}, err
	}

	if err := o.store.SetTotal(job.TaskID, len(segments)); err != nil {
		if errors.Is(err, progress.ErrTotalAlreadySet) {
			logging.ErrorWithContext(logger, "segment total rejected", "progress_total_rejected",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "task was already advanced or finished by another caller"),
			)
		}
		return Result{}, services.Wrap(services.ErrSegmentation, media.StageSegment, "record total", "progress store rejected segment total", err)
	}

	compressed, err := o.convertSegments(ctx, logger, job.TaskID, segments)
	if err != nil {
		return Result{}, err
	}

	output, err := o.merge(ctx, logger, job, base, compressed)
	if err != nil {
		return Result{}, err
	}

	result := Result{OutputPath: output, Segments: len(segments), Elapsed: o.now().Sub(started)}
	logger.Info("conversion finished",
		logging.String(logging.FieldEventType, "conversion_complete"),
		logging.String("output_path", output),
		logging.Int(logging.FieldSegmentCount, len(segments)),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (o *Orchestrator) inspect(ctx context.Context, logger *slog.Logger, input string) error {
	if o.probe == nil {
		return nil
	}
	ctx = services.WithStage(ctx, media.StageProbe)
	probed, err := o.probe(ctx, input)
	if err != nil {
		if canceled := canceledError(ctx, media.StageProbe); canceled != nil {
			return canceled
		}
		return services.Wrap(services.ErrSegmentation, media.StageProbe, "ffprobe", "input could not be inspected", err)
	}
	if !probed.HasAudio() {
		return services.Wrap(services.ErrSegmentation, media.StageProbe, "ffprobe", "input has no audio stream", nil)
	}
	logging.WithContext(ctx, logger).Info("input inspected",
		logging.String(logging.FieldEventType, "input_probed"),
		logging.Duration("duration", probed.Duration()),
		logging.Int("expected_segments", probed.ExpectedSegments(o.chunk)),
		logging.Int("audio_streams", probed.AudioStreamCount()),
	)
	return nil
}

func (o *Orchestrator) segment(ctx context.Context, logger *slog.Logger, job Job, base string) ([]string, error) {
	ctx = services.WithStage(ctx, media.StageSegment)
	segments, err := o.engine.Segment(ctx, media.SegmentRequest{
		InputPath: job.InputPath,
		WorkDir:   job.WorkDir,
		BaseName:  base,
		Chunk:     o.chunk,
	})
	if err != nil {
		if canceled := canceledError(ctx, media.StageSegment); canceled != nil {
			return nil, canceled
		}
		return nil, ensureMarker(err, services.ErrSegmentation, media.StageSegment)
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrSegmentation, media.StageSegment, "split", "engine returned no segments", nil)
	}
	logging.WithContext(ctx, logger).Info("input segmented",
		logging.String(logging.FieldEventType, "segmented"),
		logging.Int(logging.FieldSegmentCount, len(segments)),
		logging.Duration("chunk", o.chunk),
	)
	return segments, nil
}

// convertSegments runs extract then compress for every segment on at most
// o.workers goroutines. Results land in the slot matching the segment's
// ordinal, so the returned slice is in source order whatever the completion
// order was.
func (o *Orchestrator) convertSegments(ctx context.Context, logger *slog.Logger, taskID string, segments []string) ([]string, error) {
	results := make([]string, len(segments))
	sampler := logging.NewProgressSampler(10)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.workers)

	for idx, segment := range segments {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			audio, err := o.engine.ExtractAudio(services.WithStage(groupCtx, media.StageExtract), segment)
			if err != nil {
				return segmentError(err, services.ErrExtraction, media.StageExtract, idx, len(segments))
			}
			compressed, err := o.engine.CompressAudio(services.WithStage(groupCtx, media.StageCompress), audio)
			if err != nil {
				return segmentError(err, services.ErrCompression, media.StageCompress, idx, len(segments))
			}
			results[idx] = compressed
			o.store.Increment(taskID)

			if snap, ok := o.store.Snapshot(taskID); ok && sampler.ShouldLog(snap.Completed, snap.Total) {
				logger.Info("segment progress",
					logging.String(logging.FieldEventType, "segment_progress"),
					logging.Int(logging.FieldSegmentIndex, idx+1),
					logging.Int("completed", snap.Completed),
					logging.Int(logging.FieldSegmentCount, snap.Total),
				)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if canceled := canceledError(ctx, "convert"); canceled != nil {
			return nil, canceled
		}
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) merge(ctx context.Context, logger *slog.Logger, job Job, base string, ordered []string) (string, error) {
	ctx = services.WithStage(ctx, media.StageMerge)
	if canceled := canceledError(ctx, media.StageMerge); canceled != nil {
		return "", canceled
	}
	manifest := filepath.Join(job.WorkDir, manifestName)
	if err := media.WriteManifest(manifest, ordered); err != nil {
		return "", services.Wrap(services.ErrMerge, media.StageMerge, "manifest", "write concat list", err)
	}
	output, err := media.ReserveOutputPath(o.outputDir, base, o.outputExt, o.now())
	if err != nil {
		return "", services.Wrap(services.ErrMerge, media.StageMerge, "output", "reserve output path", err)
	}
	merged, err := o.engine.Concatenate(ctx, manifest, output)
	if err != nil {
		if removeErr := os.Remove(output); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logging.WarnWithContext(logging.WithContext(ctx, logger), "output placeholder not removed", "output_cleanup_failed",
				logging.String("path", output),
				logging.Error(removeErr),
				logging.String(logging.FieldImpact, "an empty file remains in the output directory"),
			)
		}
		if canceled := canceledError(ctx, media.StageMerge); canceled != nil {
			return "", canceled
		}
		return "", ensureMarker(err, services.ErrMerge, media.StageMerge)
	}
	return merged, nil
}

func (o *Orchestrator) cleanup(logger *slog.Logger, workDir string) {
	if strings.TrimSpace(workDir) == "" {
		return
	}
	if err := os.RemoveAll(workDir); err != nil {
		logging.WarnWithContext(logger, "work directory not removed", "workdir_cleanup_failed",
			logging.String("work_dir", workDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check work_dir permissions"),
			logging.String(logging.FieldImpact, "segment artifacts remain on disk"),
		)
		return
	}
	logger.Debug("work directory removed", logging.String("work_dir", workDir))
}

// canceledError reports a cancellation or deadline on ctx as ErrCanceled, or
// nil while ctx is live. Engine failures caused by a killed process are
// reported this way rather than as stage failures.
func canceledError(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCanceled, stage, "", "conversion canceled", err)
	}
	return nil
}

func segmentError(err, marker error, stage string, idx, total int) error {
	if errors.Is(err, context.Canceled) && !errors.Is(err, marker) {
		return err
	}
	if errors.Is(err, marker) {
		return fmt.Errorf("segment %d/%d: %w", idx+1, total, err)
	}
	return services.Wrap(marker, stage, fmt.Sprintf("segment %d/%d", idx+1, total), "", err)
}

func ensureMarker(err, marker error, stage string) error {
	if errors.Is(err, marker) {
		return err
	}
	return services.Wrap(marker, stage, "", "", err)
}
