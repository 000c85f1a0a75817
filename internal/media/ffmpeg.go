package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"audiomill/internal/config"
	"audiomill/internal/logging"
	"audiomill/internal/services"
)

// FFmpegOptions configures the ffmpeg engine.
type FFmpegOptions struct {
	Binary           string
	SegmentExtension string
	OutputExtension  string
	AudioQuality     string
	AudioBitrate     string
	Logger           *slog.Logger
}

// FFmpeg implements Engine by running the ffmpeg binary.
type FFmpeg struct {
	binary     string
	segmentExt string
	outputExt  string
	quality    string
	bitrate    string
	runner     commandRunner
	logger     *slog.Logger
}

// NewFFmpeg constructs an engine from explicit options.
func NewFFmpeg(opts FFmpegOptions) *FFmpeg {
	return &FFmpeg{
		binary:     valueOr(opts.Binary, "ffmpeg"),
		segmentExt: valueOr(opts.SegmentExtension, "mp4"),
		outputExt:  valueOr(opts.OutputExtension, "mp3"),
		quality:    valueOr(opts.AudioQuality, "0"),
		bitrate:    valueOr(opts.AudioBitrate, "128k"),
		runner:     execRunner{},
		logger:     logging.NewComponentLogger(opts.Logger, "ffmpeg"),
	}
}

// NewFFmpegFromConfig builds the engine from the pipeline and ffmpeg sections.
func NewFFmpegFromConfig(cfg *config.Config, logger *slog.Logger) *FFmpeg {
	return NewFFmpeg(FFmpegOptions{
		Binary:           cfg.FFmpeg.FFmpegBinary,
		SegmentExtension: cfg.Pipeline.SegmentExtension,
		OutputExtension:  cfg.Pipeline.OutputExtension,
		AudioQuality:     cfg.Pipeline.AudioQuality,
		AudioBitrate:     cfg.Pipeline.AudioBitrate,
		Logger:           logger,
	})
}

// OutputExtension is the extension used for extracted, compressed, and merged audio.
func (f *FFmpeg) OutputExtension() string {
	return f.outputExt
}

func (f *FFmpeg) run(ctx context.Context, stage string, args ...string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y"}, args...)
	logging.WithContext(ctx, f.logger).Debug("running ffmpeg",
		logging.String(logging.FieldStage, stage),
		logging.String("args", strings.Join(full, " ")),
	)
	_, err := f.runner.Run(ctx, f.binary, full...)
	return err
}

// Segment splits the input with the segment muxer using stream copy.
func (f *FFmpeg) Segment(ctx context.Context, req SegmentRequest) ([]string, error) {
	seconds := int(req.Chunk.Seconds())
	if seconds <= 0 {
		return nil, services.Wrap(services.ErrSegmentation, StageSegment, "plan", "segment length must be positive", nil)
	}
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSegmentation, StageSegment, "prepare", "create work directory", err)
	}
	pattern := SegmentPattern(req.WorkDir, req.BaseName, f.segmentExt)
	err := f.run(ctx, StageSegment,
		"-i", req.InputPath,
		// Only the first video and the audio streams go into the segments; the
		// segment container cannot carry subtitle, attachment, or data tracks.
		"-map", "0:v:0?",
		"-map", "0:a?",
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.Itoa(seconds),
		"-reset_timestamps", "1",
		pattern,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrSegmentation, StageSegment, "ffmpeg segment", "split failed", err)
	}
	segments, err := ListSegments(req.WorkDir, req.BaseName, f.segmentExt)
	if err != nil {
		return nil, services.Wrap(services.ErrSegmentation, StageSegment, "list", "read segment directory", err)
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrSegmentation, StageSegment, "list", "no segments produced", nil)
	}
	return segments, nil
}

// ExtractAudio drops video and writes the audio track at the configured VBR quality.
func (f *FFmpeg) ExtractAudio(ctx context.Context, segmentPath string) (string, error) {
	out := ReplaceExtension(segmentPath, f.outputExt)
	if err := f.run(ctx, StageExtract, "-i", segmentPath, "-vn", "-map", "a", "-q:a", f.quality, out); err != nil {
		return "", services.Wrap(services.ErrExtraction, StageExtract, "ffmpeg extract", segmentPath, err)
	}
	return out, nil
}

// CompressAudio re-encodes audio at the configured bitrate.
func (f *FFmpeg) CompressAudio(ctx context.Context, audioPath string) (string, error) {
	out := CompressedPath(audioPath)
	if err := f.run(ctx, StageCompress, "-i", audioPath, "-b:a", f.bitrate, out); err != nil {
		return "", services.Wrap(services.ErrCompression, StageCompress, "ffmpeg compress", audioPath, err)
	}
	return out, nil
}

// Concatenate joins the manifest entries without re-encoding.
func (f *FFmpeg) Concatenate(ctx context.Context, manifestPath, outputPath string) (string, error) {
	if err := f.run(ctx, StageMerge, "-f", "concat", "-safe", "0", "-i", manifestPath, "-c", "copy", outputPath); err != nil {
		return "", services.Wrap(services.ErrMerge, StageMerge, "ffmpeg concat", fmt.Sprintf("manifest %s", manifestPath), err)
	}
	return outputPath, nil
}

func valueOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
