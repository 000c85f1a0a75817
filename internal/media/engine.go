package media

import (
	"context"
	"time"
)

// Stage names reported in errors and logs.
const (
	StageProbe    = "probe"
	StageSegment  = "segment"
	StageExtract  = "extract"
	StageCompress = "compress"
	StageMerge    = "merge"
)

// SegmentRequest describes one split of a source video.
type SegmentRequest struct {
	InputPath string
	WorkDir   string
	BaseName  string
	Chunk     time.Duration
}

// Engine performs the transcoding steps of a conversion. Every method blocks
// until the underlying process exits and must honour ctx cancellation.
type Engine interface {
	// Segment splits the input into chunks under req.WorkDir and returns their
	// paths in source order.
	Segment(ctx context.Context, req SegmentRequest) ([]string, error)
	// ExtractAudio writes the audio track of one segment and returns its path.
	ExtractAudio(ctx context.Context, segmentPath string) (string, error)
	// CompressAudio re-encodes extracted audio and returns the compressed path.
	CompressAudio(ctx context.Context, audioPath string) (string, error)
	// Concatenate joins the files listed in manifestPath into outputPath.
	Concatenate(ctx context.Context, manifestPath, outputPath string) (string, error)
}
