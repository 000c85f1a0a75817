// Package media defines the transcoding contract the conversion pipeline
// depends on and the ffmpeg-backed implementation used in production.
//
// Engine exposes four synchronous, process-boundary operations: Segment,
// ExtractAudio, CompressAudio, and Concatenate. Failures carry the pipeline
// stage marker from services (ErrSegmentation, ErrExtraction, ErrCompression,
// ErrMerge) wrapped around a *CommandError describing the subprocess. Callers
// treat the engine as opaque and never interpret codec diagnostics.
//
// The naming helpers derive sanitized base names, segment patterns, unique
// output paths, and concat manifests.
package media
