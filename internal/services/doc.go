// Package services defines shared utilities consumed by the conversion
// pipeline, the task supervisor, and the HTTP surface.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so every failure carries
//     a stable classification (validation, segmentation, extraction,
//     compression, merge) independent of its message text.
//   - Details, which flattens a wrapped error into fields suitable for
//     structured logs.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability) stays uniform across stages.
package services
