// Package pipeline runs one conversion task from a staged video to a merged
// audio file.
//
// Orchestrator.Run segments the input, records the segment total in the
// progress store, fans the per-segment extract and compress steps out to a
// bounded errgroup, restores source order by writing each result into the
// slot for its ordinal, writes the concat manifest, and merges. The first
// segment failure cancels the remaining work. The task's work directory is
// removed on every exit path.
//
// Run reports the outcome through its error and leaves terminal progress
// transitions to the caller, so a supervisor can decide between Completed and
// Failed after recording history.
package pipeline
