// Package logging assembles the slog loggers used by the daemon and CLI.
//
// It provides the console and JSON handlers, level and output plumbing, and
// context helpers that tag log lines with task IDs, pipeline stages, and
// request correlation IDs. A bounded StreamHub keeps recent events in memory
// for the HTTP log tail, and NewNop serves tests and optional wiring.
package logging
