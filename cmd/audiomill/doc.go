// Package main hosts the audiomill CLI entrypoint and command graph.
//
// The Cobra command tree runs the conversion daemon, submits videos to it over
// HTTP, polls task progress, lists live and historical tasks, tails daemon
// logs, and scaffolds configuration. The convert command runs the same
// pipeline in-process for one file without a daemon.
//
// Keep this package thin: behavior lives in the internal packages and is
// surfaced here through commands and flags.
package main
