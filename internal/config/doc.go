// Package config loads, normalizes, and validates audiomill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AUDIOMILL_API_TOKEN. The Config type centralizes every knob the daemon and
// CLI need, from segment length and worker pool size to the directories that
// hold per-task scratch space and finished audio.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
