// Package api defines the JSON payloads served by the daemon's HTTP API and
// a client for them. The daemon renders these types; the CLI decodes them.
package api
