// Package daemon coordinates the long-running audiomill process.
//
// It ties the task supervisor, the optional history store, and the HTTP API
// into a single lifecycle with flock-based locking to prevent multiple
// instances sharing one log directory. The API is a thin adapter: uploads are
// streamed straight into the supervisor and progress queries return the
// progress table's status string verbatim.
//
// Keep orchestration logic here: conversion steps live in pipeline and media
// while the daemon focuses on startup, shutdown, and request routing.
package daemon
