// Package sysinfo derives host-dependent defaults such as the conversion
// worker bound.
package sysinfo

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// filesPerWorker approximates the descriptors one segment worker holds open:
// the ffmpeg process, its input, output, and stdio pipes.
const filesPerWorker = 8

// reservedFiles keeps headroom for the HTTP listener, the history database,
// and log files.
const reservedFiles = 64

// Limits above this are treated as unlimited.
const maxFileLimit = 1 << 20

// DefaultWorkers returns the number of concurrent segment workers to run when
// the configuration does not pin one. It is bounded by CPU count and by the
// process open-file limit, and never drops below one.
func DefaultWorkers() int {
	return boundWorkers(runtime.NumCPU(), openFileLimit())
}

// OpenFileLimit reports the soft RLIMIT_NOFILE value, or zero when it cannot
// be read.
func OpenFileLimit() uint64 {
	return openFileLimit()
}

func openFileLimit() uint64 {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0
	}
	return rlim.Cur
}

func boundWorkers(cpus int, fileLimit uint64) int {
	workers := cpus
	if workers < 1 {
		workers = 1
	}
	if fileLimit > 0 && fileLimit < maxFileLimit {
		if fileLimit <= reservedFiles {
			return 1
		}
		byFiles := int((fileLimit - reservedFiles) / filesPerWorker)
		if byFiles < workers {
			workers = byFiles
		}
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
