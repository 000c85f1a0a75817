// Package fileutil stages streamed uploads onto disk.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTooLarge is returned when a stream exceeds the caller's byte limit.
var ErrTooLarge = errors.New("stream exceeds size limit")

// Written summarizes a staged stream.
type Written struct {
	Size   int64
	SHA256 string
}

// WriteStream copies r into a new file at dst, hashing as it goes. A
// positive limit caps the accepted size: one byte over returns ErrTooLarge and
// dst is removed. dst is also removed on any copy failure.
func WriteStream(r io.Reader, dst string, limit int64) (Written, error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return Written{}, err
	}
	discard := func(cause error) (Written, error) {
		_ = out.Close()
		_ = os.Remove(dst)
		return Written{}, cause
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hasher), src)
	if err != nil {
		return discard(fmt.Errorf("copy stream: %w", err))
	}
	if limit > 0 && written > limit {
		return discard(fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit))
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return Written{}, err
	}
	return Written{Size: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// WriteFileStream stages the file at src into dst under the same rules as
// WriteStream.
func WriteFileStream(src, dst string, limit int64) (Written, error) {
	in, err := os.Open(src)
	if err != nil {
		return Written{}, err
	}
	defer in.Close()
	return WriteStream(in, dst, limit)
}
