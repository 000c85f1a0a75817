package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"audiomill/internal/media"
	"audiomill/internal/services"
)

// fakeEngine is a deterministic media.Engine that writes empty artifacts
// instead of spawning ffmpeg.
type fakeEngine struct {
	segments     int
	segmentErr   error
	extractErr   map[int]error
	compressErr  map[int]error
	concatErr    error
	delay        func(idx int) time.Duration
	blockOnError bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	extracted   atomic.Int32

	mu       sync.Mutex
	manifest []string
	segCalls int
}

var _ media.Engine = (*fakeEngine)(nil)

func (f *fakeEngine) Segment(_ context.Context, req media.SegmentRequest) ([]string, error) {
	f.mu.Lock()
	f.segCalls++
	f.mu.Unlock()
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return nil, err
	}
	out := make([]string, 0, f.segments)
	for i := range f.segments {
		path := filepath.Join(req.WorkDir, fmt.Sprintf("%s_part_%03d.mp4", req.BaseName, i))
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}

func (f *fakeEngine) ExtractAudio(ctx context.Context, segmentPath string) (string, error) {
	idx := ordinal(segmentPath)
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxInFlight.Load()
		if current <= seen || f.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	f.extracted.Add(1)

	if f.delay != nil {
		select {
		case <-time.After(f.delay(idx)):
		case <-ctx.Done():
			return "", services.Wrap(services.ErrExtraction, media.StageExtract, "fake", "killed", ctx.Err())
		}
	}
	if err, ok := f.extractErr[idx]; ok {
		return "", err
	}
	if f.blockOnError && len(f.extractErr) > 0 {
		<-ctx.Done()
		return "", services.Wrap(services.ErrExtraction, media.StageExtract, "fake", "killed", ctx.Err())
	}
	out := media.ReplaceExtension(segmentPath, "mp3")
	return out, os.WriteFile(out, nil, 0o644)
}

func (f *fakeEngine) CompressAudio(_ context.Context, audioPath string) (string, error) {
	if err, ok := f.compressErr[ordinal(audioPath)]; ok {
		return "", err
	}
	out := media.CompressedPath(audioPath)
	return out, os.WriteFile(out, nil, 0o644)
}

func (f *fakeEngine) Concatenate(_ context.Context, manifestPath, outputPath string) (string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.manifest = strings.Split(strings.TrimSpace(string(data)), "\n")
	f.mu.Unlock()
	if f.concatErr != nil {
		return "", f.concatErr
	}
	return outputPath, os.WriteFile(outputPath, []byte("audio"), 0o644)
}

func (f *fakeEngine) manifestLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.manifest...)
}

func ordinal(path string) int {
	name := filepath.Base(path)
	idx := strings.LastIndex(name, "_part_")
	if idx < 0 {
		return -1
	}
	digits := name[idx+len("_part_"):]
	if len(digits) >= 3 {
		digits = digits[:3]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return -1
	}
	return n
}
