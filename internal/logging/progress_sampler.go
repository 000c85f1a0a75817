package logging

import "sync"

// ProgressSampler throttles per-segment progress logs so a task with hundreds
// of segments emits one line per percentage bucket rather than one per segment.
// It is safe for concurrent use by segment workers.
type ProgressSampler struct {
	mu         sync.Mutex
	bucketSize float64
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when completion crosses a
// bucketSize percentage boundary (default 10%).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether completed of total warrants a log line. The final
// unit of work always logs. A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(completed, total int) bool {
	if s == nil || total <= 0 {
		return true
	}
	percent := float64(completed) * 100 / float64(total)
	bucket := int(percent / s.bucketSize)
	if completed >= total {
		bucket = int(100/s.bucketSize) + 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket <= s.lastBucket {
		return false
	}
	s.lastBucket = bucket
	return true
}

// Reset clears the sampler for reuse by another task.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.lastBucket = -1
	s.mu.Unlock()
}
