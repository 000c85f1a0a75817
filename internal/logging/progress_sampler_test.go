package logging

import (
	"sync"
	"testing"
)

func TestNewProgressSamplerDefaults(t *testing.T) {
	if s := NewProgressSampler(0); s.bucketSize != 10 {
		t.Fatalf("bucketSize = %v, want 10", s.bucketSize)
	}
	if s := NewProgressSampler(25); s.bucketSize != 25 {
		t.Fatalf("bucketSize = %v, want 25", s.bucketSize)
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(1, 10) {
		t.Fatal("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		completed int
		want      bool
	}{
		{1, true},   // 1% opens bucket 0
		{2, false},  // same bucket
		{25, true},  // 25%
		{30, false}, // still 25-49
		{50, true},
		{99, true}, // 75-99
		{100, true},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.completed, 100); got != step.want {
			t.Fatalf("ShouldLog(%d, 100) = %v, want %v", step.completed, got, step.want)
		}
	}
	if s.ShouldLog(100, 100) {
		t.Fatal("completion should only log once")
	}
}

func TestProgressSamplerSmallTotalsLogEverySegment(t *testing.T) {
	s := NewProgressSampler(10)
	for i := 1; i <= 3; i++ {
		if !s.ShouldLog(i, 3) {
			t.Fatalf("expected segment %d of 3 to log", i)
		}
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(50)
	s.ShouldLog(2, 2)
	s.Reset()
	if !s.ShouldLog(1, 2) {
		t.Fatal("expected log after reset")
	}
}

func TestProgressSamplerConcurrent(t *testing.T) {
	s := NewProgressSampler(10)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		emitted int
	)
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(done int) {
			defer wg.Done()
			if s.ShouldLog(done, 100) {
				mu.Lock()
				emitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if emitted < 1 || emitted > 12 {
		t.Fatalf("unexpected emitted count %d", emitted)
	}
}
