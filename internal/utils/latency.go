package utils

import (
	"slices"
	"sync"
	"time"
)

// LatencyWindow keeps the most recent duration samples in a ring and
// answers percentile queries over them.
type LatencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
}

// NewLatencyWindow creates a window holding up to size samples.
func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 512
	}
	return &LatencyWindow{samples: make([]time.Duration, size)}
}

// Observe records d, overwriting the oldest sample once the window is full.
func (l *LatencyWindow) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples[l.next] = d
	l.next++
	if l.next == len(l.samples) {
		l.next = 0
		l.full = true
	}
}

// Count returns number of samples held.
func (l *LatencyWindow) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count()
}

// Percentile returns the p-th percentile (0-100) using nearest-rank on the
// held samples. Returns zero if no samples.
func (l *LatencyWindow) Percentile(p float64) time.Duration {
	l.mu.Lock()
	sorted := slices.Clone(l.samples[:l.count()])
	l.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)

	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[int((p/100.0)*float64(len(sorted)-1))]
}

func (l *LatencyWindow) count() int {
	if l.full {
		return len(l.samples)
	}
	return l.next
}
