package app

import (
	"slices"
	"time"
)

// minLatencySamples is how many samples P50 needs before it reports.
const minLatencySamples = 5

// LatencyTracker keeps per-connection handling times over a rolling window
// and reports their median.
// Not thread-safe; Stats serializes access.
type LatencyTracker struct {
	window  time.Duration
	samples []latencySample
}

type latencySample struct {
	ts      time.Time
	elapsed time.Duration
}

// NewLatencyTracker creates a tracker with the given rolling window.
func NewLatencyTracker(window time.Duration) *LatencyTracker {
	return &LatencyTracker{window: window}
}

// RecordAt adds a sample observed at ts. Samples must arrive in time order.
func (l *LatencyTracker) RecordAt(ts time.Time, elapsed time.Duration) {
	if elapsed < 0 {
		return
	}
	l.samples = append(l.samples, latencySample{ts: ts, elapsed: elapsed})
	l.evict(ts)
}

// P50At returns the median within the window ending at now, or 0 with fewer
// than minLatencySamples samples.
func (l *LatencyTracker) P50At(now time.Time) time.Duration {
	l.evict(now)
	if len(l.samples) < minLatencySamples {
		return 0
	}
	vals := make([]time.Duration, len(l.samples))
	for i, s := range l.samples {
		vals[i] = s.elapsed
	}
	slices.Sort(vals)
	return vals[len(vals)/2]
}

// Len returns the number of samples currently in the window.
func (l *LatencyTracker) Len() int {
	return len(l.samples)
}

// evict removes samples older than the window.
func (l *LatencyTracker) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.samples) && l.samples[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.samples = l.samples[i:]
	}
}
