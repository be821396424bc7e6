package app

import (
	"sync"
	"time"

	"github.com/corey/linecheck/internal/adapters/tcp"
)

// latencyWindow is the rolling window for the median handling time.
const latencyWindow = 5 * time.Minute

// Stats accumulates per-connection outcomes. Safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	responses map[tcp.Response]uint64
	handled   uint64
	total     time.Duration
	max       time.Duration
	latency   *LatencyTracker

	reloads  uint64
	lastLoad time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Handled   uint64
	Responses map[string]uint64 // keyed by response label
	Avg       time.Duration
	P50       time.Duration
	Max       time.Duration
	Reloads   uint64
	LastLoad  time.Time
}

// NewStats creates an empty collector.
func NewStats() *Stats {
	return &Stats{
		responses: make(map[tcp.Response]uint64),
		latency:   NewLatencyTracker(latencyWindow),
	}
}

// Observe records one handled connection. It has the tcp.Observer signature.
func (s *Stats) Observe(resp tcp.Response, elapsed time.Duration) {
	s.observeAt(time.Now(), resp, elapsed)
}

func (s *Stats) observeAt(now time.Time, resp tcp.Response, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[resp]++
	s.handled++
	s.total += elapsed
	if elapsed > s.max {
		s.max = elapsed
	}
	s.latency.RecordAt(now, elapsed)
}

// Loaded records a successful (re)load of a snapshot strategy.
func (s *Stats) Loaded(at time.Time, reload bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reload {
		s.reloads++
	}
	s.lastLoad = at
}

// Snapshot returns a copy of the counters. Every known response appears,
// zero or not.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Handled:   s.handled,
		Responses: make(map[string]uint64, len(tcp.Responses)),
		P50:       s.latency.P50At(time.Now()),
		Max:       s.max,
		Reloads:   s.reloads,
		LastLoad:  s.lastLoad,
	}
	for _, r := range tcp.Responses {
		snap.Responses[r.Label()] = s.responses[r]
	}
	if s.handled > 0 {
		snap.Avg = s.total / time.Duration(s.handled)
	}
	return snap
}
