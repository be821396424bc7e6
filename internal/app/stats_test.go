package app

import (
	"sync"
	"testing"
	"time"

	"github.com/corey/linecheck/internal/adapters/tcp"
	"github.com/stretchr/testify/assert"
)

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(time.Minute)
	assert.Zero(t, lt.P50At(time.Now()))
	assert.Zero(t, lt.Len())
}

func TestLatencyTracker_InsufficientSamples(t *testing.T) {
	lt := NewLatencyTracker(time.Minute)
	now := time.Now()
	for i := 0; i < minLatencySamples-1; i++ {
		lt.RecordAt(now, time.Millisecond)
	}
	assert.Zero(t, lt.P50At(now))
}

func TestLatencyTracker_Median(t *testing.T) {
	lt := NewLatencyTracker(time.Minute)
	now := time.Now()
	for i, ms := range []int{15, 5, 12, 8, 10} {
		lt.RecordAt(now.Add(time.Duration(i)*time.Millisecond), time.Duration(ms)*time.Millisecond)
	}
	// Sorted: 5 8 10 12 15.
	assert.Equal(t, 10*time.Millisecond, lt.P50At(now.Add(10*time.Millisecond)))
}

func TestLatencyTracker_WindowEviction(t *testing.T) {
	lt := NewLatencyTracker(time.Minute)
	base := time.Now()
	for i := 0; i < 5; i++ {
		lt.RecordAt(base, time.Second)
	}
	for i := 0; i < 5; i++ {
		lt.RecordAt(base.Add(2*time.Minute), time.Millisecond)
	}
	assert.Equal(t, 5, lt.Len())
	assert.Equal(t, time.Millisecond, lt.P50At(base.Add(2*time.Minute)))
	assert.Zero(t, lt.P50At(base.Add(10*time.Minute)))
}

func TestLatencyTracker_IgnoresNegative(t *testing.T) {
	lt := NewLatencyTracker(time.Minute)
	lt.RecordAt(time.Now(), -time.Second)
	assert.Zero(t, lt.Len())
}

func TestStats_Snapshot(t *testing.T) {
	s := NewStats()
	now := time.Now()
	s.observeAt(now, tcp.RespExists, 2*time.Millisecond)
	s.observeAt(now, tcp.RespExists, 4*time.Millisecond)
	s.observeAt(now, tcp.RespPayloadTooLarge, 6*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, uint64(3), snap.Handled)
	assert.Equal(t, uint64(2), snap.Responses["STRING EXISTS"])
	assert.Equal(t, uint64(1), snap.Responses["PAYLOAD TOO LARGE"])
	assert.Equal(t, 4*time.Millisecond, snap.Avg)
	assert.Equal(t, 6*time.Millisecond, snap.Max)
	assert.Len(t, snap.Responses, len(tcp.Responses), "every response label is reported")
}

func TestStats_Loaded(t *testing.T) {
	s := NewStats()
	at := time.Now()
	s.Loaded(at, false)
	assert.Zero(t, s.Snapshot().Reloads)
	assert.Equal(t, at, s.Snapshot().LastLoad)

	s.Loaded(at.Add(time.Second), true)
	assert.Equal(t, uint64(1), s.Snapshot().Reloads)
}

func TestStats_ConcurrentObserve(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Observe(tcp.RespNotFound, time.Microsecond)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), s.Snapshot().Responses["STRING NOT FOUND"])
}
