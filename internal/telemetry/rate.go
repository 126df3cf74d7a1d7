// Package telemetry turns raw daemon counters into display rates and keeps
// short per-metric histories for charts.
package telemetry

import (
	"sync"
	"time"
)

// minInterval guards the rate divisor against duplicate timestamps.
const minInterval = time.Millisecond

// Stream names used by sessions for network counters.
const (
	StreamRx = "rx"
	StreamTx = "tx"
)

type sample struct {
	counter uint64
	at      time.Time
}

// RateSampler converts cumulative counters into per-second rates, keeping one
// baseline per named stream.
type RateSampler struct {
	mu   sync.Mutex
	prev map[string]sample
}

// NewRateSampler creates a sampler with no baselines.
func NewRateSampler() *RateSampler {
	return &RateSampler{prev: make(map[string]sample)}
}

// Sample records counter at time at and returns the rate since the previous
// sample on the same stream. The first sample of a stream only stores the
// baseline and returns ok=false. A counter that went backwards (daemon
// restart) yields 0 and becomes the new baseline.
func (s *RateSampler) Sample(stream string, counter uint64, at time.Time) (rate float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, seen := s.prev[stream]
	s.prev[stream] = sample{counter: counter, at: at}
	if !seen {
		return 0, false
	}

	var delta uint64
	if counter > prev.counter {
		delta = counter - prev.counter
	}

	dt := at.Sub(prev.at)
	if dt < minInterval {
		dt = minInterval
	}
	return float64(delta) / dt.Seconds(), true
}

// Reset drops every baseline. Called when a session (re)connects.
func (s *RateSampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prev = make(map[string]sample)
}
