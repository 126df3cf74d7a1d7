// Package testing provides test doubles for the probe package.
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/probe"
)

// FakeResult configures what the fake returns for one node.
type FakeResult struct {
	Snapshot *probe.Snapshot
	Err      error
	Delay    time.Duration // Simulated round trip; honors ctx cancellation
}

// FakeProber answers probes from a table keyed by node ID. Unknown nodes
// fail with ReasonUnreachable.
type FakeProber struct {
	mu      sync.Mutex
	results map[int]FakeResult

	// Tracking for assertions
	Calls    []int
	Timeouts []time.Duration
}

// NewFakeProber creates an empty fake.
func NewFakeProber() *FakeProber {
	return &FakeProber{results: make(map[int]FakeResult)}
}

// Healthy makes node id report snap.
func (f *FakeProber) Healthy(id int, snap *probe.Snapshot) *FakeProber {
	return f.Set(id, FakeResult{Snapshot: snap})
}

// Failing makes node id fail with the given reason.
func (f *FakeProber) Failing(id int, reason probe.Reason) *FakeProber {
	return f.Set(id, FakeResult{Err: &probe.ProbeError{Node: "fake", Reason: reason}})
}

// Set installs an arbitrary result for node id.
func (f *FakeProber) Set(id int, r FakeResult) *FakeProber {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = r
	return f
}

// Probe implements probe.Prober.
func (f *FakeProber) Probe(ctx context.Context, node fleet.Node, timeout time.Duration) (*probe.Snapshot, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, node.ID)
	f.Timeouts = append(f.Timeouts, timeout)
	r, ok := f.results[node.ID]
	f.mu.Unlock()

	if !ok {
		return nil, &probe.ProbeError{Node: node.Label(), Reason: probe.ReasonUnreachable}
	}

	if r.Delay > 0 {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, &probe.ProbeError{Node: node.Label(), Reason: probe.ReasonTimeout, Cause: ctx.Err()}
		}
	}

	return r.Snapshot, r.Err
}

// CallCount returns how many probes were made.
func (f *FakeProber) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// Float is a helper for building snapshots.
func Float(v float64) *float64 { return &v }

// Uint is a helper for building snapshots.
func Uint(v uint64) *uint64 { return &v }
