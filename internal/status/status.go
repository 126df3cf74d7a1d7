// Package status fans a utilization probe out across the fleet and reduces
// the answers into one health summary.
package status

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/metrics"
	"github.com/rileyhilliard/deckhand/internal/probe"
)

// Health is a node's bucket in the summary.
type Health string

const (
	Healthy   Health = "healthy"
	Unhealthy Health = "unhealthy"
)

// Options are the three independent visibility flags. They only change what
// FleetStatus discloses, never how the summary is computed.
type Options struct {
	ShowNodeStatus      bool
	ShowLoadUsage       bool
	ShowIndividualNodes bool
}

// NodeResult is the outcome of probing one node.
type NodeResult struct {
	Node     fleet.Node
	Snapshot *probe.Snapshot
	Err      error
	Latency  time.Duration
}

// Health reports healthy iff the probe returned a non-empty snapshot.
func (r NodeResult) Health() Health {
	if r.Err == nil && r.Snapshot != nil {
		return Healthy
	}
	return Unhealthy
}

// Summary is the full reduction over every probe result.
type Summary struct {
	Total         int
	Healthy       int
	Unhealthy     int
	TotalMemory   uint64
	UsedMemory    uint64
	TotalDisk     uint64
	UsedDisk      uint64
	AvgCPUPercent float64
}

// Global is the disclosed fleet-wide block. Load fields are nil unless load
// usage is shown.
type Global struct {
	TotalNodes     int      `json:"total_nodes"`
	HealthyNodes   int      `json:"healthy_nodes"`
	UnhealthyNodes int      `json:"unhealthy_nodes"`
	TotalMemory    *uint64  `json:"total_memory,omitempty"`
	UsedMemory     *uint64  `json:"used_memory,omitempty"`
	TotalDisk      *uint64  `json:"total_disk,omitempty"`
	UsedDisk       *uint64  `json:"used_disk,omitempty"`
	AvgCPUPercent  *float64 `json:"avg_cpu_percent,omitempty"`
}

// NodeStatus is one disclosed per-node entry.
type NodeStatus struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	FQDN        string          `json:"fqdn"`
	Status      Health          `json:"status"`
	Utilization *probe.Snapshot `json:"utilization"`
	Error       string          `json:"error,omitempty"`
}

// FleetStatus is what callers see. Global is nil unless node status or load
// usage is shown; Nodes is nil unless individual nodes are shown.
type FleetStatus struct {
	Global  *Global
	Nodes   []NodeStatus
	Summary Summary
}

// MarshalJSON omits hidden sections and keeps a shown but empty node list as [].
func (f FleetStatus) MarshalJSON() ([]byte, error) {
	out := struct {
		Global *Global       `json:"global,omitempty"`
		Nodes  *[]NodeStatus `json:"nodes,omitempty"`
	}{Global: f.Global}
	if f.Nodes != nil {
		out.Nodes = &f.Nodes
	}
	return json.Marshal(out)
}

// Aggregator probes every node in parallel and builds FleetStatus.
type Aggregator struct {
	prober   probe.Prober
	registry fleet.Registry
	timeout  time.Duration
	log      logger.Logger
}

// NewAggregator creates an aggregator. registry may be nil when only
// Aggregate is used.
func NewAggregator(p probe.Prober, registry fleet.Registry, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = probe.DefaultTimeout
	}
	return &Aggregator{
		prober:   p,
		registry: registry,
		timeout:  timeout,
		log:      logger.NewEnvLogger("[status]"),
	}
}

// SetLogger replaces the aggregator's logger.
func (a *Aggregator) SetLogger(l logger.Logger) {
	a.log = l
}

// Collect reads the registry and aggregates over its nodes.
func (a *Aggregator) Collect(ctx context.Context, opts Options) (FleetStatus, error) {
	nodes, err := a.registry.Nodes(ctx)
	if err != nil {
		return FleetStatus{}, err
	}
	return a.Aggregate(ctx, nodes, opts), nil
}

// Aggregate probes all nodes concurrently and reduces the results. Output
// order follows input order regardless of completion order.
func (a *Aggregator) Aggregate(ctx context.Context, nodes []fleet.Node, opts Options) FleetStatus {
	results := a.probeAll(ctx, nodes)
	summary := Summarize(results)
	metrics.SetFleetNodes(summary.Healthy, summary.Unhealthy)
	a.log.Debug("aggregated %d nodes: %d healthy, %d unhealthy", summary.Total, summary.Healthy, summary.Unhealthy)
	return Disclose(results, summary, opts)
}

// probeAll writes each result into its own slot; no shared counters.
func (a *Aggregator) probeAll(ctx context.Context, nodes []fleet.Node) []NodeResult {
	results := make([]NodeResult, len(nodes))
	var wg sync.WaitGroup

	for i, node := range nodes {
		wg.Add(1)
		go func(i int, node fleet.Node) {
			defer wg.Done()
			results[i] = a.probeOne(ctx, node)
		}(i, node)
	}

	wg.Wait()
	return results
}

func (a *Aggregator) probeOne(ctx context.Context, node fleet.Node) NodeResult {
	start := time.Now()
	snap, err := a.prober.Probe(ctx, node, a.timeout)
	res := NodeResult{Node: node, Snapshot: snap, Err: err, Latency: time.Since(start)}
	if err != nil {
		a.log.Debug("node %s unhealthy: %v", node.Label(), err)
	}
	return res
}

// Stream probes all nodes and sends each result as it completes. The channel
// closes once every node has answered or timed out; the fleet gauges are set
// before it closes.
func (a *Aggregator) Stream(ctx context.Context, nodes []fleet.Node) <-chan NodeResult {
	out := make(chan NodeResult, len(nodes))

	if len(nodes) == 0 {
		metrics.SetFleetNodes(0, 0)
		close(out)
		return out
	}

	var healthy atomic.Int64
	var wg sync.WaitGroup
	for _, node := range nodes {
		wg.Add(1)
		go func(node fleet.Node) {
			defer wg.Done()
			r := a.probeOne(ctx, node)
			if r.Health() == Healthy {
				healthy.Add(1)
			}
			out <- r
		}(node)
	}

	go func() {
		wg.Wait()
		h := int(healthy.Load())
		metrics.SetFleetNodes(h, len(nodes)-h)
		close(out)
	}()

	return out
}

// Summarize reduces probe results. Only healthy snapshots contribute load
// figures, and each figure only when the snapshot reports it.
func Summarize(results []NodeResult) Summary {
	s := Summary{Total: len(results)}
	var cpuSum float64

	for _, r := range results {
		if r.Health() != Healthy {
			s.Unhealthy++
			continue
		}
		s.Healthy++

		snap := r.Snapshot
		if snap.CPUPercent != nil {
			cpuSum += *snap.CPUPercent
		}
		// Used counts only alongside its total.
		if snap.MemoryTotal != nil {
			s.TotalMemory += *snap.MemoryTotal
			if snap.MemoryUsed != nil {
				s.UsedMemory += *snap.MemoryUsed
			}
		}
		if snap.DiskTotal != nil {
			s.TotalDisk += *snap.DiskTotal
			if snap.DiskUsed != nil {
				s.UsedDisk += *snap.DiskUsed
			}
		}
	}

	if s.Healthy > 0 {
		s.AvgCPUPercent = round2(cpuSum / float64(s.Healthy))
	}
	return s
}

// Disclose applies the visibility flags to a computed summary.
func Disclose(results []NodeResult, s Summary, opts Options) FleetStatus {
	fs := FleetStatus{Summary: s}

	if opts.ShowNodeStatus || opts.ShowLoadUsage {
		g := &Global{
			TotalNodes:     s.Total,
			HealthyNodes:   s.Healthy,
			UnhealthyNodes: s.Unhealthy,
		}
		if opts.ShowLoadUsage {
			totalMem, usedMem := s.TotalMemory, s.UsedMemory
			totalDisk, usedDisk := s.TotalDisk, s.UsedDisk
			avg := s.AvgCPUPercent
			g.TotalMemory = &totalMem
			g.UsedMemory = &usedMem
			g.TotalDisk = &totalDisk
			g.UsedDisk = &usedDisk
			g.AvgCPUPercent = &avg
		}
		fs.Global = g
	}

	if opts.ShowIndividualNodes {
		fs.Nodes = make([]NodeStatus, 0, len(results))
		for _, r := range results {
			fs.Nodes = append(fs.Nodes, r.Status())
		}
	}

	return fs
}

// Status renders the per-node entry for r.
func (r NodeResult) Status() NodeStatus {
	ns := NodeStatus{
		ID:     r.Node.ID,
		Name:   r.Node.Name,
		FQDN:   r.Node.FQDN,
		Status: r.Health(),
	}
	if ns.Status == Healthy {
		ns.Utilization = r.Snapshot
		return ns
	}
	ns.Error = string(probe.ReasonOf(r.Err))
	if ns.Error == "" {
		ns.Error = string(probe.ReasonEmpty)
	}
	return ns
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
