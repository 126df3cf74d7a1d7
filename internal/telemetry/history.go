package telemetry

import (
	"sync"
	"time"
)

// DefaultHistorySize is the number of points kept per metric.
const DefaultHistorySize = 60

// Metric names a chart series.
type Metric string

const (
	MetricCPU     Metric = "cpu"
	MetricMemory  Metric = "memory"
	MetricDisk    Metric = "disk"
	MetricNetwork Metric = "network"
)

// Metrics lists every series in display order.
var Metrics = []Metric{MetricCPU, MetricMemory, MetricDisk, MetricNetwork}

// Point is one timestamped sample.
type Point struct {
	Time  time.Time
	Value float64
}

// History keeps a fixed-size ring of points per metric. Safe for one writer
// and many concurrent readers.
type History struct {
	mu      sync.RWMutex
	size    int
	metrics map[Metric]*ringBuffer
}

// ringBuffer is a fixed-size circular buffer of points.
type ringBuffer struct {
	data  []Point
	head  int
	count int
	size  int
}

// NewHistory creates a history holding size points per metric.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:    size,
		metrics: make(map[Metric]*ringBuffer),
	}
}

// Size is the per-metric capacity.
func (h *History) Size() int {
	return h.size
}

// Push appends a point, evicting the oldest once the ring is full.
func (h *History) Push(m Metric, p Point) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rb, ok := h.metrics[m]
	if !ok {
		rb = newRingBuffer(h.size)
		h.metrics[m] = rb
	}
	rb.push(p)
}

// Points returns up to n most recent points, oldest first. n <= 0 returns all.
func (h *History) Points(m Metric, n int) []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rb, ok := h.metrics[m]
	if !ok {
		return nil
	}
	if n <= 0 {
		n = rb.count
	}
	return rb.getLast(n)
}

// Values is Points without timestamps, for sparklines.
func (h *History) Values(m Metric, n int) []float64 {
	pts := h.Points(m, n)
	if pts == nil {
		return nil
	}
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}

// Latest returns the newest point for m.
func (h *History) Latest(m Metric) (Point, bool) {
	pts := h.Points(m, 1)
	if len(pts) == 0 {
		return Point{}, false
	}
	return pts[0], true
}

// Len returns how many points m holds.
func (h *History) Len(m Metric) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rb, ok := h.metrics[m]
	if !ok {
		return 0
	}
	return rb.count
}

// Reset drops every series.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = make(map[Metric]*ringBuffer)
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data: make([]Point, size),
		size: size,
	}
}

func (r *ringBuffer) push(p Point) {
	r.data[r.head] = p
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// getLast returns the last count points oldest first. head is the next write
// slot, so the newest point sits at head-1.
func (r *ringBuffer) getLast(count int) []Point {
	if count <= 0 || r.count == 0 {
		return nil
	}
	if count > r.count {
		count = r.count
	}

	result := make([]Point, count)
	start := (r.head - count + r.size) % r.size
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}
