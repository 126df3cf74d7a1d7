// Package probe asks a node's daemon for its system utilization.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/metrics"
)

// UtilizationPath is the daemon endpoint that reports host utilization.
const UtilizationPath = "/api/system/utilization"

// DefaultTimeout bounds a single probe when the caller passes zero.
const DefaultTimeout = 10 * time.Second

// ErrUnreachable matches every ProbeError via errors.Is. The aggregator does
// not distinguish failure reasons when bucketing nodes.
var ErrUnreachable = errors.New("node unreachable")

// Reason categorizes why a probe failed.
type Reason string

const (
	ReasonUnknown     Reason = "unknown"
	ReasonTimeout     Reason = "timeout"
	ReasonRefused     Reason = "refused"
	ReasonUnreachable Reason = "unreachable"
	ReasonHTTPStatus  Reason = "http-status"
	ReasonEmpty       Reason = "empty"
	ReasonMalformed   Reason = "malformed"
)

// Describe returns a human-readable description of the failure reason.
func (r Reason) Describe() string {
	switch r {
	case ReasonTimeout:
		return "request timed out"
	case ReasonRefused:
		return "connection refused"
	case ReasonUnreachable:
		return "host unreachable"
	case ReasonHTTPStatus:
		return "daemon returned an error status"
	case ReasonEmpty:
		return "daemon reported no utilization"
	case ReasonMalformed:
		return "daemon sent an unreadable response"
	default:
		return "unknown error"
	}
}

// ProbeError represents a failed probe with a categorized reason.
type ProbeError struct {
	Node   string
	Reason Reason
	Cause  error
}

func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("probe %s failed: %s (%v)", e.Node, e.Reason.Describe(), e.Cause)
	}
	return fmt.Sprintf("probe %s failed: %s", e.Node, e.Reason.Describe())
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Is makes every ProbeError match ErrUnreachable.
func (e *ProbeError) Is(target error) bool {
	return target == ErrUnreachable
}

// ReasonOf extracts the probe failure reason from err, or "" for nil.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ReasonUnknown
}

// DiskDetail is one mount reported by the daemon.
type DiskDetail struct {
	Mountpoint string   `json:"mountpoint"`
	Device     string   `json:"device"`
	Used       uint64   `json:"used"`
	Total      uint64   `json:"total"`
	Tags       []string `json:"tags,omitempty"`
}

// Snapshot is a node's utilization at one moment. Pointer fields are nil
// when the daemon did not report them, which is distinct from zero.
type Snapshot struct {
	CPUPercent    *float64     `json:"cpu_percent,omitempty"`
	MemoryTotal   *uint64      `json:"memory_total,omitempty"`
	MemoryUsed    *uint64      `json:"memory_used,omitempty"`
	DiskTotal     *uint64      `json:"disk_total,omitempty"`
	DiskUsed      *uint64      `json:"disk_used,omitempty"`
	SwapTotal     *uint64      `json:"swap_total,omitempty"`
	SwapUsed      *uint64      `json:"swap_used,omitempty"`
	LoadAverage1  *float64     `json:"load_average1,omitempty"`
	LoadAverage5  *float64     `json:"load_average5,omitempty"`
	LoadAverage15 *float64     `json:"load_average15,omitempty"`
	DiskDetails   []DiskDetail `json:"disk_details,omitempty"`
}

// Prober fetches a utilization snapshot from one node.
type Prober interface {
	Probe(ctx context.Context, node fleet.Node, timeout time.Duration) (*Snapshot, error)
}

// HTTPProber probes daemons over their HTTP API.
type HTTPProber struct {
	client    *http.Client
	userAgent string
}

// NewHTTPProber creates a prober. A nil client uses a fresh http.Client;
// timeouts come from the per-call context rather than the client.
func NewHTTPProber(client *http.Client, version string) *HTTPProber {
	if client == nil {
		client = &http.Client{}
	}
	if version == "" {
		version = "dev"
	}
	return &HTTPProber{client: client, userAgent: "deckhand/" + version}
}

// Probe issues GET {base}/api/system/utilization with the node's bearer token.
// Any failure comes back as a *ProbeError. The probe never outlives timeout.
func (p *HTTPProber) Probe(ctx context.Context, node fleet.Node, timeout time.Duration) (*Snapshot, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	label := node.Label()
	start := time.Now()
	snap, err := p.fetch(ctx, node)
	metrics.RecordProbe(label, resultLabel(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (p *HTTPProber) fetch(ctx context.Context, node fleet.Node) (*Snapshot, error) {
	label := node.Label()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, node.BaseURL()+UtilizationPath, nil)
	if err != nil {
		return nil, &ProbeError{Node: label, Reason: ReasonUnknown, Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+node.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, categorize(label, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, categorize(label, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProbeError{
			Node:   label,
			Reason: ReasonHTTPStatus,
			Cause:  fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	return Decode(label, body)
}

// Decode parses a utilization body. An empty body, null, or an object with
// no keys is ReasonEmpty; anything that is not a JSON object is ReasonMalformed.
func Decode(node string, body []byte) (*Snapshot, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &ProbeError{Node: node, Reason: ReasonEmpty}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, &ProbeError{Node: node, Reason: ReasonMalformed, Cause: err}
	}
	if len(fields) == 0 {
		return nil, &ProbeError{Node: node, Reason: ReasonEmpty}
	}

	var snap Snapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return nil, &ProbeError{Node: node, Reason: ReasonMalformed, Cause: err}
	}
	return &snap, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(ReasonOf(err))
}

// categorize converts a transport error into a ProbeError.
func categorize(node string, err error) *ProbeError {
	pe := &ProbeError{Node: node, Reason: ReasonUnknown, Cause: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Reason = ReasonTimeout
		return pe
	case errors.As(err, &netErr) && netErr.Timeout():
		pe.Reason = ReasonTimeout
		return pe
	case errors.Is(err, syscall.ECONNREFUSED):
		pe.Reason = ReasonRefused
		return pe
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		pe.Reason = ReasonUnreachable
		return pe
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		pe.Reason = ReasonTimeout
		return pe
	}

	if strings.Contains(errStr, "connection refused") {
		pe.Reason = ReasonRefused
		return pe
	}

	if strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "host is down") {
		pe.Reason = ReasonUnreachable
		return pe
	}

	return pe
}
