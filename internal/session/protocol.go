package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound daemon events.
const (
	EventAuthSuccess      = "auth success"
	EventAuthError        = "auth error"
	EventAuthErrorAlt     = "auth_error"
	EventStatus           = "status"
	EventStats            = "stats"
	EventConsoleOutput    = "console output"
	EventInstallOutput    = "install output"
	EventInstallStarted   = "install started"
	EventInstallCompleted = "install completed"
	EventBackupCompleted  = "backup completed"
	EventBackupComplete   = "backup complete"
	EventTransferLogs     = "transfer logs"
	EventTransferStatus   = "transfer status"
	EventDaemonError      = "daemon error"
	EventTokenExpiring    = "token expiring"
	EventTokenExpired     = "token expired"
	EventJWTError         = "jwt error"
)

// Outbound requests.
const (
	EventAuth        = "auth"
	EventSendCommand = "send command"
	EventSetState    = "set state"
	EventSendStats   = "send stats"
	EventSendLogs    = "send logs"
)

// DefaultPowerState is assumed when a status event carries no state.
const DefaultPowerState = "offline"

// Message is the daemon socket envelope.
type Message struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

// newMessage builds an outbound message with string arguments. Args is always
// a JSON array, never null.
func newMessage(event string, args ...string) Message {
	m := Message{Event: event, Args: make([]json.RawMessage, 0, len(args))}
	for _, a := range args {
		raw, _ := json.Marshal(a)
		m.Args = append(m.Args, raw)
	}
	return m
}

// StringArg returns args[i] as a string. Missing or non-string args yield "".
func (m Message) StringArg(i int) string {
	if i >= len(m.Args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Args[i], &s); err != nil {
		return ""
	}
	return s
}

// PowerAction is a server power signal.
type PowerAction string

const (
	ActionStart   PowerAction = "start"
	ActionStop    PowerAction = "stop"
	ActionRestart PowerAction = "restart"
	ActionKill    PowerAction = "kill"
)

// PowerActions lists the valid actions in display order.
var PowerActions = []PowerAction{ActionStart, ActionStop, ActionRestart, ActionKill}

// ErrInvalidAction is returned for anything other than start, stop, restart or kill.
var ErrInvalidAction = errors.New("invalid power action")

// ParsePowerAction validates s.
func ParsePowerAction(s string) (PowerAction, error) {
	for _, a := range PowerActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want start, stop, restart or kill)", ErrInvalidAction, s)
}

// NetworkStats holds cumulative interface counters.
type NetworkStats struct {
	RxBytes uint64 `json:"rx_bytes"`
	TxBytes uint64 `json:"tx_bytes"`
}

// Stats is one resource report pushed by the daemon.
type Stats struct {
	Uptime           int64        `json:"uptime"`
	CPUAbsolute      float64      `json:"cpu_absolute"`
	MemoryBytes      uint64       `json:"memory_bytes"`
	MemoryLimitBytes uint64       `json:"memory_limit_bytes"`
	DiskBytes        uint64       `json:"disk_bytes"`
	Network          NetworkStats `json:"network"`
	State            string       `json:"state,omitempty"`
}

// Reported says which series a stats payload actually carried. Absent
// fields decode as zero in Stats and must not be fed to history or rates.
type Reported struct {
	CPU     bool
	Memory  bool
	Disk    bool
	Network bool // both rx and tx counters
}

// wireStats accepts both the nested network object and the flat counters
// some daemon versions send.
type wireStats struct {
	Uptime           *int64   `json:"uptime"`
	CPUAbsolute      *float64 `json:"cpu_absolute"`
	MemoryBytes      *uint64  `json:"memory_bytes"`
	MemoryLimitBytes *uint64  `json:"memory_limit_bytes"`
	DiskBytes        *uint64  `json:"disk_bytes"`
	Network          *struct {
		RxBytes *uint64 `json:"rx_bytes"`
		TxBytes *uint64 `json:"tx_bytes"`
	} `json:"network"`
	State          string  `json:"state,omitempty"`
	NetworkRxBytes *uint64 `json:"network_rx_bytes"`
	NetworkTxBytes *uint64 `json:"network_tx_bytes"`
}

// ErrMalformedStats marks a stats payload that is not a JSON object.
var ErrMalformedStats = errors.New("malformed stats payload")

// ParseStats decodes a stats argument. The daemon sends the object either
// directly or encoded as a JSON string.
func ParseStats(raw json.RawMessage) (Stats, error) {
	s, _, err := ParseStatsReport(raw)
	return s, err
}

// ParseStatsReport is ParseStats plus which fields were present.
func ParseStatsReport(raw json.RawMessage) (Stats, Reported, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Stats{}, Reported{}, fmt.Errorf("%w: %v", ErrMalformedStats, err)
		}
		raw = bytes.TrimSpace([]byte(inner))
	}
	if len(raw) == 0 || raw[0] != '{' {
		return Stats{}, Reported{}, ErrMalformedStats
	}

	var w wireStats
	if err := json.Unmarshal(raw, &w); err != nil {
		return Stats{}, Reported{}, fmt.Errorf("%w: %v", ErrMalformedStats, err)
	}

	var (
		s   = Stats{State: w.State}
		rep Reported
	)
	if w.Uptime != nil {
		s.Uptime = *w.Uptime
	}
	if w.CPUAbsolute != nil {
		s.CPUAbsolute, rep.CPU = *w.CPUAbsolute, true
	}
	if w.MemoryBytes != nil {
		s.MemoryBytes, rep.Memory = *w.MemoryBytes, true
	}
	if w.MemoryLimitBytes != nil {
		s.MemoryLimitBytes = *w.MemoryLimitBytes
	}
	if w.DiskBytes != nil {
		s.DiskBytes, rep.Disk = *w.DiskBytes, true
	}

	rx, tx := w.NetworkRxBytes, w.NetworkTxBytes
	if w.Network != nil {
		if w.Network.RxBytes != nil {
			rx = w.Network.RxBytes
		}
		if w.Network.TxBytes != nil {
			tx = w.Network.TxBytes
		}
	}
	if rx != nil {
		s.Network.RxBytes = *rx
	}
	if tx != nil {
		s.Network.TxBytes = *tx
	}
	rep.Network = rx != nil && tx != nil
	return s, rep, nil
}

const mib = 1024 * 1024

// MemoryMiB is memory usage in MiB.
func (s Stats) MemoryMiB() float64 { return float64(s.MemoryBytes) / mib }

// DiskMiB is disk usage in MiB.
func (s Stats) DiskMiB() float64 { return float64(s.DiskBytes) / mib }
