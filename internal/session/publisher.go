package session

import (
	"time"

	"github.com/rileyhilliard/deckhand/internal/logger"
)

// Side-channel notifications published by a session.
const (
	NotifySessionState     = "session.state"
	NotifySessionPower     = "session.power"
	NotifyDaemonError      = "daemon.error"
	NotifyInstallStarted   = "install.started"
	NotifyInstallCompleted = "install.completed"
	NotifyBackupCompleted  = "backup.completed"
	NotifyTransferStatus   = "transfer.status"
)

// Publisher receives cross-cutting notifications. Publish is called from the
// session loop and must not block.
type Publisher interface {
	Publish(event string, payload interface{})
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(event string, payload interface{})

// Publish calls f.
func (f PublisherFunc) Publish(event string, payload interface{}) { f(event, payload) }

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

// NopPublisher discards notifications.
func NopPublisher() Publisher { return nopPublisher{} }

// LogPublisher writes notifications to a logger at info level.
type LogPublisher struct {
	Log logger.Logger
}

// Publish logs event and payload.
func (p LogPublisher) Publish(event string, payload interface{}) {
	if p.Log == nil {
		return
	}
	p.Log.Info("%s %v", event, payload)
}

// StateChange is the payload of session.state.
type StateChange struct {
	ServerID string
	From     State
	To       State
}

func (c StateChange) String() string {
	return c.ServerID + " " + c.From.String() + " -> " + c.To.String()
}

// PowerResult is the payload of session.power.
type PowerResult struct {
	ServerID   string
	Action     PowerAction
	Resolution Resolution
	Waited     time.Duration
}

func (r PowerResult) String() string {
	return r.ServerID + " " + string(r.Action) + " " + r.Resolution.String()
}

// DaemonNotice is the payload of daemon and lifecycle notifications.
type DaemonNotice struct {
	ServerID string
	Message  string
}

func (n DaemonNotice) String() string {
	if n.Message == "" {
		return n.ServerID
	}
	return n.ServerID + " " + n.Message
}

// Sink receives session output in arrival order. Methods run on the session
// loop goroutine; they must return promptly and must not call back into the
// session's blocking methods.
type Sink interface {
	StateChanged(from, to State)
	PowerStateChanged(state string)
	StatsReceived(stats Stats, ping time.Duration)
	ConsoleLines(lines []string)
}

// NopSink ignores everything. Embed it to implement part of Sink.
type NopSink struct{}

func (NopSink) StateChanged(from, to State)                   {}
func (NopSink) PowerStateChanged(state string)                {}
func (NopSink) StatsReceived(stats Stats, ping time.Duration) {}
func (NopSink) ConsoleLines(lines []string)                   {}
