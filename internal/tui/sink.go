package tui

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/deckhand/internal/session"
)

// sinkBuffer bounds how far the view can fall behind the session before
// callbacks are dropped.
const sinkBuffer = 512

type stateMsg struct{ from, to session.State }

type powerMsg struct{ state string }

type statsMsg struct {
	stats session.Stats
	ping  time.Duration
}

type linesMsg struct{ lines []string }

// Sink forwards session callbacks to the Bubble Tea program. Sends never
// block the session loop; when the buffer is full the message is dropped
// and counted.
type Sink struct {
	events  chan tea.Msg
	dropped atomic.Int64
}

// NewSink returns a Sink ready to hand to session.New.
func NewSink() *Sink {
	return &Sink{events: make(chan tea.Msg, sinkBuffer)}
}

// Dropped reports how many callbacks were discarded.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Sink) StateChanged(from, to session.State) { s.push(stateMsg{from: from, to: to}) }

func (s *Sink) PowerStateChanged(state string) { s.push(powerMsg{state: state}) }

func (s *Sink) StatsReceived(stats session.Stats, ping time.Duration) {
	s.push(statsMsg{stats: stats, ping: ping})
}

func (s *Sink) ConsoleLines(lines []string) {
	cp := make([]string, len(lines))
	copy(cp, lines)
	s.push(linesMsg{lines: cp})
}

func (s *Sink) push(msg tea.Msg) {
	select {
	case s.events <- msg:
	default:
		s.dropped.Add(1)
	}
}

// waitForEvent blocks until the next sink message.
func (s *Sink) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-s.events
	}
}
