package session

import (
	"errors"
	"fmt"
)

// State is the connection lifecycle of a session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// trigger is an input to the state table.
type trigger int

const (
	// triggerOpen: the caller passed the capability check.
	triggerOpen trigger = iota
	// triggerAuthenticated: the daemon answered auth success.
	triggerAuthenticated
	// triggerDrop: dial failure, read/write error, auth timeout or token expiry.
	triggerDrop
	// triggerRetry: the reconnect delay elapsed.
	triggerRetry
	// triggerGiveUp: reconnect attempts are exhausted.
	triggerGiveUp
	// triggerDenied: the daemon rejected the token.
	triggerDenied
	// triggerClose: explicit teardown.
	triggerClose
)

func (t trigger) String() string {
	switch t {
	case triggerOpen:
		return "open"
	case triggerAuthenticated:
		return "authenticated"
	case triggerDrop:
		return "drop"
	case triggerRetry:
		return "retry"
	case triggerGiveUp:
		return "give-up"
	case triggerDenied:
		return "denied"
	case triggerClose:
		return "close"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

// ErrInvalidTransition is returned by next for a trigger the state ignores.
var ErrInvalidTransition = errors.New("invalid session transition")

type edge struct {
	from State
	on   trigger
}

var transitions = map[edge]State{
	{Disconnected, triggerOpen}:        Connecting,
	{Connecting, triggerAuthenticated}: Connected,
	{Connecting, triggerDrop}:          Reconnecting,
	{Connecting, triggerDenied}:        Closed,
	{Connected, triggerDrop}:           Reconnecting,
	{Connected, triggerDenied}:         Closed,
	{Reconnecting, triggerRetry}:       Connecting,
	{Reconnecting, triggerGiveUp}:      Closed,
	{Disconnected, triggerClose}:       Closed,
	{Connecting, triggerClose}:         Closed,
	{Connected, triggerClose}:          Closed,
	{Reconnecting, triggerClose}:       Closed,
	{Closed, triggerClose}:             Closed,
}

// next is the pure transition function. It has no side effects; the session
// loop arms timers and touches the transport around it.
func next(s State, t trigger) (State, error) {
	to, ok := transitions[edge{s, t}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, t)
	}
	return to, nil
}
