package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/deckhand/internal/session"
)

// Key bindings as constants for consistency.
const (
	KeyQuit    = "ctrl+c"
	KeyLeave   = "esc"
	KeyFocus   = "tab"
	KeySubmit  = "enter"
	KeyClear   = "ctrl+l"
	KeyStart   = "ctrl+s"
	KeyStop    = "ctrl+t"
	KeyRestart = "ctrl+r"
	KeyKill    = "ctrl+k"
)

// powerKeys maps keys to power actions. Only active while the command
// input is blurred.
var powerKeys = map[string]session.PowerAction{
	KeyStart:   session.ActionStart,
	KeyStop:    session.ActionStop,
	KeyRestart: session.ActionRestart,
	KeyKill:    session.ActionKill,
}

// HandleKeyMsg processes keyboard input and returns the command to run.
// Returns false when the key belongs to the focused input or the viewport.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	if key == KeyQuit {
		return true, m.quit()
	}

	if m.input.Focused() {
		switch key {
		case KeyLeave, KeyFocus:
			m.input.Blur()
			return true, nil
		case KeySubmit:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return true, nil
			}
			return true, m.commandCmd(text)
		}
		return false, nil
	}

	if action, ok := powerKeys[key]; ok {
		m.notice = string(action) + "..."
		return true, m.powerCmd(action)
	}

	switch key {
	case KeyLeave:
		return true, m.quit()
	case KeyFocus:
		return true, m.input.Focus()
	case KeyClear:
		m.lines = nil
		if m.ready {
			m.viewport.SetContent("")
		}
		return true, nil
	}
	return false, nil
}
