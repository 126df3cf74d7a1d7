package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/deckhand/internal/session"
	"github.com/rileyhilliard/deckhand/internal/ui"
)

// Scrollback is the number of console lines kept in the viewport.
const Scrollback = 2000

// Layout rows around the console viewport: header, metrics, two border
// lines, input and footer.
const chromeHeight = 6

// Model is the Bubble Tea model for one server console.
type Model struct {
	session *session.Session
	sink    *Sink

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	ready    bool

	lines []string
	state session.State
	power string
	stats *session.Stats
	ping  time.Duration

	notice   string
	err      error
	width    int
	height   int
	quitting bool
}

type openedMsg struct{ err error }

type actionMsg struct {
	action     session.PowerAction
	resolution session.Resolution
	err        error
}

type commandMsg struct {
	text string
	err  error
}

// NewModel wraps s, which must have been created with sink. The model opens
// the session in Init and closes it on exit.
func NewModel(s *session.Session, sink *Sink) Model {
	in := textinput.New()
	in.Placeholder = "type a command, enter to send"
	in.Prompt = "> "
	in.CharLimit = 512

	return Model{
		session: s,
		sink:    sink,
		input:   in,
		spinner: ui.NewSpinner(),
		state:   session.Disconnected,
		power:   session.DefaultPowerState,
	}
}

// Err returns the error that ended the view, if any.
func (m Model) Err() error {
	return m.err
}

// Init opens the session and starts listening to the sink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.openCmd(),
		m.sink.waitForEvent(),
		m.spinner.Tick,
	)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}
		var cmd tea.Cmd
		if m.input.Focused() {
			m.input, cmd = m.input.Update(msg)
		} else {
			m.viewport, cmd = m.viewport.Update(msg)
		}
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case openedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, m.quit()
		}

	case stateMsg:
		m.state = msg.to
		if msg.to == session.Closed && !m.quitting {
			m.notice = "session closed, esc to leave"
		}
		return m, m.sink.waitForEvent()

	case powerMsg:
		m.power = msg.state
		return m, m.sink.waitForEvent()

	case statsMsg:
		stats := msg.stats
		m.stats = &stats
		m.ping = msg.ping
		return m, m.sink.waitForEvent()

	case linesMsg:
		m.appendLines(msg.lines)
		return m, m.sink.waitForEvent()

	case actionMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s: %v", msg.action, msg.err)
		} else {
			m.notice = fmt.Sprintf("%s: %s", msg.action, msg.resolution)
		}

	case commandMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("command not sent: %v", msg.err)
		} else {
			m.notice = ""
		}
	}

	return m, nil
}

// View renders the console.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderConsole()
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	vpHeight := height - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	vpWidth := width - 2
	if vpWidth < 1 {
		vpWidth = 1
	}

	if !m.ready {
		m.viewport = viewport.New(vpWidth, vpHeight)
		m.ready = true
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
	} else {
		m.viewport.Width = vpWidth
		m.viewport.Height = vpHeight
	}
	m.input.Width = width - 4
}

// appendLines adds console output, trimming to Scrollback. The viewport
// follows new output only when it was already at the bottom.
func (m *Model) appendLines(lines []string) {
	follow := !m.ready || m.viewport.AtBottom()

	m.lines = append(m.lines, lines...)
	if over := len(m.lines) - Scrollback; over > 0 {
		m.lines = append(m.lines[:0:0], m.lines[over:]...)
	}

	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) openCmd() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		return openedMsg{err: s.Open(context.Background())}
	}
}

func (m Model) powerCmd(action session.PowerAction) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		r, err := s.Power(context.Background(), action)
		return actionMsg{action: action, resolution: r, err: err}
	}
}

func (m Model) commandCmd(text string) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		return commandMsg{text: text, err: s.SendCommand(text)}
	}
}

// quit closes the session before the program exits.
func (m *Model) quit() tea.Cmd {
	m.quitting = true
	s := m.session
	return func() tea.Msg {
		s.Close()
		return tea.Quit()
	}
}
