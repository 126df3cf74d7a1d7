package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/deckhand/internal/ui"
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ui.ColorPrimary).
			Bold(true).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ui.ColorInfo).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ui.ColorPrimary)

	ConsoleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.ColorMuted)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ui.ColorMuted).
			Padding(0, 1)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ui.ColorWarning).
			Padding(0, 1)
)

func stateStyle(state string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ui.SessionStateColor(state)).Bold(true)
}

func powerStyle(state string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ui.PowerStateColor(state))
}
