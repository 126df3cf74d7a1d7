package ui

import "github.com/charmbracelet/lipgloss"

// Semantic colors for status indication
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
)

// getThresholdColor returns a color based on percentage thresholds.
//   - 0-60%: green (success)
//   - 60-80%: yellow/amber (warning)
//   - 80-100%: red (error)
func getThresholdColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 80:
		return ColorError
	case percent >= 60:
		return ColorWarning
	default:
		return ColorSuccess
	}
}

// PowerStateColor maps a daemon power state to its display color.
// Unknown states render muted.
func PowerStateColor(state string) lipgloss.Color {
	switch state {
	case "running":
		return ColorSuccess
	case "starting", "stopping":
		return ColorWarning
	case "offline":
		return ColorError
	default:
		return ColorMuted
	}
}

// SessionStateColor maps a session state name to its display color.
func SessionStateColor(state string) lipgloss.Color {
	switch state {
	case "connected":
		return ColorSuccess
	case "connecting", "reconnecting":
		return ColorWarning
	case "closed":
		return ColorError
	default:
		return ColorMuted
	}
}
