package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Progress bar block characters.
const (
	progressFilled = '█'
	progressEmpty  = '░'
)

// RenderProgressBar creates a progress bar visualization.
// The percent parameter should be 0-100 (values outside this range are clamped).
// The width parameter is the character width of the bar itself.
// Output format: [████████░░░░]  67%
func RenderProgressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = clampPercent(percent)
	return "[" + renderBar(percent, width) + "]" + fmt.Sprintf(" %3.0f%%", percent)
}

// RenderProgressBarSimple creates a progress bar without brackets.
// Output format: ████████░░░░  67%
func RenderProgressBarSimple(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = clampPercent(percent)
	return renderBar(percent, width) + fmt.Sprintf(" %3.0f%%", percent)
}

func renderBar(percent float64, width int) string {
	filled := int((percent / 100.0) * float64(width))
	bar := strings.Repeat(string(progressFilled), filled) + strings.Repeat(string(progressEmpty), width-filled)
	return lipgloss.NewStyle().Foreground(getThresholdColor(percent)).Render(bar)
}

func clampPercent(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
