package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
const sparklineBlocks = "▁▂▃▄▅▆▇█"

var sparklineBlockRunes = []rune(sparklineBlocks)

// RenderSparkline draws the most recent width values of a percentage series.
// Values are mapped to 8 vertical levels between the series min and max, and
// the line takes the threshold color of the last value.
func RenderSparkline(data []float64, width int) string {
	line := sparkline(data, width)
	if line == "" {
		return ""
	}
	color := getThresholdColor(data[len(data)-1])
	return lipgloss.NewStyle().Foreground(color).Render(line)
}

// RenderSparklineColor draws a series with no natural ceiling, such as
// memory in MiB or network bytes per second, in a fixed color.
func RenderSparklineColor(data []float64, width int, color lipgloss.Color) string {
	line := sparkline(data, width)
	if line == "" {
		return ""
	}
	return lipgloss.NewStyle().Foreground(color).Render(line)
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	var sb strings.Builder
	sb.Grow(len(data) * 3)

	numLevels := len(sparklineBlockRunes)
	valueRange := maxVal - minVal
	for _, v := range data {
		level := numLevels / 2
		if valueRange != 0 {
			level = int((v - minVal) / valueRange * float64(numLevels-1))
			if level < 0 {
				level = 0
			} else if level >= numLevels {
				level = numLevels - 1
			}
		}
		sb.WriteRune(sparklineBlockRunes[level])
	}
	return sb.String()
}
