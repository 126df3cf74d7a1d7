package tui

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/deckhand/internal/session"
	"github.com/rileyhilliard/deckhand/internal/telemetry"
	"github.com/rileyhilliard/deckhand/internal/ui"
)

// sparkWidth is the column count of each metric graph.
const sparkWidth = 16

func (m Model) renderConsole() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderMetrics())
	b.WriteString("\n")
	b.WriteString(ConsoleStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderHeader shows server, session state, power state, ping and uptime.
func (m Model) renderHeader() string {
	state := m.state.String()
	indicator := ui.StateSymbol(state)
	if m.state == session.Connecting || m.state == session.Reconnecting {
		indicator = m.spinner.View()
	}

	var uptime int64
	if m.stats != nil {
		uptime = m.stats.Uptime
	}

	parts := []string{
		TitleStyle.Render(m.session.ServerID()),
		stateStyle(state).Render(indicator + " " + state),
		LabelStyle.Render("power ") + powerStyle(m.power).Render(m.power),
		LabelStyle.Render("ping ") + ValueStyle.Render(ui.FormatPing(m.ping)),
		LabelStyle.Render("uptime ") + ValueStyle.Render(ui.FormatUptime(uptime)),
	}
	return HeaderStyle.Render(strings.Join(parts, "  "))
}

// renderMetrics draws one sparkline per history series with its latest value.
func (m Model) renderMetrics() string {
	h := m.session.History()
	snap := m.session.Snapshot()

	cpu := h.Values(telemetry.MetricCPU, sparkWidth)
	mem := h.Values(telemetry.MetricMemory, sparkWidth)
	disk := h.Values(telemetry.MetricDisk, sparkWidth)
	net := h.Values(telemetry.MetricNetwork, sparkWidth)

	cpuText, memText, diskText := "-", "-", "-"
	if m.stats != nil {
		cpuText = fmt.Sprintf("%.1f%%", m.stats.CPUAbsolute)
		memText = ui.FormatMiB(m.stats.MemoryMiB())
		if m.stats.MemoryLimitBytes > 0 {
			memText += " / " + ui.FormatBytes(m.stats.MemoryLimitBytes)
		}
		diskText = ui.FormatMiB(m.stats.DiskMiB())
	}
	netText := ui.FormatRate(snap.NetworkRx) + " in " + ui.FormatRate(snap.NetworkTx) + " out"

	cells := []string{
		metricCell("CPU", ui.RenderSparkline(cpu, sparkWidth), cpuText),
		metricCell("MEM", ui.RenderSparklineColor(mem, sparkWidth, ui.ColorSecondary), memText),
		metricCell("DISK", ui.RenderSparklineColor(disk, sparkWidth, ui.ColorSecondary), diskText),
		metricCell("NET", ui.RenderSparklineColor(net, sparkWidth, ui.ColorInfo), netText),
	}
	return " " + strings.Join(cells, "  ")
}

func metricCell(label, graph, value string) string {
	if graph == "" {
		graph = LabelStyle.Render(strings.Repeat("·", sparkWidth))
	}
	return LabelStyle.Render(label) + " " + graph + " " + ValueStyle.Render(value)
}

func (m Model) renderFooter() string {
	if m.notice != "" {
		return NoticeStyle.Render(m.notice)
	}
	help := "tab command  ^s start  ^t stop  ^r restart  ^k kill  ^l clear  esc leave"
	if m.input.Focused() {
		help = "enter send  esc done"
	}
	if n := m.sink.Dropped(); n > 0 {
		help += fmt.Sprintf("  (%d updates dropped)", n)
	}
	return FooterStyle.Render(help)
}
