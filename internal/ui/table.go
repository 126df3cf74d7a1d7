package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a new Bubbles table with default styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{
			Title: c.Title,
			Width: c.Width,
		}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	// Apply styling
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.
		Foreground(ColorPrimary)
	s.Selected = s.Selected.
		Foreground(ColorPrimary).
		Background(ColorMuted).
		Bold(false)

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a non-interactive table string.
// This is for CLI output (not TUI), producing a simple formatted table.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	// Create the table
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}

	t := NewTable(columns, tableRows)
	return t.View()
}

// FleetRow is one node line in the fleet status table. Usage columns are
// preformatted by the caller; Error is shown in place of them when the
// node is unhealthy.
type FleetRow struct {
	Healthy bool
	Node    string
	Address string
	CPU     string
	Memory  string
	Disk    string
	Error   string
}

// RenderFleetTable renders per-node health as an aligned table.
func RenderFleetTable(rows []FleetRow) string {
	if len(rows) == 0 {
		return "No nodes configured"
	}

	successStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ColorError)
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("  " + padRight("NODE", 17) + padRight("ADDRESS", 29) +
		padRight("CPU", 9) + padRight("MEMORY", 22) + "DISK"))
	sb.WriteString("\n")

	for _, row := range rows {
		icon := successStyle.Render(SymbolComplete)
		if !row.Healthy {
			icon = errorStyle.Render(SymbolFail)
		}
		line := icon + " " + padRight(row.Node, 17) + padRight(row.Address, 29)
		if row.Healthy {
			line += padRight(row.CPU, 9) + padRight(row.Memory, 22) + row.Disk
		} else {
			line += errorStyle.Render(row.Error)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// padRight pads a string to the specified width.
func padRight(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
