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

// RenderSimpleTable renders a non-interactive table string for plain CLI
// output.
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

// HostRow is one line of the hosts table.
type HostRow struct {
	Name     string
	Address  string
	Protocol string
	Status   string // "ok", "fail", "local", "skipped", or "" when not checked
	Detail   string // latency, or the failure reason
}

// RenderHostsTable renders configured hosts, with reachability when it
// was checked.
func RenderHostsTable(rows []HostRow) string {
	if len(rows) == 0 {
		return "No hosts configured"
	}

	var b strings.Builder
	headerStyle := HeaderStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)
	b.WriteString(headerStyle.Render("  " + padRight("HOST", 18) + padRight("ADDRESS", 26) + padRight("PROTO", 8) + "STATUS"))
	b.WriteString("\n")

	for _, row := range rows {
		var icon, detail string
		switch row.Status {
		case "ok":
			icon = SuccessStyle().Render(SymbolComplete)
			detail = MutedStyle().Render(row.Detail)
		case "local":
			icon = InfoStyle().Render(SymbolComplete)
			detail = MutedStyle().Render("local")
		case "skipped":
			icon = WarningStyle().Render(SymbolSkipped)
			detail = MutedStyle().Render(row.Detail)
		case "fail":
			icon = ErrorStyle().Render(SymbolFail)
			detail = ErrorStyle().Render(row.Detail)
		default:
			icon = MutedStyle().Render(SymbolPending)
			detail = MutedStyle().Render(row.Detail)
		}
		b.WriteString(icon + " " + padRight(row.Name, 18) + padRight(row.Address, 26) + padRight(row.Protocol, 8) + detail)
		b.WriteString("\n")
	}
	return b.String()
}

// padRight pads a string to the specified width.
func padRight(s string, width int) string {
	// Account for ANSI codes when calculating visible length
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	padding := width - visibleLen
	return s + strings.Repeat(" ", padding)
}
