// Package styles holds the lipgloss palette and styles of the dashboard.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/worklog/internal/model"
)

// Palette. Each foreground keeps at least 4.5:1 contrast on Surface.
var (
	Accent  = lipgloss.Color("#A78BFA")
	Good    = lipgloss.Color("#34D399")
	Info    = lipgloss.Color("#60A5FA")
	Bad     = lipgloss.Color("#F87171")
	Stale   = lipgloss.Color("#FB923C")
	Dim     = lipgloss.Color("#9CA3AF")
	Surface = lipgloss.Color("#1F2937")
	Text    = lipgloss.Color("#F9FAFB")
	Rule    = lipgloss.Color("#6B7280")
)

var statusColors = map[model.SessionStatus]lipgloss.Color{
	model.StatusActive:    Good,
	model.StatusParked:    Info,
	model.StatusCompleted: Accent,
}

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	Muted = fg(Dim)
	Title = fg(Accent).Bold(true).MarginBottom(1)

	TabActive   = fg(Text).Background(Accent).Bold(true).Padding(0, 2)
	TabInactive = fg(Dim).Padding(0, 2)

	TableBox      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Rule)
	TableHeader   = fg(Accent).Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(Rule)
	TableSelected = fg(Text).Background(Surface).Bold(true)

	StatusBar = fg(Text).Background(Surface).Padding(0, 1)
	HelpBar   = fg(Dim).MarginTop(1)
	HelpKey   = fg(Good).Bold(true)
	ErrorMsg  = fg(Bad).Bold(true)
)

// StatusColor colors a session status. Stale active sessions override
// their status color.
func StatusColor(status model.SessionStatus, stale bool) lipgloss.Color {
	if stale {
		return Stale
	}
	if c, ok := statusColors[status]; ok {
		return c
	}
	return Dim
}
