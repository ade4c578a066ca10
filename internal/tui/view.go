package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/tui/styles"
)

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("worklog"))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(styles.TableBox.Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, int(filterCount))
	for f := Filter(0); f < filterCount; f++ {
		n := 0
		for _, r := range m.rows {
			if f.match(r) {
				n++
			}
		}
		label := fmt.Sprintf("%s (%d)", f, n)
		if f == m.filter {
			tabs = append(tabs, styles.TabActive.Render(label))
		} else {
			tabs = append(tabs, styles.TabInactive.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderStatusBar() string {
	if m.err != nil {
		return styles.ErrorMsg.Render("refresh failed: " + m.err.Error())
	}
	if m.overview == nil {
		return styles.StatusBar.Render("loading...")
	}

	var active, parked, stale int
	for _, r := range m.rows {
		switch {
		case r.Stale:
			stale++
		case r.Status == model.StatusActive:
			active++
		case r.Status == model.StatusParked:
			parked++
		}
	}
	counts := []string{
		lipgloss.NewStyle().Foreground(styles.StatusColor(model.StatusActive, false)).Render(fmt.Sprintf("%d active", active)),
		lipgloss.NewStyle().Foreground(styles.StatusColor(model.StatusParked, false)).Render(fmt.Sprintf("%d parked", parked)),
		lipgloss.NewStyle().Foreground(styles.StatusColor(model.StatusActive, true)).Render(fmt.Sprintf("%d stale", stale)),
	}
	text := fmt.Sprintf("%d projects  %s  refreshed %s",
		len(m.overview.Projects), strings.Join(counts, " "), m.lastRefresh.Format("15:04:05"))
	return styles.StatusBar.Render(text)
}

func (m Model) renderHelp() string {
	keys := []struct{ key, desc string }{
		{"q", "quit"},
		{"r", "refresh"},
		{"tab", "filter"},
		{"↑/↓", "move"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, styles.HelpKey.Render(k.key)+" "+k.desc)
	}
	return styles.HelpBar.Render(strings.Join(parts, "  "))
}
