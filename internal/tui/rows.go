package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/overview"
)

// Filter selects which sessions the table shows.
type Filter int

const (
	FilterLive Filter = iota
	FilterActive
	FilterParked
	FilterCompleted
	FilterAll
	filterCount
)

func (f Filter) String() string {
	switch f {
	case FilterLive:
		return "live"
	case FilterActive:
		return "active"
	case FilterParked:
		return "parked"
	case FilterCompleted:
		return "completed"
	default:
		return "all"
	}
}

// Next cycles to the following filter.
func (f Filter) Next() Filter { return (f + 1) % filterCount }

func (f Filter) match(r Row) bool {
	switch f {
	case FilterLive:
		return r.Status != model.StatusCompleted
	case FilterActive:
		return r.Status == model.StatusActive
	case FilterParked:
		return r.Status == model.StatusParked
	case FilterCompleted:
		return r.Status == model.StatusCompleted
	default:
		return true
	}
}

// Row is one session line of the dashboard.
type Row struct {
	Project    string
	SessionID  string
	Status     model.SessionStatus
	Intent     string
	LastSeen   *time.Time
	Stale      bool
	TasksDone  int
	TasksTotal int
}

// Rows flattens an overview into table rows, project by project with
// active sessions first.
func Rows(ov *overview.Overview) []Row {
	if ov == nil {
		return nil
	}
	var rows []Row
	for _, p := range ov.Projects {
		add := func(status model.SessionStatus, views []overview.SessionView) {
			for _, v := range views {
				r := Row{
					Project:    p.Slug,
					SessionID:  v.SessionID,
					Status:     status,
					Intent:     v.Intent,
					Stale:      v.IsStale,
					TasksDone:  v.TaskSummary.Completed,
					TasksTotal: v.TaskSummary.Total,
				}
				switch {
				case v.LastHeartbeat != nil:
					r.LastSeen = v.LastHeartbeat
				case v.EndedAt != nil:
					r.LastSeen = v.EndedAt
				}
				rows = append(rows, r)
			}
		}
		add(model.StatusActive, p.ActiveSessions)
		add(model.StatusParked, p.ParkedSessions)
		add(model.StatusCompleted, p.CompletedSessions)
	}
	return rows
}

func columns(width int) []table.Column {
	intent := width - 14 - 10 - 10 - 6 - 7 - 12
	if intent < 20 {
		intent = 20
	}
	return []table.Column{
		{Title: "Project", Width: 14},
		{Title: "Status", Width: 10},
		{Title: "Intent", Width: intent},
		{Title: "Seen", Width: 10},
		{Title: "Stale", Width: 6},
		{Title: "Tasks", Width: 7},
	}
}

func tableRows(rows []Row, f Filter, now time.Time) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		if !f.match(r) {
			continue
		}
		stale := ""
		if r.Stale {
			stale = "yes"
		}
		tasks := "-"
		if r.TasksTotal > 0 {
			tasks = fmt.Sprintf("%d/%d", r.TasksDone, r.TasksTotal)
		}
		seen := "-"
		if r.LastSeen != nil {
			seen = age(now.Sub(*r.LastSeen))
		}
		out = append(out, table.Row{r.Project, string(r.Status), r.Intent, seen, stale, tasks})
	}
	return out
}

// age renders a duration the way the dashboard shows heartbeat ages.
func age(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
