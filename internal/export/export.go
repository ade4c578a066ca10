// Package export renders sessions and projects as JSON documents or
// Markdown reports. It performs no I/O.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/model"
)

// Format is an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts json, markdown or md. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", errors.NewValidationError(fmt.Sprintf("unsupported export format %q (use json or markdown)", s)).WithField("format")
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Ext is the file extension used for downloads.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return ".md"
	}
	return ".json"
}

// SessionDocument is the JSON export of one session.
type SessionDocument struct {
	*model.Session
	TaskSummary model.TaskSummary `json:"task_summary"`
	Duration    string            `json:"duration"`
}

// Session builds the JSON export of s.
func Session(s *model.Session) SessionDocument {
	return SessionDocument{
		Session:     s,
		TaskSummary: model.Summarize(s.Tasks),
		Duration:    formatDuration(s.StartedAt, s.EndedAt),
	}
}

// ProjectDocument is the JSON export of a project's sessions.
type ProjectDocument struct {
	Project      string            `json:"project"`
	ExportedAt   time.Time         `json:"exported_at"`
	SessionCount int               `json:"session_count"`
	Sessions     []SessionDocument `json:"sessions"`
}

// Project builds the JSON export of a project.
func Project(name string, sessions []*model.Session, now time.Time) ProjectDocument {
	doc := ProjectDocument{
		Project:      name,
		ExportedAt:   now.UTC(),
		SessionCount: len(sessions),
		Sessions:     make([]SessionDocument, 0, len(sessions)),
	}
	for _, s := range sessions {
		doc.Sessions = append(doc.Sessions, Session(s))
	}
	return doc
}

// formatDuration renders the span of a finished session as "2h 15m". Open
// sessions and negative spans render empty.
func formatDuration(start time.Time, end *time.Time) string {
	if start.IsZero() || end == nil {
		return ""
	}
	d := end.Sub(start)
	if d < 0 {
		return ""
	}
	minutes := int(d / time.Minute)
	h, m := minutes/60, minutes%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

func shortTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
