package logging

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// LogEntry is one parsed line of worklog.log. Attributes other than the
// well-known context keys land in Attrs.
type LogEntry struct {
	Timestamp   time.Time      `json:"time"`
	Level       string         `json:"level"`
	Message     string         `json:"msg"`
	SessionID   string         `json:"session_id,omitempty"`
	ProjectSlug string         `json:"project_slug,omitempty"`
	Component   string         `json:"component,omitempty"`
	Attrs       map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects entries; every non-zero field must match.
type LogFilter struct {
	// Level is a minimum severity.
	Level string

	StartTime time.Time
	EndTime   time.Time

	SessionID   string
	ProjectSlug string
	Component   string

	MessageContains string
}

var severity = map[string]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

// contextKeys are decoded into LogEntry fields rather than Attrs.
var contextKeys = map[string]bool{
	"time": true, "level": true, "msg": true,
	"session_id": true, "project_slug": true, "component": true,
}

const maxLogLine = 1 << 20

// AggregateLogs merges worklog.log and its rotated backups (plain or gzip)
// in logDir into one slice ordered by time. Lines that are not JSON are
// skipped. It fails with os.ErrNotExist when no log file exists at all.
func AggregateLogs(logDir string) ([]LogEntry, error) {
	active := filepath.Join(logDir, LogFileName)
	backups, err := filepath.Glob(active + ".*")
	if err != nil {
		return nil, fmt.Errorf("failed to list rotated logs: %w", err)
	}

	var (
		entries []LogEntry
		opened  int
	)
	for _, path := range append(backups, active) {
		got, err := readLogFile(path)
		switch {
		case os.IsNotExist(err):
			continue
		case err != nil:
			return nil, err
		}
		opened++
		entries = append(entries, got...)
	}
	if opened == 0 {
		return nil, fmt.Errorf("no log file found in %s: %w", logDir, os.ErrNotExist)
	}

	slices.SortStableFunc(entries, func(a, b LogEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return entries, nil
}

func readLogFile(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var src io.Reader = f
	if filepath.Ext(path) == ".gz" {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed log %s: %w", path, err)
		}
		defer func() { _ = zr.Close() }()
		src = zr
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)

	var entries []LogEntry
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if e, err := parseLogEntry(line); err == nil {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file %s: %w", path, err)
	}
	return entries, nil
}

func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}
	str := func(k string) string {
		s, _ := raw[k].(string)
		return s
	}

	e := LogEntry{
		Level:       str("level"),
		Message:     str("msg"),
		SessionID:   str("session_id"),
		ProjectSlug: str("project_slug"),
		Component:   str("component"),
		Attrs:       map[string]any{},
	}
	if ts, err := time.Parse(time.RFC3339Nano, str("time")); err == nil {
		e.Timestamp = ts
	}
	for k, v := range raw {
		if !contextKeys[k] {
			e.Attrs[k] = v
		}
	}
	return e, nil
}

// Match reports whether e passes every criterion set on f. An unknown
// level on either side does not filter.
func (f LogFilter) Match(e LogEntry) bool {
	if f.Level != "" {
		floor, ok1 := severity[strings.ToUpper(f.Level)]
		got, ok2 := severity[e.Level]
		if ok1 && ok2 && got < floor {
			return false
		}
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return matchField(f.SessionID, e.SessionID) &&
		matchField(f.ProjectSlug, e.ProjectSlug) &&
		matchField(f.Component, e.Component) &&
		strings.Contains(e.Message, f.MessageContains)
}

func matchField(want, got string) bool {
	return want == "" || want == got
}

// FilterLogs keeps the entries f matches, preserving order.
func FilterLogs(entries []LogEntry, f LogFilter) []LogEntry {
	if f == (LogFilter{}) {
		return entries
	}
	var out []LogEntry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// WriteEntries renders entries as "text" (the default), "json" or "csv".
func WriteEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		return writeText(w, entries)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "csv":
		return writeCSV(w, entries)
	}
	return fmt.Errorf("unsupported log format: %s (supported: json, text, csv)", format)
}

func attrsJSON(e LogEntry) string {
	if len(e.Attrs) == 0 {
		return ""
	}
	b, err := json.Marshal(e.Attrs)
	if err != nil {
		return ""
	}
	return string(b)
}

// writeText prints one line per entry:
//
//	[2026-02-10 14:30:00.000] INFO - session created (component=store, session=..., project=...) {"k":1}
func writeText(w io.Writer, entries []LogEntry) error {
	for _, e := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %s - %s", e.Timestamp.Format("2006-01-02 15:04:05.000"), e.Level, e.Message)

		var ctx []string
		for _, kv := range [][2]string{
			{"component", e.Component},
			{"session", e.SessionID},
			{"project", e.ProjectSlug},
		} {
			if kv[1] != "" {
				ctx = append(ctx, kv[0]+"="+kv[1])
			}
		}
		if len(ctx) > 0 {
			b.WriteString(" (" + strings.Join(ctx, ", ") + ")")
		}
		if a := attrsJSON(e); a != "" {
			b.WriteString(" " + a)
		}
		b.WriteByte('\n')

		if _, err := io.WriteString(w, b.String()); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)
	rows := [][]string{{"timestamp", "level", "message", "component", "session_id", "project_slug", "attrs"}}
	for _, e := range entries {
		rows = append(rows, []string{
			e.Timestamp.Format(time.RFC3339Nano),
			e.Level,
			e.Message,
			e.Component,
			e.SessionID,
			e.ProjectSlug,
			attrsJSON(e),
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}
