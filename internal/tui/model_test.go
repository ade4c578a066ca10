package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/overview"
	"github.com/Iron-Ham/worklog/internal/watch"
)

var testNow = time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)

type staticSource struct {
	ov    *overview.Overview
	err   error
	calls int
}

func (s *staticSource) Build(context.Context) (*overview.Overview, error) {
	s.calls++
	return s.ov, s.err
}

func sampleOverview() *overview.Overview {
	hb := testNow.Add(-90 * time.Minute)
	ended := testNow.Add(-3 * 24 * time.Hour)
	return &overview.Overview{
		Timestamp: testNow,
		Projects: []overview.Project{{
			Slug: "my-app",
			ActiveSessions: []overview.SessionView{{
				SessionID:     "sess_20260210T1300_aaaa",
				Intent:        "Build the dashboard",
				LastHeartbeat: &hb,
				IsStale:       true,
				TaskSummary:   model.TaskSummary{Total: 4, Completed: 1},
			}},
			ParkedSessions: []overview.SessionView{{
				SessionID: "sess_20260209T1000_bbbb",
				Intent:    "Waiting on review",
				EndedAt:   &ended,
			}},
			CompletedSessions: []overview.SessionView{{
				SessionID: "sess_20260201T1000_cccc",
				Intent:    "Shipped it",
				EndedAt:   &ended,
			}},
		}},
	}
}

func newTestModel(src Source, opts ...Option) Model {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewModel(context.Background(), src, opts...)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return nm, cmd
}

func TestRows(t *testing.T) {
	rows := Rows(sampleOverview())
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].Status != model.StatusActive || !rows[0].Stale || rows[0].TasksTotal != 4 {
		t.Errorf("active row = %+v", rows[0])
	}
	if rows[1].Status != model.StatusParked || rows[1].LastSeen == nil {
		t.Errorf("parked row = %+v", rows[1])
	}
	if Rows(nil) != nil {
		t.Error("nil overview should give no rows")
	}
}

func TestTableRows(t *testing.T) {
	rows := Rows(sampleOverview())
	tests := []struct {
		filter Filter
		want   int
	}{
		{FilterLive, 2},
		{FilterActive, 1},
		{FilterParked, 1},
		{FilterCompleted, 1},
		{FilterAll, 3},
	}
	for _, tt := range tests {
		t.Run(tt.filter.String(), func(t *testing.T) {
			if got := tableRows(rows, tt.filter, testNow); len(got) != tt.want {
				t.Errorf("rows = %d, want %d", len(got), tt.want)
			}
		})
	}

	active := tableRows(rows, FilterActive, testNow)[0]
	if active[3] != "1h ago" || active[4] != "yes" || active[5] != "1/4" {
		t.Errorf("active cells = %v", active)
	}
}

func TestAge(t *testing.T) {
	tests := map[time.Duration]string{
		10 * time.Second: "just now",
		5 * time.Minute:  "5m ago",
		3 * time.Hour:    "3h ago",
		49 * time.Hour:   "2d ago",
	}
	for d, want := range tests {
		if got := age(d); got != want {
			t.Errorf("age(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestFilterCycles(t *testing.T) {
	f := FilterLive
	for i := 0; i < int(filterCount); i++ {
		f = f.Next()
	}
	if f != FilterLive {
		t.Errorf("filter after full cycle = %v", f)
	}
}

func TestUpdate_OverviewAndKeys(t *testing.T) {
	src := &staticSource{ov: sampleOverview()}
	m := newTestModel(src)

	m, _ = update(t, m, overviewMsg{overview: src.ov})
	if len(m.table.Rows()) != 2 {
		t.Fatalf("live rows = %d, want 2", len(m.table.Rows()))
	}
	if !strings.Contains(m.View(), "Build the dashboard") {
		t.Error("view should list the active session")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.filter != FilterActive || len(m.table.Rows()) != 1 {
		t.Errorf("after tab filter = %v rows = %d", m.filter, len(m.table.Rows()))
	}

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("r should trigger a reload")
	}
	if msg, ok := cmd().(overviewMsg); !ok || msg.overview == nil {
		t.Errorf("reload produced %T", msg)
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d", src.calls)
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should produce QuitMsg")
	}
}

func TestUpdate_ErrorKeepsLastOverview(t *testing.T) {
	src := &staticSource{ov: sampleOverview()}
	m := newTestModel(src)
	m, _ = update(t, m, overviewMsg{overview: src.ov})
	m, _ = update(t, m, overviewMsg{err: errors.New("disk gone")})

	if m.overview == nil || len(m.rows) != 3 {
		t.Error("failed refresh should keep the last overview")
	}
	if !strings.Contains(m.View(), "disk gone") {
		t.Error("view should show the refresh error")
	}
}

func TestWaitForChange(t *testing.T) {
	if waitForChange(nil) != nil {
		t.Error("nil channel should give no command")
	}
	ch := make(chan watch.Change, 1)
	ch <- watch.Change{Kind: watch.KindSession, ID: "sess_20260210T1300_aaaa"}
	msg := waitForChange(ch)()
	if c, ok := msg.(changeMsg); !ok || c.ID != "sess_20260210T1300_aaaa" {
		t.Errorf("msg = %#v", msg)
	}
	close(ch)
	if msg := waitForChange(ch)(); msg != nil {
		t.Errorf("closed channel msg = %#v", msg)
	}
}
