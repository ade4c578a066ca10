package model

import (
	"regexp"
	"testing"
	"time"
)

var t0 = time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)

func TestNewSession(t *testing.T) {
	s := NewSession("sess_20260210T1430_a1b2", "my-app", "Build feature", t0)

	if s.Status != StatusActive {
		t.Errorf("Status = %q", s.Status)
	}
	if s.EndedAt != nil {
		t.Error("EndedAt should be unset")
	}
	if !s.LastHeartbeat.Equal(s.StartedAt) {
		t.Error("LastHeartbeat should equal StartedAt")
	}
	if s.Tasks == nil || s.Events == nil || s.Commits == nil {
		t.Error("collections should be non-nil")
	}
	if s.SchemaVersion != SchemaVersion || s.GitBranch != DefaultGitBranch {
		t.Errorf("defaults = %d %q", s.SchemaVersion, s.GitBranch)
	}
}

func TestIsStale_Boundary(t *testing.T) {
	threshold := 24 * time.Hour
	s := NewSession("sess_20260210T1430_a1b2", "p", "i", t0)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"fresh", t0.Add(time.Hour), false},
		{"exactly at threshold", t0.Add(threshold), false},
		{"one second past", t0.Add(threshold + time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsStale(tt.now, threshold); got != tt.want {
				t.Errorf("IsStale = %v, want %v", got, tt.want)
			}
			if got := s.Summary().IsStale(tt.now, threshold); got != tt.want {
				t.Errorf("Summary.IsStale = %v, want %v", got, tt.want)
			}
		})
	}

	s.End(StatusParked, t0)
	if s.IsStale(t0.Add(100*threshold), threshold) {
		t.Error("parked sessions are never stale")
	}
}

func TestEndAndDuration(t *testing.T) {
	s := NewSession("sess_20260210T1430_a1b2", "p", "i", t0)
	if got := s.Duration(t0.Add(time.Hour)); got != time.Hour {
		t.Errorf("open Duration = %v", got)
	}
	s.End(StatusCompleted, t0.Add(30*time.Minute))
	if s.EndedAt == nil || s.Status != StatusCompleted {
		t.Fatal("End did not set status and ended_at")
	}
	if got := s.Duration(t0.Add(5 * time.Hour)); got != 30*time.Minute {
		t.Errorf("closed Duration = %v", got)
	}
}

func TestHasCommit_ShortPrefix(t *testing.T) {
	s := NewSession("sess_20260210T1430_a1b2", "p", "i", t0)
	s.Commits = append(s.Commits, Commit{SHA: "abc1234def", Message: "m"})

	tests := map[string]bool{
		"abc1234":        true,
		"abc1234ffff":    true,
		"ABC1234":        false,
		"abc123":         false,
		"abc1235def5678": false,
	}
	for sha, want := range tests {
		if got := s.HasCommit(sha); got != want {
			t.Errorf("HasCommit(%q) = %v, want %v", sha, got, want)
		}
	}
}

func TestTaskHelpers(t *testing.T) {
	s := NewSession("sess_20260210T1430_a1b2", "p", "i", t0)
	s.Tasks = []Task{
		{ID: "t00000001", Subject: "A", Status: TaskCompleted},
		{ID: "t00000002", Subject: "B", Status: TaskPending},
		{ID: "t00000003", Subject: "C", Status: TaskInProgress},
	}

	if s.FindTask("t00000002") != 1 || s.FindTask("nope") != -1 {
		t.Error("FindTask returned wrong index")
	}
	if !s.SubjectTaken("B", "t00000001") {
		t.Error("B is taken by another task")
	}
	if s.SubjectTaken("B", "t00000002") {
		t.Error("a task's own subject is not a conflict")
	}
	if s.SubjectTaken("b", "") {
		t.Error("subjects are case-sensitive")
	}

	sum := Summarize(s.Tasks)
	if sum != (TaskSummary{Total: 3, Completed: 1, InProgress: 1, Pending: 1}) {
		t.Errorf("Summarize = %+v", sum)
	}
}

func TestTruncateSteps(t *testing.T) {
	got := TruncateSteps([]string{"A", "B", "C", "D", "E"})
	if len(got) != 3 || got[0] != "A" || got[2] != "C" {
		t.Errorf("TruncateSteps = %v", got)
	}
	if got := TruncateSteps(nil); got == nil || len(got) != 0 {
		t.Errorf("TruncateSteps(nil) = %#v", got)
	}
}

func TestIDs(t *testing.T) {
	sessionRe := regexp.MustCompile(`^sess_\d{8}T\d{4}_[0-9a-f]{4}$`)
	taskRe := regexp.MustCompile(`^t[0-9a-f]{8}$`)

	id := NewSessionID(time.Date(2026, 2, 10, 15, 30, 59, 0, time.FixedZone("CET", 3600)))
	if !sessionRe.MatchString(id) {
		t.Errorf("NewSessionID() = %q", id)
	}
	if id[5:18] != "20260210T1430" {
		t.Errorf("timestamp part = %q, want UTC minute", id[5:18])
	}
	if tid := NewTaskID(); !taskRe.MatchString(tid) {
		t.Errorf("NewTaskID() = %q", tid)
	}
}

func TestRecentEvents(t *testing.T) {
	s := NewSession("sess_20260210T1430_a1b2", "p", "i", t0)
	for i := 0; i < 7; i++ {
		s.Events = append(s.Events, Event{Timestamp: t0, Message: string(rune('a' + i))})
	}
	got := s.RecentEvents(5)
	if len(got) != 5 || got[0].Message != "c" || got[4].Message != "g" {
		t.Errorf("RecentEvents = %+v", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Version != 1 || c.Projects == nil {
		t.Errorf("DefaultConfig() = %+v", c)
	}
	want := Settings{9000, 24, 30, false, 48, 12}
	if c.Settings != want {
		t.Errorf("Settings = %+v, want %+v", c.Settings, want)
	}
	if c.Settings.StaleThreshold() != 24*time.Hour {
		t.Errorf("StaleThreshold = %v", c.Settings.StaleThreshold())
	}
}
