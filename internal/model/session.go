// Package model defines the records worklog persists: sessions and their
// tasks, index entries, derived project state, and the config record.
package model

import (
	"time"
)

// SchemaVersion is the current on-disk version of a Session record.
const SchemaVersion = 2

// DefaultGitBranch is used when a session is created without a branch.
const DefaultGitBranch = "main"

// MaxNextSteps caps next_steps on sessions and next_up on project state.
const MaxNextSteps = 3

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusParked    SessionStatus = "parked"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusParked:
		return true
	}
	return false
}

// Event is one entry in a session's append-only event log.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Commit is a git commit attributed to a session.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
}

// ShortSHA returns the first 7 characters of the SHA, the dedup key for commits.
func (c Commit) ShortSHA() string {
	return ShortSHA(c.SHA)
}

// ShortSHA truncates sha to 7 characters.
func ShortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// Session is one tracked unit of work.
//
// EndedAt is set exactly when Status is Completed or Parked. Outcome is
// meaningful for Completed sessions and ParkedReason for Parked ones.
type Session struct {
	SchemaVersion   int           `json:"schema_version"`
	SessionID       string        `json:"session_id"`
	ProjectSlug     string        `json:"project_slug"`
	Status          SessionStatus `json:"status"`
	Intent          string        `json:"intent"`
	RoadmapRef      string        `json:"roadmap_ref,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	LastHeartbeat   time.Time     `json:"last_heartbeat"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	Outcome         string        `json:"outcome,omitempty"`
	ParkedReason    string        `json:"parked_reason,omitempty"`
	CurrentActivity string        `json:"current_activity,omitempty"`
	AwaitingAction  string        `json:"awaiting_action,omitempty"`
	Events          []Event       `json:"events"`
	GitBranch       string        `json:"git_branch"`
	FilesChanged    []string      `json:"files_changed"`
	Commits         []Commit      `json:"commits"`
	Decisions       []string      `json:"decisions"`
	OpenQuestions   []string      `json:"open_questions"`
	NextSteps       []string      `json:"next_steps"`
	Tasks           []Task        `json:"tasks"`

	// Extra holds top-level fields written by a newer schema version. They
	// are carried through unchanged on the next write.
	Extra map[string]any `json:"-"`
}

// NewSession returns an Active session with both timestamps set to now and
// every collection initialized.
func NewSession(id, projectSlug, intent string, now time.Time) *Session {
	return &Session{
		SchemaVersion: SchemaVersion,
		SessionID:     id,
		ProjectSlug:   projectSlug,
		Status:        StatusActive,
		Intent:        intent,
		StartedAt:     now,
		LastHeartbeat: now,
		GitBranch:     DefaultGitBranch,
		Events:        []Event{},
		FilesChanged:  []string{},
		Commits:       []Commit{},
		Decisions:     []string{},
		OpenQuestions: []string{},
		NextSteps:     []string{},
		Tasks:         []Task{},
	}
}

// IsStale reports whether s is Active and its heartbeat is older than
// threshold. A heartbeat exactly threshold old is not stale.
func (s *Session) IsStale(now time.Time, threshold time.Duration) bool {
	return s.Status == StatusActive && now.Sub(s.LastHeartbeat) > threshold
}

// Touch refreshes the heartbeat.
func (s *Session) Touch(now time.Time) {
	s.LastHeartbeat = now
}

// End moves s to a terminal-or-parked status at now.
func (s *Session) End(status SessionStatus, now time.Time) {
	s.Status = status
	ended := now
	s.EndedAt = &ended
}

// Duration is the time from start to end, or to now for open sessions.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// HasCommit reports whether a commit with the same 7-character prefix is recorded.
func (s *Session) HasCommit(sha string) bool {
	short := ShortSHA(sha)
	for _, c := range s.Commits {
		if c.ShortSHA() == short {
			return true
		}
	}
	return false
}

// HasDecision reports whether text is already an exact decision.
func (s *Session) HasDecision(text string) bool {
	for _, d := range s.Decisions {
		if d == text {
			return true
		}
	}
	return false
}

// LastActivity is the heartbeat, or the start time when no heartbeat is recorded.
func (s *Session) LastActivity() time.Time {
	if !s.LastHeartbeat.IsZero() {
		return s.LastHeartbeat
	}
	return s.StartedAt
}

// RecentEvents returns up to the last n events.
func (s *Session) RecentEvents(n int) []Event {
	if len(s.Events) <= n {
		return s.Events
	}
	return s.Events[len(s.Events)-n:]
}

// TruncateSteps returns at most MaxNextSteps items, never nil.
func TruncateSteps(steps []string) []string {
	if len(steps) > MaxNextSteps {
		steps = steps[:MaxNextSteps]
	}
	out := make([]string, len(steps))
	copy(out, steps)
	return out
}
