package model

import "time"

// IndexEntry is the projection of a session stored in sessions/_index.json.
type IndexEntry struct {
	ProjectSlug   string        `json:"project_slug"`
	Status        SessionStatus `json:"status"`
	Intent        string        `json:"intent"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       *time.Time    `json:"ended_at"`
	LastHeartbeat time.Time     `json:"last_heartbeat"`
}

// Entry projects s into its index entry.
func (s *Session) Entry() IndexEntry {
	return IndexEntry{
		ProjectSlug:   s.ProjectSlug,
		Status:        s.Status,
		Intent:        s.Intent,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		LastHeartbeat: s.LastHeartbeat,
	}
}

// Summary is the lightweight listing result built from the index alone.
// Every field here is guaranteed present; anything else requires a full load.
type Summary struct {
	SessionID string `json:"session_id"`
	IndexEntry
}

// Summary projects s into a listing summary.
func (s *Session) Summary() Summary {
	return Summary{SessionID: s.SessionID, IndexEntry: s.Entry()}
}

// IsStale mirrors Session.IsStale for summaries.
func (s Summary) IsStale(now time.Time, threshold time.Duration) bool {
	return s.Status == StatusActive && now.Sub(s.LastHeartbeat) > threshold
}
