package model

import "time"

// RoadmapSummary is the roadmap portion of a project's state.
// Completed and InProgress are set externally; NextUp is derived or set.
type RoadmapSummary struct {
	Completed  []string `json:"completed"`
	InProgress []string `json:"in_progress"`
	NextUp     []string `json:"next_up"`
}

// ProjectState is the derived per-project aggregate in projects/{slug}.json.
// A missing or partial file decodes to zero values rather than failing.
type ProjectState struct {
	ProjectSlug    string         `json:"project_slug"`
	CurrentPhase   string         `json:"current_phase"`
	RoadmapSummary RoadmapSummary `json:"roadmap_summary"`
	ActiveSessions int            `json:"active_sessions"`
	ParkedSessions int            `json:"parked_sessions"`
	TotalSessions  int            `json:"total_sessions"`
	LastActivity   *time.Time     `json:"last_activity,omitempty"`
	RecentCommits  []Commit       `json:"recent_commits"`
	OpenQuestions  []string       `json:"open_questions"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewProjectState returns an empty state for slug with non-nil collections.
func NewProjectState(slug string) *ProjectState {
	return &ProjectState{
		ProjectSlug: slug,
		RoadmapSummary: RoadmapSummary{
			Completed:  []string{},
			InProgress: []string{},
			NextUp:     []string{},
		},
		RecentCommits: []Commit{},
		OpenQuestions: []string{},
	}
}
