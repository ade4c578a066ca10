// Package overview assembles the dashboard view shared by the CLI, the HTTP
// API and the TUI.
package overview

import (
	"context"
	"sort"
	"time"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
)

const (
	recentEvents    = 5
	recentCompleted = 5
)

// Sessions lists live sessions.
type Sessions interface {
	List(ctx context.Context, f session.Filter) ([]*model.Session, error)
}

// Config loads the config record.
type Config interface {
	Load(ctx context.Context) (*model.Config, error)
}

// States reads stored project state.
type States interface {
	Get(ctx context.Context, slug string) (*model.ProjectState, error)
}

// SessionView is a session as the dashboard shows it. Which of the
// status-specific fields are filled depends on the list it appears in.
type SessionView struct {
	SessionID     string            `json:"session_id"`
	Intent        string            `json:"intent"`
	StartedAt     time.Time         `json:"started_at"`
	RoadmapRef    string            `json:"roadmap_ref,omitempty"`
	Events        []model.Event     `json:"events"`
	EventCount    int               `json:"event_count"`
	GitBranch     string            `json:"git_branch"`
	FilesChanged  []string          `json:"files_changed"`
	Decisions     []string          `json:"decisions"`
	OpenQuestions []string          `json:"open_questions"`
	Commits       []model.Commit    `json:"commits"`
	NextSteps     []string          `json:"next_steps"`
	Tasks         []model.Task      `json:"tasks"`
	TaskSummary   model.TaskSummary `json:"task_summary"`

	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	IsStale         bool       `json:"is_stale"`
	CurrentActivity string     `json:"current_activity,omitempty"`
	AwaitingAction  string     `json:"awaiting_action,omitempty"`
	ParkedReason    string     `json:"parked_reason,omitempty"`
	Outcome         string     `json:"outcome,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// RoadmapCounts summarizes a project's roadmap.
type RoadmapCounts struct {
	CompletedCount  int      `json:"completed_count"`
	InProgressCount int      `json:"in_progress_count"`
	InProgress      []string `json:"in_progress"`
}

// Project is one registered project in the overview.
type Project struct {
	Slug              string        `json:"slug"`
	Name              string        `json:"name"`
	Path              string        `json:"path"`
	CurrentPhase      string        `json:"current_phase"`
	ActiveSessions    []SessionView `json:"active_sessions"`
	ParkedSessions    []SessionView `json:"parked_sessions"`
	CompletedSessions []SessionView `json:"completed_sessions"`
	RoadmapSummary    RoadmapCounts `json:"roadmap_summary"`
	ActiveCount       int           `json:"active_count"`
	ParkedCount       int           `json:"parked_count"`
	StaleCount        int           `json:"stale_count"`
	NextSteps         []string      `json:"next_steps"`
	LastActivity      *time.Time    `json:"last_activity,omitempty"`
	TotalSessions     int           `json:"total_sessions"`
}

// Overview is the complete dashboard aggregate.
type Overview struct {
	Timestamp time.Time      `json:"timestamp"`
	Projects  []Project      `json:"projects"`
	Settings  model.Settings `json:"settings"`
}

// Builder builds overviews.
type Builder struct {
	sessions Sessions
	config   Config
	states   States
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder logger.
func WithLogger(l *logging.Logger) Option { return func(b *Builder) { b.logger = l } }

// WithClock replaces time.Now for staleness and the timestamp.
func WithClock(now func() time.Time) Option { return func(b *Builder) { b.now = now } }

// NewBuilder creates a Builder.
func NewBuilder(sessions Sessions, config Config, states States, opts ...Option) *Builder {
	b := &Builder{
		sessions: sessions,
		config:   config,
		states:   states,
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the overview of every registered project, ordered by slug.
// Sessions of unregistered projects are not shown.
func (b *Builder) Build(ctx context.Context) (*Overview, error) {
	cfg, err := b.config.Load(ctx)
	if err != nil {
		return nil, err
	}
	live, err := b.sessions.List(ctx, session.Filter{})
	if err != nil {
		return nil, err
	}

	byProject := make(map[string][]*model.Session)
	for _, s := range live {
		byProject[s.ProjectSlug] = append(byProject[s.ProjectSlug], s)
	}

	slugs := make([]string, 0, len(cfg.Projects))
	for slug := range cfg.Projects {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	now := b.now().UTC()
	threshold := cfg.Settings.StaleThreshold()
	out := &Overview{
		Timestamp: now,
		Projects:  make([]Project, 0, len(slugs)),
		Settings:  cfg.Settings,
	}
	for _, slug := range slugs {
		state := b.state(ctx, slug)
		out.Projects = append(out.Projects, buildProject(slug, cfg.Projects[slug], state, byProject[slug], now, threshold))
	}
	return out, nil
}

// state never fails: a missing or unreadable project state reads as empty.
func (b *Builder) state(ctx context.Context, slug string) *model.ProjectState {
	if b.states == nil {
		return model.NewProjectState(slug)
	}
	ps, err := b.states.Get(ctx, slug)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			b.logger.WithProject(slug).Warn("project state unreadable", "error", err)
		}
		return model.NewProjectState(slug)
	}
	return ps
}

func buildProject(slug string, reg model.ProjectRegistration, state *model.ProjectState, sessions []*model.Session, now time.Time, threshold time.Duration) Project {
	p := Project{
		Slug:              slug,
		Name:              reg.Name,
		Path:              reg.Path,
		CurrentPhase:      state.CurrentPhase,
		ActiveSessions:    []SessionView{},
		ParkedSessions:    []SessionView{},
		CompletedSessions: []SessionView{},
		RoadmapSummary: RoadmapCounts{
			CompletedCount:  len(state.RoadmapSummary.Completed),
			InProgressCount: len(state.RoadmapSummary.InProgress),
			InProgress:      nonNil(state.RoadmapSummary.InProgress),
		},
		NextSteps:     nonNil(state.RoadmapSummary.NextUp),
		LastActivity:  state.LastActivity,
		TotalSessions: state.TotalSessions,
	}

	for _, s := range sessions {
		v := view(s)
		switch s.Status {
		case model.StatusActive:
			hb := s.LastHeartbeat
			v.LastHeartbeat = &hb
			v.IsStale = s.IsStale(now, threshold)
			v.CurrentActivity = s.CurrentActivity
			v.AwaitingAction = s.AwaitingAction
			if v.IsStale {
				p.StaleCount++
			}
			p.ActiveSessions = append(p.ActiveSessions, v)
		case model.StatusParked:
			v.ParkedReason = s.ParkedReason
			v.CurrentActivity = s.CurrentActivity
			v.AwaitingAction = s.AwaitingAction
			v.EndedAt = s.EndedAt
			p.ParkedSessions = append(p.ParkedSessions, v)
		case model.StatusCompleted:
			if len(p.CompletedSessions) >= recentCompleted {
				continue
			}
			hb := s.LastHeartbeat
			v.LastHeartbeat = &hb
			v.Outcome = s.Outcome
			v.EndedAt = s.EndedAt
			p.CompletedSessions = append(p.CompletedSessions, v)
		}
	}
	p.ActiveCount = len(p.ActiveSessions)
	p.ParkedCount = len(p.ParkedSessions)
	return p
}

func view(s *model.Session) SessionView {
	return SessionView{
		SessionID:     s.SessionID,
		Intent:        s.Intent,
		StartedAt:     s.StartedAt,
		RoadmapRef:    s.RoadmapRef,
		Events:        nonNil(s.RecentEvents(recentEvents)),
		EventCount:    len(s.Events),
		GitBranch:     s.GitBranch,
		FilesChanged:  nonNil(s.FilesChanged),
		Decisions:     nonNil(s.Decisions),
		OpenQuestions: nonNil(s.OpenQuestions),
		Commits:       nonNil(s.Commits),
		NextSteps:     nonNil(s.NextSteps),
		Tasks:         nonNil(s.Tasks),
		TaskSummary:   model.Summarize(s.Tasks),
	}
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
