// Package projectstate maintains the derived per-project aggregate stored in
// projects/{slug}.json. It is recomputed wholesale from the project's live
// sessions after every lifecycle change; the phase and the roadmap's
// completed and in-progress lists are set externally and carried across
// recomputes unchanged.
package projectstate

import (
	"context"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Iron-Ham/worklog/internal/codec"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/fileio"
	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
	"github.com/Iron-Ham/worklog/internal/validate"
)

const (
	maxRecentCommits  = 10
	commitSessionSpan = 10
)

// SessionLister is the part of the session store the cache reads from.
type SessionLister interface {
	List(ctx context.Context, f session.Filter) ([]*model.Session, error)
}

// ProjectLister lists registered projects for All.
type ProjectLister interface {
	Projects(ctx context.Context) (map[string]model.ProjectRegistration, error)
}

// Observer is told whether each recompute wrote the file or found the
// content unchanged.
type Observer interface {
	ProjectStateWritten(written bool)
}

// Cache is the project state cache. It implements session.LifecycleHook.
type Cache struct {
	layout   layout.Layout
	sessions SessionLister
	projects ProjectLister
	logger   *logging.Logger
	now      func() time.Time
	obs      Observer
	group    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l *logging.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithClock replaces time.Now for updated_at.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithProjects sets the registry All enumerates.
func WithProjects(p ProjectLister) Option { return func(c *Cache) { c.projects = p } }

// WithObserver registers an instrumentation observer.
func WithObserver(o Observer) Option { return func(c *Cache) { c.obs = o } }

// New creates a Cache reading sessions from sessions.
func New(l layout.Layout, sessions SessionLister, opts ...Option) *Cache {
	c := &Cache{
		layout:   l,
		sessions: sessions,
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("projectstate")
	return c
}

// SessionChanged recomputes the project's state. Failures are logged; the
// state is derived data and the session operation has already succeeded.
func (c *Cache) SessionChanged(ctx context.Context, slug string) {
	if _, err := c.Recompute(ctx, slug); err != nil {
		c.logger.WithProject(slug).Warn("project state recompute failed", "error", err)
	}
}

// Recompute rebuilds the state of slug from its live sessions. Concurrent
// calls for the same project in this process share one computation. The
// file is left untouched when the derived content has not changed.
func (c *Cache) Recompute(ctx context.Context, slug string) (*model.ProjectState, error) {
	if err := validate.ProjectSlug(slug); err != nil {
		return nil, err
	}
	v, err, _ := c.group.Do(slug, func() (any, error) {
		return c.recompute(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.ProjectState), nil
}

func (c *Cache) recompute(ctx context.Context, slug string) (*model.ProjectState, error) {
	sessions, err := c.sessions.List(ctx, session.Filter{ProjectSlug: slug})
	if err != nil {
		return nil, err
	}

	existing, err := c.read(slug)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.WithProject(slug).Warn("existing project state unreadable, recomputing from scratch", "error", err)
		}
		existing = nil
	}

	next := Derive(slug, sessions, existing)
	if existing != nil {
		prev, errPrev := contentDigest(existing)
		cur, errCur := contentDigest(next)
		if errPrev == nil && errCur == nil && prev == cur {
			c.observe(false)
			return existing, nil
		}
	}

	next.UpdatedAt = c.now().UTC()
	if err := c.write(next); err != nil {
		return nil, err
	}
	c.observe(true)
	return next, nil
}

// Derive computes the state of slug from sessions, which must be sorted
// newest first. Phase and roadmap completed/in-progress come from existing;
// next-up comes from the newest Completed or Parked session that has next
// steps, falling back to existing.
func Derive(slug string, sessions []*model.Session, existing *model.ProjectState) *model.ProjectState {
	ps := model.NewProjectState(slug)
	if existing != nil {
		ps.CurrentPhase = existing.CurrentPhase
		ps.RoadmapSummary.Completed = append([]string{}, existing.RoadmapSummary.Completed...)
		ps.RoadmapSummary.InProgress = append([]string{}, existing.RoadmapSummary.InProgress...)
		ps.RoadmapSummary.NextUp = append([]string{}, existing.RoadmapSummary.NextUp...)
	}

	ps.TotalSessions = len(sessions)
	seenQuestion := make(map[string]bool)
	for _, s := range sessions {
		switch s.Status {
		case model.StatusActive:
			ps.ActiveSessions++
		case model.StatusParked:
			ps.ParkedSessions++
		default:
			continue
		}
		for _, q := range s.OpenQuestions {
			if !seenQuestion[q] {
				seenQuestion[q] = true
				ps.OpenQuestions = append(ps.OpenQuestions, q)
			}
		}
	}

	for i, s := range sessions {
		if i >= commitSessionSpan || len(ps.RecentCommits) >= maxRecentCommits {
			break
		}
		for _, commit := range s.Commits {
			if len(ps.RecentCommits) >= maxRecentCommits {
				break
			}
			ps.RecentCommits = append(ps.RecentCommits, commit)
		}
	}

	if len(sessions) > 0 {
		last := sessions[0].LastActivity()
		ps.LastActivity = &last
	}

	for _, s := range sessions {
		if len(s.NextSteps) > 0 && (s.Status == model.StatusCompleted || s.Status == model.StatusParked) {
			ps.RoadmapSummary.NextUp = model.TruncateSteps(s.NextSteps)
			break
		}
	}
	return ps
}

// Get returns the stored state of slug. A project without a state file
// reports NotFound; missing fields inside the file take zero values.
func (c *Cache) Get(ctx context.Context, slug string) (*model.ProjectState, error) {
	if err := validate.ProjectSlug(slug); err != nil {
		return nil, err
	}
	ps, err := c.read(slug)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.NewNotFoundError("project", slug)
	}
	return ps, err
}

// UpdateParams are the externally managed fields. Nil leaves a field unchanged.
type UpdateParams struct {
	Phase      *string
	Completed  []string
	InProgress []string
	NextUp     []string
}

// Update sets externally managed fields, creating the state if needed.
// NextUp is cut to three items.
func (c *Cache) Update(ctx context.Context, slug string, p UpdateParams) (*model.ProjectState, error) {
	if err := validate.ProjectSlug(slug); err != nil {
		return nil, err
	}
	ps, err := c.read(slug)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		ps = model.NewProjectState(slug)
	}

	if p.Phase != nil {
		ps.CurrentPhase = *p.Phase
	}
	if p.Completed != nil {
		ps.RoadmapSummary.Completed = append([]string{}, p.Completed...)
	}
	if p.InProgress != nil {
		ps.RoadmapSummary.InProgress = append([]string{}, p.InProgress...)
	}
	if p.NextUp != nil {
		ps.RoadmapSummary.NextUp = model.TruncateSteps(p.NextUp)
	}
	ps.UpdatedAt = c.now().UTC()

	if err := c.write(ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// All returns one state per registered project, sorted by slug. Projects
// without a readable state file get a zero-value state.
func (c *Cache) All(ctx context.Context) ([]*model.ProjectState, error) {
	if c.projects == nil {
		return nil, nil
	}
	regs, err := c.projects.Projects(ctx)
	if err != nil {
		return nil, err
	}
	slugs := make([]string, 0, len(regs))
	for slug := range regs {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	states := make([]*model.ProjectState, 0, len(slugs))
	for _, slug := range slugs {
		ps, err := c.read(slug)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				c.logger.WithProject(slug).Warn("project state unreadable, using empty state", "error", err)
			}
			ps = model.NewProjectState(slug)
			ps.UpdatedAt = c.now().UTC()
		}
		states = append(states, ps)
	}
	return states, nil
}

func (c *Cache) read(slug string) (*model.ProjectState, error) {
	path := c.layout.ProjectFile(slug)
	data, err := fileio.ReadBounded(path)
	if err != nil {
		return nil, err
	}
	return codec.DecodeProjectState(path, data)
}

func (c *Cache) write(ps *model.ProjectState) error {
	data, err := codec.EncodeProjectState(ps)
	if err != nil {
		return errors.Wrap(err, "failed to encode project state")
	}
	if err := os.MkdirAll(c.layout.ProjectsDir(), 0755); err != nil {
		return errors.NewStoreError("failed to create projects directory", err)
	}
	path := c.layout.ProjectFile(ps.ProjectSlug)
	if err := fileio.WriteAtomic(path, data, 0644); err != nil {
		return errors.NewStoreError("failed to write project state", err).WithPath(path)
	}
	return nil
}

func (c *Cache) observe(written bool) {
	if c.obs != nil {
		c.obs.ProjectStateWritten(written)
	}
}
