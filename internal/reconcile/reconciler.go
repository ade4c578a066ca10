// Package reconcile repairs what interrupted or forgotten sessions leave
// behind: it closes stale Active sessions, removes orphaned lock files, and
// moves old Completed sessions into the archive. Each run can be recorded
// as a job file and executed in a detached background process.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/filelock"
	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
	"github.com/Iron-Ham/worklog/internal/validate"
)

// StaleOutcome is the outcome written on sessions closed for lack of a heartbeat.
const StaleOutcome = "Automatically closed (stale: no heartbeat)"

const archiveConcurrency = 4

// Sessions is the part of the session store reconciliation drives.
type Sessions interface {
	Active(ctx context.Context, slug string) ([]*model.Session, error)
	ScanLive(ctx context.Context) ([]*model.Session, error)
	Modify(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error)
	Archive(ctx context.Context, id string, keep func(*model.Session) bool) (bool, error)
}

// SettingsSource supplies the configured thresholds.
type SettingsSource interface {
	Settings(ctx context.Context) (model.Settings, error)
}

// Observer counts reconciled items per job and result.
type Observer interface {
	ItemReconciled(job, result string)
}

// Reconciler runs the reconciliation passes.
type Reconciler struct {
	layout   layout.Layout
	sessions Sessions
	settings SettingsSource
	logger   *logging.Logger
	now      func() time.Time
	obs      Observer
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(l *logging.Logger) Option { return func(r *Reconciler) { r.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

// WithSettings supplies default thresholds for zero parameters.
func WithSettings(s SettingsSource) Option { return func(r *Reconciler) { r.settings = s } }

// WithObserver registers an instrumentation observer.
func WithObserver(o Observer) Option { return func(r *Reconciler) { r.obs = o } }

// New creates a Reconciler.
func New(l layout.Layout, sessions Sessions, opts ...Option) *Reconciler {
	r := &Reconciler{
		layout:   l,
		sessions: sessions,
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("reconcile")
	return r
}

func (r *Reconciler) observe(job, result string) {
	if r.obs != nil {
		r.obs.ItemReconciled(job, result)
	}
}

func (r *Reconciler) resolve(ctx context.Context, p JobParams) (JobParams, error) {
	if p.StaleThresholdHours > 0 && p.ArchiveAfterDays > 0 {
		return p, nil
	}
	defaults := model.DefaultSettings()
	if r.settings != nil {
		s, err := r.settings.Settings(ctx)
		if err != nil {
			return p, err
		}
		defaults = s
	}
	if p.StaleThresholdHours <= 0 {
		p.StaleThresholdHours = defaults.StaleThresholdHours
	}
	if p.ArchiveAfterDays <= 0 {
		p.ArchiveAfterDays = defaults.ArchiveAfterDays
	}
	return p, nil
}

// StaleCandidates lists Active sessions whose heartbeat is older than
// threshold without modifying anything.
func (r *Reconciler) StaleCandidates(ctx context.Context, threshold time.Duration) ([]*model.Session, error) {
	active, err := r.sessions.Active(ctx, "")
	if err != nil {
		return nil, err
	}
	now := r.now()
	var stale []*model.Session
	for _, s := range active {
		if s.IsStale(now, threshold) {
			stale = append(stale, s)
		}
	}
	return stale, nil
}

// CleanupStale closes every session that is still stale when re-read under
// its lock. Sessions that fail to close
// are logged and reported in the returned errors; they never abort the run.
func (r *Reconciler) CleanupStale(ctx context.Context, threshold time.Duration) (closed []string, failures []string, err error) {
	if threshold <= 0 {
		return nil, nil, errors.NewValidationError("stale threshold must be positive").WithField("threshold")
	}
	candidates, err := r.StaleCandidates(ctx, threshold)
	if err != nil {
		return nil, nil, err
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return closed, failures, err
		}
		changed := false
		_, err := r.sessions.Modify(ctx, c.SessionID, func(s *model.Session) error {
			now := r.now().UTC()
			if !s.IsStale(now, threshold) {
				return session.ErrUnchanged
			}
			s.End(model.StatusCompleted, now)
			s.LastHeartbeat = now
			s.Outcome = StaleOutcome
			changed = true
			return nil
		})
		switch {
		case err != nil:
			r.logger.WithSession(c.SessionID).Warn("failed to close stale session", "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", c.SessionID, err))
			r.observe(string(KindStale), "error")
		case changed:
			r.logger.WithSession(c.SessionID).Info("closed stale session")
			closed = append(closed, c.SessionID)
			r.observe(string(KindStale), "closed")
		default:
			r.observe(string(KindStale), "skipped")
		}
	}
	return closed, failures, nil
}

// LockInfo describes one session lock file.
type LockInfo struct {
	filelock.Info
	SessionID string `json:"session_id"`
	// Orphan is true when no live record exists for the lock.
	Orphan bool `json:"orphan"`
}

// Locks lists every session lock file with its holder and orphan status.
// The index lock is not included.
func (r *Reconciler) Locks(ctx context.Context) ([]LockInfo, error) {
	names, err := r.lockNames()
	if err != nil {
		return nil, err
	}
	out := make([]LockInfo, 0, len(names))
	for _, name := range names {
		path := filepath.Join(r.layout.SessionsDir(), name)
		info, err := filelock.Inspect(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			r.logger.Warn("failed to inspect lock file", "path", path, "error", err)
		}
		id := strings.TrimSuffix(name, layout.LockExt)
		out = append(out, LockInfo{
			Info:      info,
			SessionID: id,
			Orphan:    !r.recordExists(id),
		})
	}
	return out, nil
}

// CleanupOrphanLocks removes session lock files that have no live record.
// A lock that is currently held is left alone.
func (r *Reconciler) CleanupOrphanLocks(ctx context.Context) (removed []string, failures []string, err error) {
	names, err := r.lockNames()
	if err != nil {
		return nil, nil, err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return removed, failures, err
		}
		id := strings.TrimSuffix(name, layout.LockExt)
		if r.recordExists(id) {
			continue
		}
		path := filepath.Join(r.layout.SessionsDir(), name)
		ok, err := r.removeIdleLock(path, id)
		switch {
		case err != nil:
			r.logger.Warn("failed to remove orphaned lock", "path", path, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			r.observe(string(KindLocks), "error")
		case ok:
			removed = append(removed, name)
			r.observe(string(KindLocks), "removed")
		}
	}
	return removed, failures, nil
}

// removeIdleLock deletes path while holding it, so a concurrent creator
// that already holds the lock is never left with an unlinked file.
func (r *Reconciler) removeIdleLock(path, id string) (bool, error) {
	lk, err := filelock.TryAcquire(path)
	if err != nil {
		if errors.Is(err, errors.ErrLockFailed) {
			return false, nil
		}
		return false, err
	}
	defer func() { _ = lk.Release() }()

	if r.recordExists(id) {
		return false, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) recordExists(id string) bool {
	_, err := os.Lstat(r.layout.SessionFile(id))
	return err == nil
}

func (r *Reconciler) lockNames() ([]string, error) {
	entries, err := os.ReadDir(r.layout.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("failed to list sessions directory", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == layout.IndexLockName || !strings.HasSuffix(name, layout.LockExt) {
			continue
		}
		if !validate.IsSessionID(strings.TrimSuffix(name, layout.LockExt)) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ArchiveOld archives Completed sessions that ended more than days ago.
// The age is re-checked under each record's lock.
func (r *Reconciler) ArchiveOld(ctx context.Context, days int) (archived []string, failures []string, err error) {
	if err := validate.PositiveInt(days, "days", validate.MaxArchiveDays); err != nil {
		return nil, nil, err
	}
	cutoff := r.now().Add(-time.Duration(days) * 24 * time.Hour)
	old := func(s *model.Session) bool {
		return s.Status == model.StatusCompleted && s.EndedAt != nil && s.EndedAt.Before(cutoff)
	}

	live, err := r.sessions.ScanLive(ctx)
	if err != nil {
		return nil, nil, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(archiveConcurrency)
	for _, s := range live {
		if !old(s) {
			continue
		}
		id := s.SessionID
		g.Go(func() error {
			moved, err := r.sessions.Archive(gctx, id, old)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				r.logger.WithSession(id).Warn("failed to archive session", "error", err)
				failures = append(failures, fmt.Sprintf("%s: %v", id, err))
				r.observe(string(KindArchive), "error")
			case moved:
				archived = append(archived, id)
				r.observe(string(KindArchive), "archived")
			default:
				r.observe(string(KindArchive), "skipped")
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(archived)
	return archived, failures, ctx.Err()
}

// ArchiveSession archives one Completed session now, regardless of age.
// It reports false when the session is absent or not Completed.
func (r *Reconciler) ArchiveSession(ctx context.Context, id string) (bool, error) {
	moved, err := r.sessions.Archive(ctx, id, nil)
	if err == nil && moved {
		r.observe(string(KindArchive), "archived")
	}
	return moved, err
}
