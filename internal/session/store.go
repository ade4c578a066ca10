package session

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/worklog/internal/codec"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/fileio"
	"github.com/Iron-Ham/worklog/internal/filelock"
	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/validate"
)

// ErrUnchanged may be returned from a Modify callback to skip the write.
// Modify then returns the record as read, without error.
var ErrUnchanged = errors.New("session unchanged")

// Store provides CRUD and mutation operations over session records rooted
// at a layout. A Store holds no in-memory record state and is safe for
// concurrent use by goroutines and by other processes sharing the root.
type Store struct {
	layout layout.Layout
	index  *Index
	logger *logging.Logger
	now    func() time.Time
	hook   LifecycleHook
	obs    Observer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now for every timestamp the store writes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithHook registers the lifecycle hook, normally the project state cache.
func WithHook(h LifecycleHook) Option {
	return func(s *Store) { s.hook = h }
}

// WithObserver registers an instrumentation observer.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.obs = o }
}

// New creates a Store rooted at l, creating the directory tree if needed.
func New(l layout.Layout, opts ...Option) (*Store, error) {
	s := &Store{
		layout: l,
		logger: logging.NopLogger(),
		now:    time.Now,
		hook:   nopHook{},
		obs:    nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := l.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to create store directories: %w", err)
	}
	s.logger = s.logger.WithComponent("store")
	s.index = newIndex(l, s.logger, s.obs)
	return s, nil
}

// SetHook registers the lifecycle hook after construction. The project
// state cache depends on the store, so it is wired in this way. Call it
// before the store is shared.
func (s *Store) SetHook(h LifecycleHook) {
	if h == nil {
		h = nopHook{}
	}
	s.hook = h
}

// Layout returns the store's root layout.
func (s *Store) Layout() layout.Layout { return s.layout }

// Index returns the session index.
func (s *Store) Index() *Index { return s.index }

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// track starts timing op; call the returned func with the operation's
// named error result when it returns.
func (s *Store) track(op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		s.obs.OperationDone(op, time.Since(start), *errp)
	}
}

func (s *Store) withSessionLock(id string, fn func() error) error {
	return filelock.With(s.layout.SessionLock(id), fn,
		filelock.WithLogger(s.logger),
		filelock.WithWaitObserver(func(d time.Duration) { s.obs.LockWaited("session", d) }),
	)
}

// lifecycleChanged runs the hook outside every lock.
func (s *Store) lifecycleChanged(ctx context.Context, slug string) {
	s.hook.SessionChanged(ctx, slug)
}

// Create starts a new Active session.
func (s *Store) Create(ctx context.Context, p CreateParams) (sess *model.Session, err error) {
	defer s.track("create")(&err)

	if err := validate.ProjectSlug(p.ProjectSlug); err != nil {
		return nil, err
	}
	intent, err := validate.String(p.Intent, "intent", validate.MaxIntent)
	if err != nil {
		return nil, err
	}
	var roadmapRef string
	if p.RoadmapRef != "" {
		if roadmapRef, err = validate.String(p.RoadmapRef, "roadmap_ref", validate.MaxRoadmapRef); err != nil {
			return nil, err
		}
	}
	branch := p.GitBranch
	if branch == "" {
		branch = model.DefaultGitBranch
	}
	if err := validate.GitBranch(branch); err != nil {
		return nil, err
	}

	now := s.timestamp()
	sess = model.NewSession(model.NewSessionID(now), p.ProjectSlug, intent, now)
	sess.RoadmapRef = roadmapRef
	sess.GitBranch = branch

	if err := s.insert(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.WithSession(sess.SessionID).Info("session created", "project_slug", sess.ProjectSlug)
	s.lifecycleChanged(ctx, sess.ProjectSlug)
	return sess, nil
}

// insert writes a brand-new record under its own lock. An existing record
// with the same ID is never overwritten.
func (s *Store) insert(ctx context.Context, sess *model.Session) error {
	return s.withSessionLock(sess.SessionID, func() error {
		if fileio.Exists(s.layout.SessionFile(sess.SessionID)) {
			return errors.NewConflictError("session", sess.SessionID)
		}
		return s.write(ctx, sess)
	})
}

// Get returns the session, looking in the archive when it is not live.
func (s *Store) Get(ctx context.Context, id string) (sess *model.Session, err error) {
	defer s.track("get")(&err)

	if err := validate.SessionID(id); err != nil {
		return nil, err
	}
	sess, err = s.readFile(s.layout.SessionFile(id))
	if errors.Is(err, os.ErrNotExist) {
		sess, err = s.readFile(s.layout.ArchivedSessionFile(id))
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetArchived returns a session from the archive area only.
func (s *Store) GetArchived(ctx context.Context, id string) (*model.Session, error) {
	if err := validate.SessionID(id); err != nil {
		return nil, err
	}
	sess, err := s.readFile(s.layout.ArchivedSessionFile(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.NewNotFoundError("session", id).WithCause(fmt.Errorf("not in archive"))
	}
	return sess, err
}

// Modify runs fn on the live record under its lock and writes the result.
// If fn returns ErrUnchanged nothing is written. A status change made by fn
// triggers the lifecycle hook after the lock is released.
func (s *Store) Modify(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error) {
	var before model.SessionStatus
	sess, err := s.mutate(ctx, "modify", id, func(sess *model.Session) error {
		before = sess.Status
		return fn(sess)
	})
	if err != nil {
		return nil, err
	}
	if sess.Status != before {
		s.lifecycleChanged(ctx, sess.ProjectSlug)
	}
	return sess, nil
}

// mutate is the lock, read, apply, write, index cycle shared by every
// mutation. Archived records are read-only and report NotFound.
func (s *Store) mutate(ctx context.Context, op, id string, fn func(*model.Session) error) (sess *model.Session, err error) {
	defer s.track(op)(&err)

	if err := validate.SessionID(id); err != nil {
		return nil, err
	}
	err = s.withSessionLock(id, func() error {
		current, err := s.readFile(s.layout.SessionFile(id))
		if errors.Is(err, os.ErrNotExist) {
			return errors.NewNotFoundError("session", id)
		}
		if err != nil {
			return err
		}
		if err := fn(current); err != nil {
			if errors.Is(err, ErrUnchanged) {
				sess = current
				return nil
			}
			return err
		}
		if err := s.write(ctx, current); err != nil {
			return err
		}
		sess = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Archive moves a Completed live record into the archive area and drops it
// from the index. keep, when non-nil, is re-checked against the record read
// under the lock and may veto the move. It reports whether the record moved.
// The lock file is removed after the lock is released.
func (s *Store) Archive(ctx context.Context, id string, keep func(*model.Session) bool) (moved bool, err error) {
	defer s.track("archive")(&err)

	if err := validate.SessionID(id); err != nil {
		return false, err
	}
	var slug string
	err = s.withSessionLock(id, func() error {
		src := s.layout.SessionFile(id)
		current, err := s.readFile(src)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.Status != model.StatusCompleted {
			return nil
		}
		if keep != nil && !keep(current) {
			return nil
		}
		if err := os.MkdirAll(s.layout.ArchiveDir(), 0755); err != nil {
			return errors.NewStoreError("failed to create archive directory", err).WithSessionID(id)
		}
		if err := os.Rename(src, s.layout.ArchivedSessionFile(id)); err != nil {
			return errors.NewStoreError("failed to move session to archive", err).WithSessionID(id)
		}
		if err := s.index.Remove(ctx, id); err != nil {
			return err
		}
		moved = true
		slug = current.ProjectSlug
		return nil
	})
	if err != nil || !moved {
		return false, err
	}

	if err := os.Remove(s.layout.SessionLock(id)); err != nil && !os.IsNotExist(err) {
		s.logger.WithSession(id).Warn("failed to remove lock file after archiving", "error", err)
	}
	s.logger.WithSession(id).Info("session archived")
	s.lifecycleChanged(ctx, slug)
	return true, nil
}

func (s *Store) readFile(path string) (*model.Session, error) {
	data, err := fileio.ReadBounded(path)
	if err != nil {
		var integrity *errors.IntegrityError
		if errors.Is(err, os.ErrNotExist) || errors.As(err, &integrity) {
			return nil, err
		}
		return nil, errors.NewStoreError("failed to read session", err).WithPath(path)
	}
	return codec.DecodeSession(path, data)
}

// write persists sess atomically and then updates its index entry.
func (s *Store) write(ctx context.Context, sess *model.Session) error {
	data, err := codec.EncodeSession(sess)
	if err != nil {
		return errors.NewStoreError("failed to encode session", err).WithSessionID(sess.SessionID)
	}
	path := s.layout.SessionFile(sess.SessionID)
	if err := fileio.WriteAtomic(path, data, 0644); err != nil {
		return errors.NewStoreError("failed to write session", err).WithSessionID(sess.SessionID).WithPath(path)
	}
	if err := s.index.Put(ctx, sess); err != nil {
		return fmt.Errorf("session %s written but index update failed: %w", sess.SessionID, err)
	}
	return nil
}
