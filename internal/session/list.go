package session

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/worklog/internal/codec"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/fileio"
	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/model"
)

// scanConcurrency bounds parallel record reads during directory scans.
const scanConcurrency = 8

// List returns full records matching f, newest first. Live records are
// found through the index and re-read from their files; archived records
// come from a direct scan of the archive area.
func (s *Store) List(ctx context.Context, f Filter) (out []*model.Session, err error) {
	defer s.track("list")(&err)

	entries, err := s.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	for id, e := range entries {
		if !f.match(e.ProjectSlug, e.Status) {
			continue
		}
		sess, err := s.readFile(s.layout.SessionFile(id))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.logger.WithSession(id).Warn("skipping unreadable session", "error", err)
			}
			continue
		}
		out = append(out, sess)
	}

	if f.IncludeArchived {
		archived, err := scanDir(ctx, s.layout.ArchiveDir(), s.logger)
		if err != nil {
			return nil, err
		}
		for _, sess := range archived {
			if f.match(sess.ProjectSlug, sess.Status) {
				out = append(out, sess)
			}
		}
	}

	sortSessions(out)
	return out, nil
}

// ListSummaries returns index projections matching f, newest first,
// without opening live record files.
func (s *Store) ListSummaries(ctx context.Context, f Filter) (out []model.Summary, err error) {
	defer s.track("list_summaries")(&err)

	entries, err := s.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	for id, e := range entries {
		if f.match(e.ProjectSlug, e.Status) {
			out = append(out, model.Summary{SessionID: id, IndexEntry: e})
		}
	}

	if f.IncludeArchived {
		archived, err := scanDir(ctx, s.layout.ArchiveDir(), s.logger)
		if err != nil {
			return nil, err
		}
		for _, sess := range archived {
			if f.match(sess.ProjectSlug, sess.Status) {
				out = append(out, sess.Summary())
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].SessionID > out[j].SessionID
	})
	return out, nil
}

// Active returns the Active sessions of slug, or of every project when slug is empty.
func (s *Store) Active(ctx context.Context, slug string) ([]*model.Session, error) {
	return s.List(ctx, Filter{ProjectSlug: slug, Status: model.StatusActive})
}

// Parked returns the Parked sessions of slug, or of every project when slug is empty.
func (s *Store) Parked(ctx context.Context, slug string) ([]*model.Session, error) {
	return s.List(ctx, Filter{ProjectSlug: slug, Status: model.StatusParked})
}

// Stale returns Active sessions whose heartbeat is older than threshold.
// Nothing is modified.
func (s *Store) Stale(ctx context.Context, threshold time.Duration) ([]*model.Session, error) {
	active, err := s.Active(ctx, "")
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	var stale []*model.Session
	for _, sess := range active {
		if sess.IsStale(now, threshold) {
			stale = append(stale, sess)
		}
	}
	return stale, nil
}

// ScanLive reads every live record directly, bypassing the index.
func (s *Store) ScanLive(ctx context.Context) ([]*model.Session, error) {
	return scanDir(ctx, s.layout.SessionsDir(), s.logger)
}

func sortSessions(sessions []*model.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].StartedAt.After(sessions[j].StartedAt)
		}
		return sessions[i].SessionID > sessions[j].SessionID
	})
}

// isRecordName matches sess_*.json and skips temp files, locks and the index.
func isRecordName(name string) bool {
	return strings.HasPrefix(name, layout.SessionIDPrefix) &&
		strings.HasSuffix(name, layout.RecordExt) &&
		!fileio.IsTempName(name)
}

// scanDir reads every session record in dir in parallel. Records that
// cannot be read or decoded are logged and skipped. A missing directory
// yields no records.
func scanDir(ctx context.Context, dir string, logger *logging.Logger) ([]*model.Session, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("failed to scan sessions", err).WithPath(dir)
	}

	var (
		mu       sync.Mutex
		sessions []*model.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !isRecordName(name) {
			continue
		}
		path := filepath.Join(dir, name)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := fileio.ReadBounded(path)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					logger.Warn("skipping unreadable session file", "path", path, "error", err)
				}
				return nil
			}
			sess, err := codec.DecodeSession(path, data)
			if err != nil {
				logger.Warn("skipping corrupt session file", "path", path, "error", err)
				return nil
			}
			mu.Lock()
			sessions = append(sessions, sess)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortSessions(sessions)
	return sessions, nil
}
