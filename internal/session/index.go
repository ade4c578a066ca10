package session

import (
	"bytes"
	"context"
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

// Index is the sessions/_index.json projection of every live record.
// Writers serialize on sessions/_index.lock; readers take no lock.
// Archived sessions are never indexed.
type Index struct {
	layout layout.Layout
	logger *logging.Logger
	obs    Observer
}

func newIndex(l layout.Layout, logger *logging.Logger, obs Observer) *Index {
	return &Index{layout: l, logger: logger.WithComponent("index"), obs: obs}
}

func (ix *Index) withLock(fn func() error) error {
	return filelock.With(ix.layout.IndexLock(), fn,
		filelock.WithLogger(ix.logger),
		filelock.WithWaitObserver(func(d time.Duration) { ix.obs.LockWaited("index", d) }),
	)
}

// Put inserts or replaces the entry for s.
func (ix *Index) Put(ctx context.Context, s *model.Session) error {
	return ix.withLock(func() error {
		entries, err := ix.loadLocked(ctx)
		if err != nil {
			return err
		}
		entries[s.SessionID] = s.Entry()
		return ix.save(entries)
	})
}

// Remove drops id from the index. Removing an absent entry is not an error.
func (ix *Index) Remove(ctx context.Context, id string) error {
	return ix.withLock(func() error {
		entries, err := ix.loadLocked(ctx)
		if err != nil {
			return err
		}
		if _, ok := entries[id]; !ok {
			return nil
		}
		delete(entries, id)
		return ix.save(entries)
	})
}

// Get returns the entry for id from a usable index.
func (ix *Index) Get(ctx context.Context, id string) (model.IndexEntry, bool, error) {
	entries, err := ix.Load(ctx)
	if err != nil {
		return model.IndexEntry{}, false, err
	}
	e, ok := entries[id]
	return e, ok, nil
}

// Load returns the current entries. If the index file is missing, corrupt,
// or decodes empty while its content is not an empty object, the index is
// rebuilt from the record files instead of failing.
func (ix *Index) Load(ctx context.Context) (map[string]model.IndexEntry, error) {
	entries, usable := ix.read()
	if usable {
		return entries, nil
	}
	return ix.Rebuild(ctx)
}

// Rebuild scans every live record and atomically replaces the index file.
// Unreadable records are logged and skipped.
func (ix *Index) Rebuild(ctx context.Context) (map[string]model.IndexEntry, error) {
	var entries map[string]model.IndexEntry
	err := ix.withLock(func() error {
		var err error
		entries, err = ix.rebuildLocked(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (ix *Index) rebuildLocked(ctx context.Context) (map[string]model.IndexEntry, error) {
	sessions, err := scanDir(ctx, ix.layout.SessionsDir(), ix.logger)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]model.IndexEntry, len(sessions))
	for _, s := range sessions {
		if !validate.IsSessionID(s.SessionID) {
			ix.logger.Warn("skipping record with invalid session ID during rebuild", "session_id", s.SessionID)
			continue
		}
		entries[s.SessionID] = s.Entry()
	}
	if err := ix.save(entries); err != nil {
		return nil, err
	}
	ix.obs.IndexRebuilt(len(entries))
	ix.logger.Info("session index rebuilt", "entries", len(entries))
	return entries, nil
}

// loadLocked is Load for callers already holding the index lock.
func (ix *Index) loadLocked(ctx context.Context) (map[string]model.IndexEntry, error) {
	entries, usable := ix.read()
	if usable {
		return entries, nil
	}
	return ix.rebuildLocked(ctx)
}

// read reports whether the on-disk index can be trusted as-is.
func (ix *Index) read() (map[string]model.IndexEntry, bool) {
	path := ix.layout.IndexFile()
	data, err := fileio.ReadBounded(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			ix.logger.Warn("session index unreadable, rebuilding", "path", path, "error", err)
		}
		return nil, false
	}
	entries, err := codec.DecodeIndex(path, data)
	if err != nil {
		ix.logger.Warn("session index corrupt, rebuilding", "path", path, "error", err)
		return nil, false
	}
	if len(entries) == 0 && len(bytes.TrimSpace(data)) > 2 {
		ix.logger.Warn("session index decoded empty but file is not, rebuilding", "path", path)
		return nil, false
	}
	return entries, true
}

func (ix *Index) save(entries map[string]model.IndexEntry) error {
	data, err := codec.EncodeIndex(entries)
	if err != nil {
		return errors.Wrap(err, "failed to encode session index")
	}
	if err := fileio.WriteAtomic(ix.layout.IndexFile(), data, 0644); err != nil {
		return errors.NewStoreError("failed to write session index", err).WithPath(ix.layout.IndexFile())
	}
	return nil
}
