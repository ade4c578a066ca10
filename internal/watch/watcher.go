// Package watch turns filesystem events in the data directory into a
// debounced feed of record changes.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/worklog/internal/fileio"
	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/validate"
)

// DefaultDebounce is how long the directory must be quiet before pending
// changes are emitted. Editors and atomic writes produce bursts.
const DefaultDebounce = 50 * time.Millisecond

// Kind is the record type a change belongs to.
type Kind string

const (
	KindSession Kind = "session"
	KindProject Kind = "project"
	KindIndex   Kind = "index"
	KindConfig  Kind = "config"
)

// Change is one record that changed on disk.
type Change struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id,omitempty"`
	Op   string `json:"op"`
	Path string `json:"path"`
}

// Watcher watches sessions/, projects/ and the data root.
type Watcher struct {
	fsw      *fsnotify.Watcher
	layout   layout.Layout
	logger   *logging.Logger
	debounce time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(l *logging.Logger) Option { return func(w *Watcher) { w.logger = l } }

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// New creates a watcher over l, creating the watched directories if needed.
func New(l layout.Layout, opts ...Option) (*Watcher, error) {
	if err := l.Ensure(); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, layout: l, logger: logging.NopLogger(), debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("watch")

	for _, dir := range []string{l.Root, l.SessionsDir(), l.ProjectsDir()} {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Start emits changes until ctx is cancelled, then closes the channel and
// the underlying watcher.
func (w *Watcher) Start(ctx context.Context) <-chan Change {
	out := make(chan Change)
	go w.loop(ctx, out)
	return out
}

func (w *Watcher) loop(ctx context.Context, out chan<- Change) {
	defer close(out)
	defer func() { _ = w.fsw.Close() }()

	timer := time.NewTimer(0)
	<-timer.C
	pending := make(map[string]Change)

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			c, ok := w.classify(event)
			if !ok {
				continue
			}
			pending[c.Path] = c
			timer.Reset(w.debounce)

		case <-timer.C:
			batch := make([]Change, 0, len(pending))
			for _, c := range pending {
				batch = append(batch, c)
			}
			pending = make(map[string]Change)
			sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
			for _, c := range batch {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// classify maps a path to the record it belongs to. Temp files, lock files
// and unrelated files are dropped.
func (w *Watcher) classify(event fsnotify.Event) (Change, bool) {
	path := event.Name
	dir, name := filepath.Dir(path), filepath.Base(path)
	if fileio.IsTempName(name) || strings.HasSuffix(name, layout.LockExt) {
		return Change{}, false
	}
	c := Change{Op: opName(event.Op), Path: path}

	switch dir {
	case filepath.Clean(w.layout.SessionsDir()):
		if name == layout.IndexFileName {
			c.Kind = KindIndex
			return c, true
		}
		id := strings.TrimSuffix(name, layout.RecordExt)
		if id == name || !validate.IsSessionID(id) {
			return Change{}, false
		}
		c.Kind, c.ID = KindSession, id
		return c, true

	case filepath.Clean(w.layout.ProjectsDir()):
		slug := strings.TrimSuffix(name, layout.RecordExt)
		if slug == name || validate.ProjectSlug(slug) != nil {
			return Change{}, false
		}
		c.Kind, c.ID = KindProject, slug
		return c, true

	case filepath.Clean(w.layout.Root):
		if name == layout.ConfigFileName {
			c.Kind = KindConfig
			return c, true
		}
	}
	return Change{}, false
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Create):
		return "create"
	default:
		return "write"
	}
}
