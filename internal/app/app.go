// Package app builds every worklog component from the runtime config and
// wires them together.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/worklog/internal/api"
	"github.com/Iron-Ham/worklog/internal/config"
	"github.com/Iron-Ham/worklog/internal/gitlog"
	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/metrics"
	"github.com/Iron-Ham/worklog/internal/notify"
	"github.com/Iron-Ham/worklog/internal/overview"
	"github.com/Iron-Ham/worklog/internal/projectstate"
	"github.com/Iron-Ham/worklog/internal/reconcile"
	"github.com/Iron-Ham/worklog/internal/registry"
	"github.com/Iron-Ham/worklog/internal/session"
	"github.com/Iron-Ham/worklog/internal/watch"
)

// App holds the wired components. Every field is safe for concurrent use.
type App struct {
	Config     *config.Config
	Layout     layout.Layout
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	Store      *session.Store
	Registry   *registry.Registry
	States     *projectstate.Cache
	Reconciler *reconcile.Reconciler
	Notifier   *notify.Notifier
	Overview   *overview.Builder
	Git        *gitlog.Reader
}

type options struct {
	now    func() time.Time
	logger *logging.Logger
	sender notify.Sender
	git    gitlog.CommandExecutor
}

// Option configures New.
type Option func(*options)

// WithClock injects the clock every component uses.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLogger replaces the logger built from the config.
func WithLogger(l *logging.Logger) Option { return func(o *options) { o.logger = l } }

// WithSender replaces the desktop notification sender.
func WithSender(s notify.Sender) Option { return func(o *options) { o.sender = s } }

// WithGitExecutor replaces the git command runner.
func WithGitExecutor(e gitlog.CommandExecutor) Option { return func(o *options) { o.git = e } }

// New resolves the data directory, creates it if needed and builds every
// component.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}

	root, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	l := layout.New(root)
	if err := l.Ensure(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		if logger, err = newLogger(cfg, l); err != nil {
			return nil, err
		}
	}

	m := metrics.New()
	store, err := session.New(l,
		session.WithLogger(logger),
		session.WithClock(o.now),
		session.WithObserver(m),
	)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	reg := registry.New(l, registry.WithLogger(logger), registry.WithClock(o.now))
	cache := projectstate.New(l, store,
		projectstate.WithLogger(logger),
		projectstate.WithClock(o.now),
		projectstate.WithProjects(reg),
		projectstate.WithObserver(m),
	)
	store.SetHook(cache)

	notifyOpts := []notify.Option{notify.WithLogger(logger), notify.WithClock(o.now)}
	if o.sender != nil {
		notifyOpts = append(notifyOpts, notify.WithSender(o.sender))
	}

	return &App{
		Config:   cfg,
		Layout:   l,
		Logger:   logger,
		Metrics:  m,
		Store:    store,
		Registry: reg,
		States:   cache,
		Reconciler: reconcile.New(l, store,
			reconcile.WithLogger(logger),
			reconcile.WithClock(o.now),
			reconcile.WithSettings(reg),
			reconcile.WithObserver(m),
		),
		Notifier: notify.New(l, store, reg, notifyOpts...),
		Overview: overview.NewBuilder(store, reg, cache, overview.WithLogger(logger), overview.WithClock(o.now)),
		Git:      gitlog.NewReader(o.git),
	}, nil
}

func newLogger(cfg *config.Config, l layout.Layout) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NewWriterLogger(os.Stderr, logging.LevelWarn), nil
	}
	return logging.NewLoggerWithRotation(l.LogsDir(), logging.ParseLevel(cfg.Logging.Level), logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
}

// Close releases the log file.
func (a *App) Close() error {
	return a.Logger.Close()
}

// Server builds the HTTP server over the app's read paths.
func (a *App) Server() *api.Server {
	return api.New(api.Deps{
		Overviews: a.Overview,
		Sessions:  a.Store,
		States:    a.States,
		Projects:  a.Registry,
		Metrics:   a.Metrics.Handler(),
	},
		api.WithLogger(a.Logger),
		api.WithRateLimit(a.Config.Server.RateLimitRPS, a.Config.Server.RateLimitBurst),
	)
}

// ServerPort is the configured port, or the dashboard_port setting when
// the runtime config leaves it at 0.
func (a *App) ServerPort(ctx context.Context) (int, error) {
	if a.Config.Server.Port > 0 {
		return a.Config.Server.Port, nil
	}
	settings, err := a.Registry.Settings(ctx)
	if err != nil {
		return 0, err
	}
	return settings.DashboardPort, nil
}

// Watcher creates a change feed over the data directory.
func (a *App) Watcher() (*watch.Watcher, error) {
	return watch.New(a.Layout, watch.WithLogger(a.Logger))
}
