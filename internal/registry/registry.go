// Package registry owns config.json: the registered projects and the
// user-tunable settings. Reads are lock-free; every change happens under
// config.lock as a read-modify-write of the whole record.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
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

// Registry reads and updates the config record.
type Registry struct {
	layout layout.Layout
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *logging.Logger) Option { return func(r *Registry) { r.logger = l } }

// WithClock replaces time.Now for registered_at.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// New creates a Registry over l.
func New(l layout.Layout, opts ...Option) *Registry {
	r := &Registry{layout: l, logger: logging.NopLogger(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("registry")
	return r
}

// Load returns the config record, writing the defaults on first access.
func (r *Registry) Load(ctx context.Context) (*model.Config, error) {
	cfg, err := r.read()
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	var out *model.Config
	err = r.update(func(cfg *model.Config) (bool, error) {
		out = cfg
		return !fileio.Exists(r.layout.ConfigFile()), nil
	})
	return out, err
}

// Projects returns every registered project keyed by slug.
func (r *Registry) Projects(ctx context.Context) (map[string]model.ProjectRegistration, error) {
	cfg, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.Projects, nil
}

// Slugs returns the registered slugs in sorted order.
func (r *Registry) Slugs(ctx context.Context) ([]string, error) {
	projects, err := r.Projects(ctx)
	if err != nil {
		return nil, err
	}
	slugs := make([]string, 0, len(projects))
	for slug := range projects {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs, nil
}

// Project returns one registration.
func (r *Registry) Project(ctx context.Context, slug string) (model.ProjectRegistration, error) {
	if err := validate.ProjectSlug(slug); err != nil {
		return model.ProjectRegistration{}, err
	}
	projects, err := r.Projects(ctx)
	if err != nil {
		return model.ProjectRegistration{}, err
	}
	reg, ok := projects[slug]
	if !ok {
		return model.ProjectRegistration{}, errors.NewNotFoundError("project", slug)
	}
	return reg, nil
}

// RegisterProject registers the project at path under a slug derived from
// its basename and returns the slug. Registering an existing slug again
// leaves the original registration in place.
func (r *Registry) RegisterProject(ctx context.Context, name, path string) (string, error) {
	name, err := validate.String(name, "project name", validate.MaxProjectName)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", errors.NewValidationError("project path is required").WithField("path")
	}
	slug := validate.Slugify(path)
	if err := validate.ProjectSlug(slug); err != nil {
		return "", err
	}
	if abs, absErr := filepath.Abs(path); absErr == nil {
		path = abs
	}

	err = r.update(func(cfg *model.Config) (bool, error) {
		if _, ok := cfg.Projects[slug]; ok {
			return false, nil
		}
		cfg.Projects[slug] = model.ProjectRegistration{
			Name:         name,
			Path:         path,
			RegisteredAt: r.now().UTC(),
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	r.logger.WithProject(slug).Info("project registered", "path", path)
	return slug, nil
}

// Settings returns the current settings.
func (r *Registry) Settings(ctx context.Context) (model.Settings, error) {
	cfg, err := r.Load(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	return cfg.Settings, nil
}

// UpdateSettings applies fn to the stored settings and saves them if the
// result is valid.
func (r *Registry) UpdateSettings(ctx context.Context, fn func(*model.Settings)) (model.Settings, error) {
	var out model.Settings
	err := r.update(func(cfg *model.Config) (bool, error) {
		next := cfg.Settings
		fn(&next)
		if err := validate.Struct(next); err != nil {
			return false, err
		}
		changed := next != cfg.Settings
		cfg.Settings = next
		out = next
		return changed, nil
	})
	return out, err
}

// SetSetting sets one setting by its JSON name from a string value.
func (r *Registry) SetSetting(ctx context.Context, key, value string) (model.Settings, error) {
	apply, err := settingSetter(key, value)
	if err != nil {
		return model.Settings{}, err
	}
	return r.UpdateSettings(ctx, apply)
}

// SettingKeys lists the names SetSetting accepts.
func SettingKeys() []string {
	return []string{
		"archive_after_days",
		"dashboard_port",
		"notifications_enabled",
		"notify_cooldown_hours",
		"parked_notify_hours",
		"stale_threshold_hours",
	}
}

func settingSetter(key, value string) (func(*model.Settings), error) {
	if key == "notifications_enabled" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("%s must be true or false", key)).WithField(key).WithValue(value)
		}
		return func(s *model.Settings) { s.NotificationsEnabled = b }, nil
	}

	var target func(*model.Settings) *int
	switch key {
	case "dashboard_port":
		target = func(s *model.Settings) *int { return &s.DashboardPort }
	case "stale_threshold_hours":
		target = func(s *model.Settings) *int { return &s.StaleThresholdHours }
	case "archive_after_days":
		target = func(s *model.Settings) *int { return &s.ArchiveAfterDays }
	case "parked_notify_hours":
		target = func(s *model.Settings) *int { return &s.ParkedNotifyHours }
	case "notify_cooldown_hours":
		target = func(s *model.Settings) *int { return &s.NotifyCooldownHours }
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown setting %q", key)).WithField("key")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("%s must be an integer", key)).WithField(key).WithValue(value)
	}
	return func(s *model.Settings) { *target(s) = n }, nil
}

// update runs fn against the freshest record under config.lock and writes
// the result when fn reports a change.
func (r *Registry) update(fn func(*model.Config) (bool, error)) error {
	if err := r.layout.Ensure(); err != nil {
		return errors.NewStoreError("failed to create data directory", err)
	}
	return filelock.With(r.layout.ConfigLock(), func() error {
		cfg, err := r.read()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			cfg = model.DefaultConfig()
		}
		changed, err := fn(cfg)
		if err != nil || !changed {
			return err
		}
		data, err := codec.EncodeConfig(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to encode config")
		}
		path := r.layout.ConfigFile()
		if err := fileio.WriteAtomic(path, data, 0644); err != nil {
			return errors.NewStoreError("failed to write config", err).WithPath(path)
		}
		return nil
	}, filelock.WithLogger(r.logger))
}

func (r *Registry) read() (*model.Config, error) {
	path := r.layout.ConfigFile()
	data, err := fileio.ReadBounded(path)
	if err != nil {
		return nil, err
	}
	return codec.DecodeConfig(path, data)
}
