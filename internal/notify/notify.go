// Package notify raises desktop notifications for stale and long-parked
// sessions, at most once per cooldown window per session and reason.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/worklog/internal/codec"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/fileio"
	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
)

// Notification reasons.
const (
	ReasonStale  = "stale"
	ReasonParked = "parked"
)

// Check statuses.
const (
	StatusDisabled = "disabled"
	StatusChecked  = "checked"
)

// Sender delivers one notification and reports whether it reached the user.
type Sender interface {
	Send(ctx context.Context, title, message string) (bool, error)
}

// Sessions lists live sessions.
type Sessions interface {
	List(ctx context.Context, f session.Filter) ([]*model.Session, error)
}

// SettingsSource supplies the notification settings.
type SettingsSource interface {
	Settings(ctx context.Context) (model.Settings, error)
}

// Result summarizes one check.
type Result struct {
	Status         string `json:"status"`
	StaleNotified  int    `json:"stale_notified"`
	ParkedNotified int    `json:"parked_notified"`
}

type stateEntry struct {
	Reason     string    `json:"reason"`
	NotifiedAt time.Time `json:"notified_at"`
}

// Notifier checks sessions and sends notifications.
type Notifier struct {
	layout   layout.Layout
	sessions Sessions
	settings SettingsSource
	sender   Sender
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the notifier logger.
func WithLogger(l *logging.Logger) Option { return func(n *Notifier) { n.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(n *Notifier) { n.now = now } }

// WithSender replaces the desktop sender.
func WithSender(s Sender) Option { return func(n *Notifier) { n.sender = s } }

// New creates a Notifier using the desktop sender.
func New(l layout.Layout, sessions Sessions, settings SettingsSource, opts ...Option) *Notifier {
	n := &Notifier{
		layout:   l,
		sessions: sessions,
		settings: settings,
		logger:   logging.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.WithComponent("notify")
	if n.sender == nil {
		n.sender = NewDesktopSender(n.logger)
	}
	return n
}

// LongParked returns Parked sessions parked for longer than threshold,
// measured from ended_at.
func (n *Notifier) LongParked(ctx context.Context, threshold time.Duration) ([]*model.Session, error) {
	parked, err := n.sessions.List(ctx, session.Filter{Status: model.StatusParked})
	if err != nil {
		return nil, err
	}
	now := n.now()
	var out []*model.Session
	for _, s := range parked {
		if s.EndedAt != nil && now.Sub(*s.EndedAt) > threshold {
			out = append(out, s)
		}
	}
	return out, nil
}

// Check notifies about stale and long-parked sessions when notifications
// are enabled and records what was sent. Entries for sessions that are no
// longer stale or parked are dropped from the state file.
func (n *Notifier) Check(ctx context.Context) (Result, error) {
	settings, err := n.settings.Settings(ctx)
	if err != nil {
		return Result{}, err
	}
	if !settings.NotificationsEnabled {
		return Result{Status: StatusDisabled}, nil
	}

	active, err := n.sessions.List(ctx, session.Filter{Status: model.StatusActive})
	if err != nil {
		return Result{}, err
	}
	parked, err := n.LongParked(ctx, time.Duration(settings.ParkedNotifyHours)*time.Hour)
	if err != nil {
		return Result{}, err
	}

	state := n.loadState()
	cooldown := time.Duration(settings.NotifyCooldownHours) * time.Hour
	now := n.now()
	seen := make(map[string]bool)
	res := Result{Status: StatusChecked}

	for _, s := range active {
		if !s.IsStale(now, settings.StaleThreshold()) {
			continue
		}
		seen[s.SessionID] = true
		if n.notify(ctx, state, s, ReasonStale, cooldown, "Stale session",
			fmt.Sprintf("%s: %q has no heartbeat", s.ProjectSlug, s.Intent)) {
			res.StaleNotified++
		}
	}
	for _, s := range parked {
		seen[s.SessionID] = true
		if n.notify(ctx, state, s, ReasonParked, cooldown, "Parked session waiting",
			fmt.Sprintf("%s: %q", s.ProjectSlug, s.Intent)) {
			res.ParkedNotified++
		}
	}

	for id := range state {
		if !seen[id] {
			delete(state, id)
		}
	}
	if err := n.saveState(state); err != nil {
		return res, err
	}
	return res, nil
}

func (n *Notifier) notify(ctx context.Context, state map[string]stateEntry, s *model.Session, reason string, cooldown time.Duration, title, message string) bool {
	now := n.now().UTC()
	if entry, ok := state[s.SessionID]; ok && entry.Reason == reason && now.Sub(entry.NotifiedAt) < cooldown {
		return false
	}
	sent, err := n.sender.Send(ctx, title, message)
	if err != nil {
		n.logger.WithSession(s.SessionID).Warn("notification failed", "reason", reason, "error", err)
		return false
	}
	if !sent {
		return false
	}
	state[s.SessionID] = stateEntry{Reason: reason, NotifiedAt: now}
	return true
}

// loadState never fails: a missing or corrupt state file starts fresh.
func (n *Notifier) loadState() map[string]stateEntry {
	state := make(map[string]stateEntry)
	path := n.layout.NotifyStateFile()
	data, err := fileio.ReadBounded(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			n.logger.Warn("notify state unreadable, starting fresh", "path", path, "error", err)
		}
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil || state == nil {
		n.logger.Warn("corrupt notify state, starting fresh", "path", path, "error", err)
		return make(map[string]stateEntry)
	}
	return state
}

func (n *Notifier) saveState(state map[string]stateEntry) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "failed to encode notify state")
	}
	path := n.layout.NotifyStateFile()
	if err := fileio.WriteAtomic(path, data, 0644); err != nil {
		return errors.NewStoreError("failed to write notify state", err).WithPath(path)
	}
	return nil
}
