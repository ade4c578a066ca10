package notify

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/logging"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
)

type recordingSender struct {
	mu       sync.Mutex
	titles   []string
	delivers bool
}

func (r *recordingSender) Send(_ context.Context, title, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.delivers, nil
}

type fixedSettings model.Settings

func (s fixedSettings) Settings(context.Context) (model.Settings, error) { return model.Settings(s), nil }

type fixture struct {
	layout   layout.Layout
	store    *session.Store
	sender   *recordingSender
	notifier *Notifier
	now      *time.Time
}

func newFixture(t *testing.T, enabled bool) *fixture {
	t.Helper()
	l := layout.New(t.TempDir())
	now := time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store, err := session.New(l, session.WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	settings := model.DefaultSettings()
	settings.NotificationsEnabled = enabled
	sender := &recordingSender{delivers: true}
	n := New(l, store, fixedSettings(settings), WithClock(clock), WithSender(sender))
	return &fixture{layout: l, store: store, sender: sender, notifier: n, now: &now}
}

func (f *fixture) create(t *testing.T, intent string) *model.Session {
	t.Helper()
	s, err := f.store.Create(context.Background(), session.CreateParams{ProjectSlug: "my-app", Intent: intent})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCheck_Disabled(t *testing.T) {
	f := newFixture(t, false)
	f.create(t, "x")
	*f.now = f.now.Add(48 * time.Hour)

	res, err := f.notifier.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusDisabled || len(f.sender.titles) != 0 {
		t.Errorf("res = %+v, sent = %v", res, f.sender.titles)
	}
}

func TestCheck_CooldownAndPrune(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	stale := f.create(t, "forgotten")
	parked := f.create(t, "on hold")
	if _, err := f.store.Park(ctx, parked.SessionID, "waiting", nil); err != nil {
		t.Fatal(err)
	}
	*f.now = f.now.Add(49 * time.Hour)
	f.create(t, "fresh")

	res, err := f.notifier.Check(ctx)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.Status != StatusChecked || res.StaleNotified != 1 || res.ParkedNotified != 1 {
		t.Errorf("first check = %+v", res)
	}

	*f.now = f.now.Add(time.Hour)
	res, err = f.notifier.Check(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.StaleNotified != 0 || res.ParkedNotified != 0 {
		t.Errorf("within cooldown = %+v", res)
	}

	*f.now = f.now.Add(12 * time.Hour)
	res, err = f.notifier.Check(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.StaleNotified != 1 || res.ParkedNotified != 1 {
		t.Errorf("after cooldown = %+v", res)
	}

	if _, err := f.store.Heartbeat(ctx, stale.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.notifier.Check(ctx); err != nil {
		t.Fatal(err)
	}
	state := readState(t, f.layout)
	if _, ok := state[stale.SessionID]; ok {
		t.Error("entry for a session that is no longer stale should be pruned")
	}
	if e, ok := state[parked.SessionID]; !ok || e.Reason != ReasonParked {
		t.Errorf("parked entry = %+v", e)
	}
}

func TestCheck_UndeliveredIsRetried(t *testing.T) {
	f := newFixture(t, true)
	f.sender.delivers = false
	f.create(t, "forgotten")
	*f.now = f.now.Add(30 * time.Hour)

	for i := 0; i < 2; i++ {
		res, err := f.notifier.Check(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.StaleNotified != 0 {
			t.Errorf("undelivered notifications should not count: %+v", res)
		}
	}
	if len(f.sender.titles) != 2 {
		t.Errorf("sends = %d, want a retry on every check", len(f.sender.titles))
	}
}

func TestCheck_CorruptStateStartsFresh(t *testing.T) {
	f := newFixture(t, true)
	f.create(t, "forgotten")
	*f.now = f.now.Add(30 * time.Hour)
	if err := os.WriteFile(f.layout.NotifyStateFile(), []byte("[1,2"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := f.notifier.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.StaleNotified != 1 {
		t.Errorf("res = %+v", res)
	}
	if len(readState(t, f.layout)) != 1 {
		t.Error("state should be rewritten")
	}
}

func TestDesktopSender_NonDarwinLogsOnly(t *testing.T) {
	d := &DesktopSender{logger: logging.NopLogger(), goos: "linux"}
	sent, err := d.Send(context.Background(), "t", "m")
	if err != nil || sent {
		t.Errorf("Send() = %v, %v", sent, err)
	}
	if got := escapeAppleScript(`say "hi" \ bye`); got != `say \"hi\" \\ bye` {
		t.Errorf("escape = %s", got)
	}
}

func readState(t *testing.T, l layout.Layout) map[string]stateEntry {
	t.Helper()
	data, err := os.ReadFile(l.NotifyStateFile())
	if err != nil {
		t.Fatal(err)
	}
	var state map[string]stateEntry
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatal(err)
	}
	return state
}
