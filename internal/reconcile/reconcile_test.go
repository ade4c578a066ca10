package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/filelock"
	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type itemCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *itemCounter) ItemReconciled(job, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[job+"/"+result]++
}

func (c *itemCounter) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

type fixedSettings model.Settings

func (s fixedSettings) Settings(context.Context) (model.Settings, error) { return model.Settings(s), nil }

type fixture struct {
	layout layout.Layout
	store  *session.Store
	rec    *Reconciler
	clock  *testClock
	items  *itemCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := layout.New(t.TempDir())
	clock := &testClock{now: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)}
	store, err := session.New(l, session.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	items := &itemCounter{}
	rec := New(l, store,
		WithClock(clock.Now),
		WithObserver(items),
		WithSettings(fixedSettings(model.DefaultSettings())),
	)
	return &fixture{layout: l, store: store, rec: rec, clock: clock, items: items}
}

func (f *fixture) create(t *testing.T, intent string) *model.Session {
	t.Helper()
	s, err := f.store.Create(context.Background(), session.CreateParams{ProjectSlug: "my-app", Intent: intent})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.clock.Advance(time.Minute)
	return s
}

func TestCleanupStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.create(t, "forgotten")
	f.clock.Advance(25 * time.Hour)
	fresh := f.create(t, "current")

	candidates, err := f.rec.StaleCandidates(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 || candidates[0].SessionID != stale.SessionID {
		t.Fatalf("candidates = %v", candidates)
	}

	closed, failures, err := f.rec.CleanupStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupStale() error = %v", err)
	}
	if len(closed) != 1 || closed[0] != stale.SessionID || len(failures) != 0 {
		t.Fatalf("closed = %v, failures = %v", closed, failures)
	}

	got, err := f.store.Get(ctx, stale.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusCompleted || got.Outcome != StaleOutcome {
		t.Errorf("stale session = %s %q", got.Status, got.Outcome)
	}
	if got.EndedAt == nil || !got.LastHeartbeat.Equal(*got.EndedAt) {
		t.Errorf("last_heartbeat = %v, ended_at = %v; want equal", got.LastHeartbeat, got.EndedAt)
	}

	other, err := f.store.Get(ctx, fresh.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if other.Status != model.StatusActive {
		t.Errorf("fresh session status = %s", other.Status)
	}
	if f.items.get("cleanup-stale/closed") != 1 {
		t.Errorf("observer counts = %v", f.items.counts)
	}

	closed, _, err = f.rec.CleanupStale(ctx, 24*time.Hour)
	if err != nil || len(closed) != 0 {
		t.Errorf("second run closed = %v, err = %v", closed, err)
	}
}

func TestCleanupStale_RecheckUnderLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.create(t, "revived")
	f.clock.Advance(25 * time.Hour)

	// A heartbeat that lands after detection must win.
	candidates, err := f.rec.StaleCandidates(ctx, 24*time.Hour)
	if err != nil || len(candidates) != 1 {
		t.Fatalf("candidates = %v, %v", candidates, err)
	}
	if _, err := f.store.Heartbeat(ctx, s.SessionID); err != nil {
		t.Fatal(err)
	}
	closed, _, err := f.rec.CleanupStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 0 {
		t.Errorf("closed = %v, want none after heartbeat", closed)
	}
}

func TestCleanupStale_InvalidThreshold(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.rec.CleanupStale(context.Background(), 0); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCleanupOrphanLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	live := f.create(t, "has a record")

	orphan := f.layout.SessionLock("sess_20260101T0000_dead")
	held := f.layout.SessionLock("sess_20260101T0000_beef")
	writeFile(t, orphan)
	writeFile(t, f.layout.IndexLock())
	writeFile(t, filepath.Join(f.layout.SessionsDir(), "notes.lock"))

	lk, err := filelock.Acquire(held)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	locks, err := f.rec.Locks(ctx)
	if err != nil {
		t.Fatalf("Locks() error = %v", err)
	}
	byID := map[string]LockInfo{}
	for _, li := range locks {
		byID[li.SessionID] = li
	}
	if !byID["sess_20260101T0000_beef"].Held || !byID["sess_20260101T0000_beef"].Orphan {
		t.Errorf("held lock info = %+v", byID["sess_20260101T0000_beef"])
	}
	if li, ok := byID[live.SessionID]; ok && li.Orphan {
		t.Errorf("lock with a record reported as orphan: %+v", li)
	}

	removed, failures, err := f.rec.CleanupOrphanLocks(ctx)
	if err != nil {
		t.Fatalf("CleanupOrphanLocks() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != "sess_20260101T0000_dead.lock" || len(failures) != 0 {
		t.Errorf("removed = %v, failures = %v", removed, failures)
	}

	for _, keep := range []string{held, f.layout.IndexLock(), f.layout.SessionLock(live.SessionID)} {
		if _, err := os.Stat(keep); err != nil {
			t.Errorf("%s should survive: %v", filepath.Base(keep), err)
		}
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("orphan lock still present: %v", err)
	}
}

func TestArchiveOld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.create(t, "old")
	if _, err := f.store.Complete(ctx, old.SessionID, session.CompleteParams{Outcome: "done"}); err != nil {
		t.Fatal(err)
	}
	parked := f.create(t, "parked")
	if _, err := f.store.Park(ctx, parked.SessionID, "later", nil); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(31 * 24 * time.Hour)
	recent := f.create(t, "recent")
	if _, err := f.store.Complete(ctx, recent.SessionID, session.CompleteParams{Outcome: "done"}); err != nil {
		t.Fatal(err)
	}

	archived, failures, err := f.rec.ArchiveOld(ctx, 30)
	if err != nil {
		t.Fatalf("ArchiveOld() error = %v", err)
	}
	if len(archived) != 1 || archived[0] != old.SessionID || len(failures) != 0 {
		t.Fatalf("archived = %v, failures = %v", archived, failures)
	}

	if _, err := os.Stat(f.layout.ArchivedSessionFile(old.SessionID)); err != nil {
		t.Errorf("archive file missing: %v", err)
	}
	if _, err := os.Stat(f.layout.SessionLock(old.SessionID)); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed after archiving: %v", err)
	}
	if _, err := f.store.GetArchived(ctx, old.SessionID); err != nil {
		t.Errorf("GetArchived() = %v", err)
	}
	active, err := f.store.List(ctx, session.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range active {
		if s.SessionID == old.SessionID {
			t.Error("archived session still listed by default")
		}
	}

	for _, days := range []int{0, -1, 3651} {
		if _, _, err := f.rec.ArchiveOld(ctx, days); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("ArchiveOld(%d) err = %v", days, err)
		}
	}
}

func TestArchiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.create(t, "still going")
	moved, err := f.rec.ArchiveSession(ctx, active.SessionID)
	if err != nil || moved {
		t.Errorf("active session: moved = %v, err = %v", moved, err)
	}

	if _, err := f.store.Complete(ctx, active.SessionID, session.CompleteParams{Outcome: "done"}); err != nil {
		t.Fatal(err)
	}
	moved, err = f.rec.ArchiveSession(ctx, active.SessionID)
	if err != nil || !moved {
		t.Errorf("completed session: moved = %v, err = %v", moved, err)
	}

	moved, err = f.rec.ArchiveSession(ctx, "sess_20260101T0000_0000")
	if err != nil || moved {
		t.Errorf("absent session: moved = %v, err = %v", moved, err)
	}
}

func TestStartJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, "forgotten")
	f.clock.Advance(48 * time.Hour)
	writeFile(t, f.layout.SessionLock("sess_20260101T0000_dead"))

	job, err := f.rec.Start(ctx, KindAll, JobParams{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if job.Status != JobCompleted {
		t.Errorf("status = %s (%s)", job.Status, job.Error)
	}
	if job.Params.StaleThresholdHours != 24 || job.Params.ArchiveAfterDays != 30 {
		t.Errorf("params not resolved from settings: %+v", job.Params)
	}
	if len(job.Results.Closed) != 1 || len(job.Results.RemovedLocks) != 1 {
		t.Errorf("results = %+v", job.Results)
	}

	loaded, err := LoadJob(f.layout, job.ID)
	if err != nil {
		t.Fatalf("LoadJob() error = %v", err)
	}
	if loaded.Status != JobCompleted || loaded.StartedAt.IsZero() || loaded.EndedAt.IsZero() {
		t.Errorf("loaded = %+v", loaded)
	}

	if _, err := f.rec.RunJob(ctx, job.ID); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("rerunning a finished job err = %v, want conflict", err)
	}
	if _, err := f.rec.Start(ctx, JobKind("bogus"), JobParams{}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("bogus kind err = %v", err)
	}
}

func TestEnqueueThenRunJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.rec.Enqueue(KindLocks, JobParams{})
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != JobPending {
		t.Errorf("status = %s", job.Status)
	}
	ran, err := f.rec.RunJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}
	if ran.Status != JobCompleted || ran.Results == nil {
		t.Errorf("job = %+v", ran)
	}

	if _, err := f.rec.RunJob(ctx, "not-a-uuid"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("bad id err = %v", err)
	}
}

func TestListAndPruneJobs(t *testing.T) {
	f := newFixture(t)

	finished := NewJob(KindArchive, JobParams{}, f.clock.Now())
	finished.Status = JobCompleted
	finished.EndedAt = f.clock.Now()
	pending := NewJob(KindStale, JobParams{}, f.clock.Now().Add(time.Minute))
	for _, j := range []*Job{finished, pending} {
		if err := SaveJob(f.layout, j); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(f.layout.JobsDir(), "garbage.json"))

	jobs, err := ListJobs(f.layout)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 || jobs[0].ID != pending.ID {
		t.Fatalf("jobs = %v", jobs)
	}

	removed, err := PruneJobs(f.layout, 24*time.Hour, f.clock.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := LoadJob(f.layout, pending.ID); err != nil {
		t.Errorf("pending job should survive pruning: %v", err)
	}
	if _, err := LoadJob(f.layout, finished.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("pruned job err = %v", err)
	}
}
