package gitlog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/layout"
	"github.com/Iron-Ham/worklog/internal/session"
)

type fakeExecutor struct {
	out  string
	err  error
	args []string
	dir  string
}

func (f *fakeExecutor) Output(_ context.Context, dir, _ string, args ...string) ([]byte, error) {
	f.dir = dir
	f.args = args
	return []byte(f.out), f.err
}

func TestParseLog(t *testing.T) {
	out := "aaaa111|second | with pipe\n\nnot a commit line\nbbbb222|first\n|no sha\n"
	got := ParseLog(out)
	if len(got) != 2 {
		t.Fatalf("got %d commits: %+v", len(got), got)
	}
	if got[0].SHA != "aaaa111" || got[0].Message != "second | with pipe" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if ParseLog("") != nil {
		t.Error("empty output should yield no commits")
	}
}

func TestReaderSince(t *testing.T) {
	fake := &fakeExecutor{out: "cccc333|newest\nbbbb222|older\n"}
	r := NewReader(fake)
	since := time.Date(2026, 2, 10, 14, 30, 0, 0, time.FixedZone("CET", 3600))

	commits, err := r.Since(context.Background(), "/repo", since)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 || commits[0].SHA != "bbbb222" {
		t.Errorf("commits should be oldest first: %+v", commits)
	}
	if fake.dir != "/repo" || fake.args[1] != "--since=2026-02-10T13:30:00Z" {
		t.Errorf("dir = %s, args = %v", fake.dir, fake.args)
	}

	fake.err = errors.New("not a git repository")
	if _, err := r.Since(context.Background(), "/repo", since); err == nil || !strings.Contains(err.Error(), "git log failed") {
		t.Errorf("err = %v", err)
	}
	if _, err := r.Since(context.Background(), "", since); err == nil {
		t.Error("empty repo path should fail")
	}
}

func TestCapture(t *testing.T) {
	ctx := context.Background()
	store, err := session.New(layout.New(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	s, err := store.Create(ctx, session.CreateParams{ProjectSlug: "my-app", Intent: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddCommit(ctx, s.SessionID, "aaaa1111", "already there"); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&fakeExecutor{out: "bbbb2222|new\naaaa1111|already there\n"})
	res, err := Capture(ctx, store, r, s.SessionID, "/repo")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if res.Captured != 1 || res.TotalCommits != 2 {
		t.Errorf("res = %+v", res)
	}

	res, err = Capture(ctx, store, r, s.SessionID, "/repo")
	if err != nil || res.Captured != 0 || res.TotalCommits != 2 {
		t.Errorf("second capture = %+v, %v", res, err)
	}
}
