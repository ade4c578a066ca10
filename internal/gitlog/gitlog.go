// Package gitlog reads commits from a git repository and attaches them to
// sessions.
package gitlog

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/model"
)

const gitTimeout = 10 * time.Second

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// CLICommandExecutor runs commands with os/exec.
type CLICommandExecutor struct{}

// Output runs the command in dir and returns stdout. A non-zero exit
// includes stderr in the error.
func (CLICommandExecutor) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Reader lists commits with `git log`.
type Reader struct {
	exec CommandExecutor
}

// NewReader creates a Reader. A nil executor uses os/exec.
func NewReader(exec CommandExecutor) *Reader {
	if exec == nil {
		exec = CLICommandExecutor{}
	}
	return &Reader{exec: exec}
}

// Since returns the commits in repoDir made after since, oldest first.
func (r *Reader) Since(ctx context.Context, repoDir string, since time.Time) ([]model.Commit, error) {
	if repoDir == "" {
		return nil, errors.NewValidationError("repository path is required").WithField("repo_path")
	}
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	out, err := r.exec.Output(ctx, repoDir, "git", "log",
		"--since="+since.UTC().Format(time.RFC3339),
		"--format=%H|%s")
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w", err)
	}
	commits := ParseLog(string(out))
	slices.Reverse(commits)
	return commits, nil
}

// ParseLog parses `--format=%H|%s` output. Lines without a separator are
// skipped.
func ParseLog(out string) []model.Commit {
	var commits []model.Commit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		sha, msg, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		sha, msg = strings.TrimSpace(sha), strings.TrimSpace(msg)
		if sha == "" || msg == "" {
			continue
		}
		commits = append(commits, model.Commit{SHA: sha, Message: msg})
	}
	return commits
}

// Sessions is the part of the session store capture needs.
type Sessions interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	AddCommit(ctx context.Context, id, sha, message string) (*model.Session, error)
}

// CaptureResult reports how many new commits were recorded.
type CaptureResult struct {
	Captured     int `json:"captured"`
	TotalCommits int `json:"total_commits"`
}

// Capture adds every commit made in repoDir since the session started.
// Commits already on the session are skipped by AddCommit's dedup.
func Capture(ctx context.Context, sessions Sessions, r *Reader, sessionID, repoDir string) (CaptureResult, error) {
	sess, err := sessions.Get(ctx, sessionID)
	if err != nil {
		return CaptureResult{}, err
	}
	commits, err := r.Since(ctx, repoDir, sess.StartedAt)
	if err != nil {
		return CaptureResult{}, err
	}

	res := CaptureResult{TotalCommits: len(sess.Commits)}
	for _, c := range commits {
		before := len(sess.Commits)
		sess, err = sessions.AddCommit(ctx, sessionID, c.SHA, c.Message)
		if err != nil {
			return res, err
		}
		if len(sess.Commits) > before {
			res.Captured++
		}
		res.TotalCommits = len(sess.Commits)
	}
	return res, nil
}
