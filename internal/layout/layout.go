// Package layout resolves every on-disk path used by worklog from a single
// root directory. A Layout is a plain value; nothing in it is global.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directory and file names below the root.
const (
	SessionsDirName = "sessions"
	ArchiveDirName  = "archive"
	ProjectsDirName = "projects"
	JobsDirName     = "jobs"
	LogsDirName     = "logs"
	IndexFileName   = "_index.json"
	IndexLockName   = "_index.lock"
	ConfigFileName  = "config.json"
	ConfigLockName  = "config.lock"
	NotifyStateName = "notify_state.json"
	RecordExt       = ".json"
	LockExt         = ".lock"
	SessionIDPrefix = "sess_"
)

// Layout is the explicit store handle: the root directory plus helpers that
// derive each record path from it.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// DefaultRoot returns ~/.claude/dashboard.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "dashboard"), nil
}

// Ensure creates the directories every component expects to exist.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.SessionsDir(), l.ArchiveDir(), l.ProjectsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (l Layout) SessionsDir() string { return filepath.Join(l.Root, SessionsDirName) }
func (l Layout) ArchiveDir() string  { return filepath.Join(l.SessionsDir(), ArchiveDirName) }
func (l Layout) ProjectsDir() string { return filepath.Join(l.Root, ProjectsDirName) }
func (l Layout) JobsDir() string     { return filepath.Join(l.Root, JobsDirName) }
func (l Layout) LogsDir() string     { return filepath.Join(l.Root, LogsDirName) }

// SessionFile is the live record path for id. Callers must validate id first.
func (l Layout) SessionFile(id string) string {
	return filepath.Join(l.SessionsDir(), id+RecordExt)
}

// SessionLock is the lock file guarding id's read-modify-write cycle.
func (l Layout) SessionLock(id string) string {
	return filepath.Join(l.SessionsDir(), id+LockExt)
}

// ArchivedSessionFile is where id lives once archived.
func (l Layout) ArchivedSessionFile(id string) string {
	return filepath.Join(l.ArchiveDir(), id+RecordExt)
}

func (l Layout) IndexFile() string { return filepath.Join(l.SessionsDir(), IndexFileName) }
func (l Layout) IndexLock() string { return filepath.Join(l.SessionsDir(), IndexLockName) }

// ProjectFile is the derived state file for slug.
func (l Layout) ProjectFile(slug string) string {
	return filepath.Join(l.ProjectsDir(), slug+RecordExt)
}

func (l Layout) ConfigFile() string      { return filepath.Join(l.Root, ConfigFileName) }
func (l Layout) ConfigLock() string      { return filepath.Join(l.Root, ConfigLockName) }
func (l Layout) NotifyStateFile() string { return filepath.Join(l.Root, NotifyStateName) }

// JobFile is the record for reconcile job id.
func (l Layout) JobFile(id string) string {
	return filepath.Join(l.JobsDir(), id+RecordExt)
}
