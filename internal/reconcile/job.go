package reconcile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/worklog/internal/codec"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/fileio"
	"github.com/Iron-Ham/worklog/internal/layout"
)

// JobKind selects which reconciliation passes a job runs.
type JobKind string

const (
	KindStale   JobKind = "cleanup-stale"
	KindArchive JobKind = "archive"
	KindLocks   JobKind = "cleanup-locks"
	KindAll     JobKind = "reconcile"
)

// Valid reports whether k is a known kind.
func (k JobKind) Valid() bool {
	switch k {
	case KindStale, KindArchive, KindLocks, KindAll:
		return true
	}
	return false
}

// JobStatus is the state of a job record.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobParams are the thresholds a job was started with. Zero means the
// configured setting.
type JobParams struct {
	StaleThresholdHours int `json:"stale_threshold_hours,omitempty"`
	ArchiveAfterDays    int `json:"archive_after_days,omitempty"`
}

// JobResults is what a job changed.
type JobResults struct {
	Closed       []string `json:"closed"`
	Archived     []string `json:"archived"`
	RemovedLocks []string `json:"removed_locks"`
	Errors       []string `json:"errors,omitempty"`
}

// Total is the number of items the job changed.
func (r *JobResults) Total() int {
	return len(r.Closed) + len(r.Archived) + len(r.RemovedLocks)
}

// Job is one reconciliation run recorded in jobs/{id}.json.
type Job struct {
	ID        string      `json:"id"`
	Kind      JobKind     `json:"kind"`
	Status    JobStatus   `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	EndedAt   time.Time   `json:"ended_at,omitzero"`
	Params    JobParams   `json:"params"`
	Results   *JobResults `json:"results,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewJob returns a pending job with a fresh ID.
func NewJob(kind JobKind, params JobParams, now time.Time) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobPending,
		CreatedAt: now.UTC(),
		Params:    params,
	}
}

// Finished reports whether the job reached a terminal state.
func (j *Job) Finished() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// SaveJob writes j to its job file.
func SaveJob(l layout.Layout, j *Job) error {
	if err := os.MkdirAll(l.JobsDir(), 0755); err != nil {
		return errors.NewStoreError("failed to create jobs directory", err)
	}
	data, err := codec.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "failed to encode job")
	}
	path := l.JobFile(j.ID)
	if err := fileio.WriteAtomic(path, data, 0644); err != nil {
		return errors.NewStoreError("failed to write job file", err).WithPath(path)
	}
	return nil
}

// LoadJob reads one job record.
func LoadJob(l layout.Layout, id string) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NewValidationError("invalid job ID: " + id).WithField("job_id")
	}
	path := l.JobFile(id)
	data, err := fileio.ReadBounded(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, err
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, errors.NewIntegrityError(errors.IntegrityCorrupt, path, err)
	}
	return &j, nil
}

// ListJobs returns every readable job, newest first. Unreadable files are
// skipped.
func ListJobs(l layout.Layout) ([]*Job, error) {
	entries, err := os.ReadDir(l.JobsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var jobs []*Job
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || fileio.IsTempName(name) {
			continue
		}
		j, err := LoadJob(l, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
	return jobs, nil
}

// PruneJobs removes finished job records that ended before now-maxAge and
// returns how many were removed.
func PruneJobs(l layout.Layout, maxAge time.Duration, now time.Time) (int, error) {
	jobs, err := ListJobs(l)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	for _, j := range jobs {
		if !j.Finished() {
			continue
		}
		end := j.EndedAt
		if end.IsZero() {
			end = j.CreatedAt
		}
		if end.Before(cutoff) {
			if err := os.Remove(l.JobFile(j.ID)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
