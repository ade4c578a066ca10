package reconcile

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/worklog/internal/errors"
)

// Start records a new job for kind and runs it in this process.
func (r *Reconciler) Start(ctx context.Context, kind JobKind, params JobParams) (*Job, error) {
	if !kind.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown job kind %q", kind)).WithField("kind")
	}
	job := NewJob(kind, params, r.now())
	if err := SaveJob(r.layout, job); err != nil {
		return nil, err
	}
	return job, r.Execute(ctx, job)
}

// Enqueue records a pending job for a background process to pick up.
func (r *Reconciler) Enqueue(kind JobKind, params JobParams) (*Job, error) {
	if !kind.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown job kind %q", kind)).WithField("kind")
	}
	job := NewJob(kind, params, r.now())
	if err := SaveJob(r.layout, job); err != nil {
		return nil, err
	}
	return job, nil
}

// RunJob loads a pending job by ID and executes it. This is the entry
// point of the detached background process.
func (r *Reconciler) RunJob(ctx context.Context, id string) (*Job, error) {
	job, err := LoadJob(r.layout, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status != JobPending {
		return job, errors.NewConflictError("job", id).WithCause(fmt.Errorf("status is %s", job.Status))
	}
	return job, r.Execute(ctx, job)
}

// Execute runs the passes selected by job.Kind, saving the job as it moves
// through running to completed or failed. A job fails only when something
// went wrong and nothing was changed.
func (r *Reconciler) Execute(ctx context.Context, job *Job) error {
	params, err := r.resolve(ctx, job.Params)
	if err != nil {
		return r.fail(job, err)
	}
	job.Params = params
	job.Status = JobRunning
	job.StartedAt = r.now().UTC()
	if err := SaveJob(r.layout, job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	log := r.logger.With("job_id", job.ID, "kind", string(job.Kind))
	log.Info("reconcile job started")

	res := &JobResults{Closed: []string{}, Archived: []string{}, RemovedLocks: []string{}}
	var fatal error

	if job.Kind == KindStale || job.Kind == KindAll {
		threshold := time.Duration(params.StaleThresholdHours) * time.Hour
		closed, failures, err := r.CleanupStale(ctx, threshold)
		res.Closed = append(res.Closed, closed...)
		res.Errors = append(res.Errors, failures...)
		fatal = errors.Join(fatal, err)
	}
	if job.Kind == KindArchive || job.Kind == KindAll {
		archived, failures, err := r.ArchiveOld(ctx, params.ArchiveAfterDays)
		res.Archived = append(res.Archived, archived...)
		res.Errors = append(res.Errors, failures...)
		fatal = errors.Join(fatal, err)
	}
	// Stale cleanup always ends with a lock sweep.
	if job.Kind == KindLocks || job.Kind == KindStale || job.Kind == KindAll {
		removed, failures, err := r.CleanupOrphanLocks(ctx)
		res.RemovedLocks = append(res.RemovedLocks, removed...)
		res.Errors = append(res.Errors, failures...)
		fatal = errors.Join(fatal, err)
	}

	job.Results = res
	job.EndedAt = r.now().UTC()
	job.Status = JobCompleted
	switch {
	case fatal != nil:
		job.Status = JobFailed
		job.Error = fatal.Error()
	case len(res.Errors) > 0 && res.Total() == 0:
		job.Status = JobFailed
		job.Error = fmt.Sprintf("all operations failed: %d errors", len(res.Errors))
	}
	if err := SaveJob(r.layout, job); err != nil {
		return fmt.Errorf("failed to save job results: %w", err)
	}
	log.Info("reconcile job finished",
		"status", string(job.Status),
		"closed", len(res.Closed),
		"archived", len(res.Archived),
		"removed_locks", len(res.RemovedLocks),
		"errors", len(res.Errors))
	return fatal
}

func (r *Reconciler) fail(job *Job, cause error) error {
	job.Status = JobFailed
	job.Error = cause.Error()
	job.EndedAt = r.now().UTC()
	if err := SaveJob(r.layout, job); err != nil {
		return fmt.Errorf("%w (additionally, failed to save job status: %v)", cause, err)
	}
	return cause
}

// SpawnBackground starts a detached `worklog reconcile --run-job` process
// for a job previously written with Enqueue.
func SpawnBackground(dataDir, jobID string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	return spawnDetachedProcess(exe, dataDir, jobID)
}
