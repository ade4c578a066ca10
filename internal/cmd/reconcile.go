package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/worklog/internal/app"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/reconcile"
	"github.com/Iron-Ham/worklog/internal/validate"
)

const defaultJobRetention = 7 * 24 * time.Hour

func registerReconcileCmds(root *cobra.Command, o *rootOptions) {
	root.AddCommand(
		newCleanupStaleCmd(o),
		newArchiveCmd(o),
		newCleanupLocksCmd(o),
		newLocksCmd(o),
		newRebuildIndexCmd(o),
		newReconcileCmd(o),
		newJobsCmd(o),
	)
}

func newCleanupStaleCmd(o *rootOptions) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "cleanup-stale",
		Short: "Complete active sessions that stopped sending heartbeats",
		Long: `Complete every active session whose last heartbeat is older than the
stale threshold, then remove orphaned lock files. The run is recorded as
a job under jobs/.`,
		Args: exactArgs(0),
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "threshold in hours (default: the stale_threshold_hours setting)")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		if cmd.Flags().Changed("hours") {
			if err := validate.PositiveInt(hours, "hours", 8760); err != nil {
				return err
			}
		}
		job, err := a.Reconciler.Start(ctx, reconcile.KindStale, reconcile.JobParams{StaleThresholdHours: hours})
		if err != nil {
			return err
		}
		return p.Print(map[string]any{
			"cleaned":       len(job.Results.Closed),
			"session_ids":   job.Results.Closed,
			"removed_locks": job.Results.RemovedLocks,
			"errors":        nonNil(job.Results.Errors),
			"job_id":        job.ID,
		})
	})
	return cmd
}

func newArchiveCmd(o *rootOptions) *cobra.Command {
	var (
		days      int
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move completed sessions into the archive",
		Long: `Move completed sessions that ended more than --days ago into
sessions/archive/, or archive one completed session with --session.`,
		Args: exactArgs(0),
	}
	cmd.Flags().IntVar(&days, "days", 0, "age in days (default: the archive_after_days setting)")
	cmd.Flags().StringVar(&sessionID, "session", "", "archive this session now")
	cmd.MarkFlagsMutuallyExclusive("days", "session")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		if sessionID != "" {
			archived, err := a.Reconciler.ArchiveSession(ctx, sessionID)
			if err != nil {
				return err
			}
			return p.Print(map[string]any{"session_id": sessionID, "archived": archived})
		}
		if cmd.Flags().Changed("days") {
			if err := validate.PositiveInt(days, "days", validate.MaxArchiveDays); err != nil {
				return err
			}
		}
		job, err := a.Reconciler.Start(ctx, reconcile.KindArchive, reconcile.JobParams{ArchiveAfterDays: days})
		if err != nil {
			return err
		}
		return p.Print(map[string]any{
			"archived":    len(job.Results.Archived),
			"session_ids": job.Results.Archived,
			"errors":      nonNil(job.Results.Errors),
			"job_id":      job.ID,
		})
	})
	return cmd
}

func newCleanupLocksCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup-locks",
		Short: "Remove lock files with no live session and no holder",
		Args:  exactArgs(0),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		job, err := a.Reconciler.Start(ctx, reconcile.KindLocks, reconcile.JobParams{})
		if err != nil {
			return err
		}
		return p.Print(map[string]any{
			"removed": job.Results.RemovedLocks,
			"errors":  nonNil(job.Results.Errors),
			"job_id":  job.ID,
		})
	})
	return cmd
}

func newLocksCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "List session lock files with their holder and orphan status",
		Args:  exactArgs(0),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		locks, err := a.Reconciler.Locks(ctx)
		if err != nil {
			return err
		}
		if locks == nil {
			locks = []reconcile.LockInfo{}
		}
		return p.Print(locks)
	})
	return cmd
}

func newRebuildIndexCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild the session index from the live session files",
		Args:  exactArgs(0),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		entries, err := a.Store.Index().Rebuild(ctx)
		if err != nil {
			return err
		}
		return p.Print(map[string]int{"entries": len(entries)})
	})
	return cmd
}

func newReconcileCmd(o *rootOptions) *cobra.Command {
	var (
		params     reconcile.JobParams
		background bool
		runJob     string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run stale cleanup, archiving and lock cleanup as one job",
		Long: `Run every reconciliation pass as one recorded job. With --background the
job is written as pending and a detached worklog process runs it; follow
it with 'worklog jobs show <id>'.`,
		Args: exactArgs(0),
	}
	flags := cmd.Flags()
	flags.IntVar(&params.StaleThresholdHours, "hours", 0, "stale threshold in hours (default: setting)")
	flags.IntVar(&params.ArchiveAfterDays, "days", 0, "archive age in days (default: setting)")
	flags.BoolVar(&background, "background", false, "run in a detached process")
	flags.StringVar(&runJob, "run-job", "", "run a pending job (used by --background)")
	_ = flags.MarkHidden("run-job")
	cmd.MarkFlagsMutuallyExclusive("background", "run-job")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		switch {
		case runJob != "":
			job, err := a.Reconciler.RunJob(ctx, runJob)
			if err != nil {
				return err
			}
			return p.Print(job)
		case background:
			job, err := a.Reconciler.Enqueue(reconcile.KindAll, params)
			if err != nil {
				return err
			}
			if err := reconcile.SpawnBackground(a.Layout.Root, job.ID); err != nil {
				return err
			}
			return p.Print(job)
		default:
			job, err := a.Reconciler.Start(ctx, reconcile.KindAll, params)
			if err != nil {
				return err
			}
			return p.Print(job)
		}
	})
	return cmd
}

func newJobsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect recorded reconciliation jobs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  exactArgs(0),
	}
	list.RunE = o.withApp(func(_ context.Context, a *app.App, p *printer, _ []string) error {
		jobs, err := reconcile.ListJobs(a.Layout)
		if err != nil {
			return err
		}
		if jobs == nil {
			jobs = []*reconcile.Job{}
		}
		return p.Print(jobs)
	})

	show := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  exactArgs(1, "<job-id>"),
	}
	show.RunE = o.withApp(func(_ context.Context, a *app.App, p *printer, args []string) error {
		job, err := reconcile.LoadJob(a.Layout, args[0])
		if err != nil {
			return err
		}
		return p.Print(job)
	})

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished jobs older than --older-than",
		Args:  exactArgs(0),
	}
	prune.Flags().DurationVar(&olderThan, "older-than", defaultJobRetention, "minimum age of pruned jobs")
	prune.RunE = o.withApp(func(_ context.Context, a *app.App, p *printer, _ []string) error {
		if olderThan < 0 {
			return errors.NewValidationError("--older-than must not be negative").WithField("older-than")
		}
		removed, err := reconcile.PruneJobs(a.Layout, olderThan, time.Now())
		if err != nil {
			return err
		}
		return p.Print(map[string]int{"removed": removed})
	})

	cmd.AddCommand(list, show, prune)
	return cmd
}
