package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/worklog/internal/app"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
	"github.com/Iron-Ham/worklog/internal/validate"
)

const defaultListLimit = 20

func registerQueryCmds(root *cobra.Command, o *rootOptions) {
	root.AddCommand(
		newActiveSessionsCmd(o),
		newParkedSessionsCmd(o),
		newStaleSessionsCmd(o),
		newListSessionsCmd(o),
	)
}

func newActiveSessionsCmd(o *rootOptions) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "active-sessions",
		Short: "List active sessions",
		Args:  exactArgs(0),
	}
	cmd.Flags().StringVar(&project, "project", "", "only this project")
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		sessions, err := a.Store.Active(ctx, project)
		if err != nil {
			return err
		}
		return p.Print(nonNilSessions(sessions))
	})
	return cmd
}

func newParkedSessionsCmd(o *rootOptions) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "parked-sessions",
		Short: "List parked sessions",
		Args:  exactArgs(0),
	}
	cmd.Flags().StringVar(&project, "project", "", "only this project")
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		sessions, err := a.Store.Parked(ctx, project)
		if err != nil {
			return err
		}
		return p.Print(nonNilSessions(sessions))
	})
	return cmd
}

func newStaleSessionsCmd(o *rootOptions) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "stale-sessions",
		Short: "List active sessions whose last heartbeat is older than the stale threshold",
		Args:  exactArgs(0),
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "threshold in hours (default: the stale_threshold_hours setting)")
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		threshold, err := staleThreshold(ctx, a, cmd.Flags().Changed("hours"), hours)
		if err != nil {
			return err
		}
		sessions, err := a.Store.Stale(ctx, threshold)
		if err != nil {
			return err
		}
		return p.Print(nonNilSessions(sessions))
	})
	return cmd
}

// staleThreshold is the --hours flag when given, else the stored setting.
func staleThreshold(ctx context.Context, a *app.App, override bool, hours int) (time.Duration, error) {
	if override {
		if err := validate.PositiveInt(hours, "hours", 8760); err != nil {
			return 0, err
		}
		return time.Duration(hours) * time.Hour, nil
	}
	settings, err := a.Registry.Settings(ctx)
	if err != nil {
		return 0, err
	}
	return settings.StaleThreshold(), nil
}

func newListSessionsCmd(o *rootOptions) *cobra.Command {
	var (
		project, status   string
		limit             int
		archived, summary bool
	)
	cmd := &cobra.Command{
		Use:   "list-sessions",
		Short: "List sessions, newest first",
		Long: `List sessions, newest first. --summary answers from the session index
without reading each record.`,
		Args: exactArgs(0),
	}
	flags := cmd.Flags()
	flags.StringVar(&project, "project", "", "only this project")
	flags.StringVar(&status, "status", "", "only this status: active, parked or completed")
	flags.IntVar(&limit, "limit", defaultListLimit, "maximum number of sessions")
	flags.BoolVar(&archived, "archived", false, "include archived sessions")
	flags.BoolVar(&summary, "summary", false, "print index summaries instead of full records")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		if err := validate.PositiveInt(limit, "limit", 0); err != nil {
			return err
		}
		filter := session.Filter{ProjectSlug: project, IncludeArchived: archived}
		if status != "" {
			st, err := validate.SessionStatus(status)
			if err != nil {
				return err
			}
			filter.Status = st
		}

		if summary {
			sums, err := a.Store.ListSummaries(ctx, filter)
			if err != nil {
				return err
			}
			if len(sums) > limit {
				sums = sums[:limit]
			}
			if sums == nil {
				sums = []model.Summary{}
			}
			return p.Print(sums)
		}

		sessions, err := a.Store.List(ctx, filter)
		if err != nil {
			return err
		}
		if len(sessions) > limit {
			sessions = sessions[:limit]
		}
		return p.Print(nonNilSessions(sessions))
	})
	return cmd
}

// nonNilSessions keeps an empty result printing as [] rather than null.
func nonNilSessions(s []*model.Session) []*model.Session {
	if s == nil {
		return []*model.Session{}
	}
	return s
}
