package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/worklog/internal/app"
	"github.com/Iron-Ham/worklog/internal/codec"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/export"
	"github.com/Iron-Ham/worklog/internal/fileio"
	"github.com/Iron-Ham/worklog/internal/session"
	"github.com/Iron-Ham/worklog/internal/tui"
	"github.com/Iron-Ham/worklog/internal/validate"
)

func registerViewCmds(root *cobra.Command, o *rootOptions) {
	root.AddCommand(
		newOverviewCmd(o),
		newExportCmd(o),
		newNotifyCmd(o),
		newWatchCmd(o),
		newDashboardCmd(o),
		newServeCmd(o),
	)
}

func newOverviewCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Show every registered project with its live, parked and recent sessions",
		Args:  exactArgs(0),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		ov, err := a.Overview.Build(ctx)
		if err != nil {
			return err
		}
		return p.Print(ov)
	})
	return cmd
}

type exportOptions struct {
	format string
	out    string
}

func (e *exportOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&e.format, "format", "f", "json", "json or markdown")
	cmd.Flags().StringVar(&e.out, "out", "", "write to this file instead of stdout")
}

// write renders either the markdown report or the JSON document.
func (e *exportOptions) write(cmd *cobra.Command, f export.Format, markdown func() string, doc any) error {
	var data []byte
	if f == export.FormatMarkdown {
		data = []byte(markdown())
	} else {
		var err error
		if data, err = codec.Marshal(doc); err != nil {
			return fmt.Errorf("failed to render export: %w", err)
		}
	}
	if e.out == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := fileio.WriteAtomic(e.out, data, 0644); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", e.out)
	return err
}

func newExportCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a session or a project as JSON or Markdown",
	}

	var sessOpts exportOptions
	sess := &cobra.Command{
		Use:   "session <session-id>",
		Short: "Export one session, live or archived",
		Args:  exactArgs(1, "<session-id>"),
	}
	sessOpts.bind(sess)
	sess.RunE = o.withApp(func(ctx context.Context, a *app.App, _ *printer, args []string) error {
		f, err := export.ParseFormat(sessOpts.format)
		if err != nil {
			return err
		}
		s, err := a.Store.Get(ctx, args[0])
		if errors.Is(err, errors.ErrNotFound) {
			s, err = a.Store.GetArchived(ctx, args[0])
		}
		if err != nil {
			return err
		}
		return sessOpts.write(sess, f,
			func() string { return export.SessionMarkdown(s, 1) },
			export.Session(s))
	})

	var (
		projOpts        exportOptions
		includeArchived bool
		limit           int
	)
	proj := &cobra.Command{
		Use:   "project <slug>",
		Short: "Export a project's sessions, newest first",
		Args:  exactArgs(1, "<slug>"),
	}
	projOpts.bind(proj)
	proj.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived sessions")
	proj.Flags().IntVar(&limit, "limit", 100, "maximum number of sessions")
	proj.RunE = o.withApp(func(ctx context.Context, a *app.App, _ *printer, args []string) error {
		slug := args[0]
		f, err := export.ParseFormat(projOpts.format)
		if err != nil {
			return err
		}
		if err := validate.ProjectSlug(slug); err != nil {
			return err
		}
		if err := validate.PositiveInt(limit, "limit", 500); err != nil {
			return err
		}
		sessions, err := a.Store.List(ctx, session.Filter{ProjectSlug: slug, IncludeArchived: includeArchived})
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return errors.NewNotFoundError("project", slug)
		}
		if len(sessions) > limit {
			sessions = sessions[:limit]
		}
		name := slug
		if reg, err := a.Registry.Project(ctx, slug); err == nil && reg.Name != "" {
			name = reg.Name
		}
		return projOpts.write(proj, f,
			func() string { return export.ProjectMarkdown(name, sessions) },
			export.Project(name, sessions, time.Now()))
	})

	cmd.AddCommand(sess, proj)
	return cmd
}

func newNotifyCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send notifications for stale and long-parked sessions",
		Long: `Check for stale sessions and sessions parked longer than
parked_notify_hours and notify about each at most once per
notify_cooldown_hours. Does nothing unless notifications_enabled is set.`,
		Args: exactArgs(0),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		res, err := a.Notifier.Check(ctx)
		if err != nil {
			return err
		}
		return p.Print(res)
	})
	return cmd
}

func newWatchCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a JSON line for every change to sessions, projects or config",
		Args:  exactArgs(0),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, _ *printer, _ []string) error {
		w, err := a.Watcher()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for change := range w.Start(ctx) {
			if err := enc.Encode(change); err != nil {
				return err
			}
		}
		return nil
	})
	return cmd
}

func newDashboardCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Open the live session dashboard",
		Args:  exactArgs(0),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, _ *printer, _ []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.NewValidationError("dashboard needs an interactive terminal; use 'worklog overview' instead")
		}
		w, err := a.Watcher()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		m := tui.NewModel(ctx, a.Overview,
			tui.WithChanges(w.Start(ctx)),
			tui.WithInterval(a.Config.TUI.RefreshInterval()),
		)
		return tui.Run(ctx, m)
	})
	return cmd
}

func newServeCmd(o *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		Long: `Serve the overview, session, export and project state endpoints plus
/metrics. The port defaults to server.port, or the dashboard_port setting
when that is 0.`,
		Args: exactArgs(0),
	}
	cmd.Flags().StringVar(&host, "host", "", "listen address (default: server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, _ *printer, _ []string) error {
		if host == "" {
			host = a.Config.Server.Host
		}
		if !cmd.Flags().Changed("port") {
			var err error
			if port, err = a.ServerPort(ctx); err != nil {
				return err
			}
		}
		if err := validate.Port(port); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Serving on http://%s:%d\n", host, port)
		return a.Server().Run(ctx, host, port)
	})
	return cmd
}
