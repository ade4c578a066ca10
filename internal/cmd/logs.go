package cmd

import (
	"context"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/worklog/internal/app"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/logging"
)

type logsOptions struct {
	filter logging.LogFilter
	since  time.Duration
	tail   int
	format string
}

func registerLogsCmd(root *cobra.Command, o *rootOptions) {
	var opts logsOptions
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View worklog's own debug logs",
		Long: `Read worklog.log and its rotated backups from <data_dir>/logs and print
the entries that match every given filter, oldest first.

Examples:
  worklog logs --level warn
  worklog logs --session sess_20260210T1430_a1b2 --since 1h
  worklog logs --grep "skipping" --format csv`,
		Args: exactArgs(0),
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.filter.Level, "level", "l", "", "minimum level: debug, info, warn or error")
	flags.DurationVarP(&opts.since, "since", "s", 0, "only entries newer than this (e.g. 30m, 2h)")
	flags.StringVar(&opts.filter.SessionID, "session", "", "only entries for this session")
	flags.StringVar(&opts.filter.ProjectSlug, "project", "", "only entries for this project")
	flags.StringVar(&opts.filter.Component, "component", "", "only entries from this component")
	flags.StringVarP(&opts.filter.MessageContains, "grep", "g", "", "only entries whose message contains this text")
	flags.IntVarP(&opts.tail, "tail", "n", 0, "only the last N entries (0 for all)")
	flags.StringVar(&opts.format, "format", "text", "text, json or csv")

	cmd.RunE = o.withApp(func(_ context.Context, a *app.App, _ *printer, _ []string) error {
		entries, err := readLogs(a, opts, time.Now())
		if err != nil {
			return err
		}
		if err := logging.WriteEntries(cmd.OutOrStdout(), entries, opts.format); err != nil {
			return errors.NewValidationError(err.Error()).WithField("format")
		}
		return nil
	})
	root.AddCommand(cmd)
}

func readLogs(a *app.App, opts logsOptions, now time.Time) ([]logging.LogEntry, error) {
	if opts.tail < 0 {
		return nil, errors.NewValidationError("--tail must not be negative").WithField("tail")
	}
	if opts.since < 0 {
		return nil, errors.NewValidationError("--since must not be negative").WithField("since")
	}

	filter := opts.filter
	if filter.Level != "" {
		if !slices.Contains(logging.ValidLevels(), strings.ToUpper(filter.Level)) {
			return nil, errors.NewValidationError("unknown log level: " + filter.Level).WithField("level")
		}
		filter.Level = logging.ParseLevel(filter.Level)
	}
	if opts.since > 0 {
		filter.StartTime = now.Add(-opts.since)
	}

	entries, err := logging.AggregateLogs(a.Layout.LogsDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.NewNotFoundError("log file", a.Layout.LogsDir())
	}
	if err != nil {
		return nil, err
	}
	entries = logging.FilterLogs(entries, filter)
	if opts.tail > 0 && len(entries) > opts.tail {
		entries = entries[len(entries)-opts.tail:]
	}
	if entries == nil {
		entries = []logging.LogEntry{}
	}
	return entries, nil
}
