package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/worklog/internal/app"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/gitlog"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
)

func registerSessionCmds(root *cobra.Command, o *rootOptions) {
	root.AddCommand(
		newCreateSessionCmd(o),
		newGetSessionCmd(o),
		newHeartbeatCmd(o),
		newHeartbeatProjectCmd(o),
		newCompleteSessionCmd(o),
		newParkSessionCmd(o),
		newResumeSessionCmd(o),
		newUpdateSessionCmd(o),
		newAddEventCmd(o),
		newAddCommitCmd(o),
		newAddDecisionCmd(o),
		newCaptureCommitsCmd(o),
		newRequestActionCmd(o),
		newClearActionCmd(o),
	)
}

func newCreateSessionCmd(o *rootOptions) *cobra.Command {
	var params session.CreateParams
	cmd := &cobra.Command{
		Use:   "create-session",
		Short: "Start a new active session",
		Args:  exactArgs(0),
	}
	cmd.Flags().StringVar(&params.ProjectSlug, "project", "", "project slug")
	cmd.Flags().StringVar(&params.Intent, "intent", "", "what the session sets out to do")
	cmd.Flags().StringVar(&params.RoadmapRef, "roadmap-ref", "", "roadmap item this session works on")
	cmd.Flags().StringVar(&params.GitBranch, "git-branch", model.DefaultGitBranch, "git branch")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		sess, err := a.Store.Create(ctx, params)
		if err != nil {
			return err
		}
		return p.Print(sess)
	})
	return cmd
}

func newGetSessionCmd(o *rootOptions) *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "get-session <session-id>",
		Short: "Show a session record",
		Args:  exactArgs(1, "<session-id>"),
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "read from the archive")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		get := a.Store.Get
		if archived {
			get = a.Store.GetArchived
		}
		sess, err := get(ctx, args[0])
		if err != nil {
			return err
		}
		return p.Print(sess)
	})
	return cmd
}

func newHeartbeatCmd(o *rootOptions) *cobra.Command {
	return sessionCmd(o, "heartbeat <session-id>", "Record that an active session is still alive",
		func(ctx context.Context, a *app.App, id string) (*model.Session, error) {
			return a.Store.Heartbeat(ctx, id)
		})
}

func newHeartbeatProjectCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heartbeat-project <slug>",
		Short: "Heartbeat every active session of a project",
		Args:  exactArgs(1, "<slug>"),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		updated, err := a.Store.HeartbeatProject(ctx, args[0])
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(updated))
		for _, s := range updated {
			ids = append(ids, s.SessionID)
		}
		return p.Print(map[string]any{"updated": len(ids), "session_ids": ids})
	})
	return cmd
}

func newCompleteSessionCmd(o *rootOptions) *cobra.Command {
	var (
		params      session.CompleteParams
		commitsJSON string
	)
	cmd := &cobra.Command{
		Use:   "complete-session <session-id>",
		Short: "Mark a session completed",
		Long: `Mark an active or parked session completed. List flags replace the
stored values when given. --commits takes a JSON array of
{"sha": ..., "message": ...} objects.`,
		Args: exactArgs(1, "<session-id>"),
	}
	flags := cmd.Flags()
	flags.StringVar(&params.Outcome, "outcome", "", "what the session achieved")
	flags.StringArrayVar(&params.NextSteps, "next-steps", nil, "next step (repeatable)")
	flags.StringVar(&commitsJSON, "commits", "", "commits as a JSON array")
	flags.StringArrayVar(&params.FilesChanged, "files-changed", nil, "changed file (repeatable)")
	flags.StringArrayVar(&params.Decisions, "decisions", nil, "decision made (repeatable)")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		if flags.Changed("commits") {
			commits, err := parseCommits(commitsJSON)
			if err != nil {
				return err
			}
			params.Commits = commits
		}
		if flags.Changed("next-steps") {
			params.NextSteps = nonNil(params.NextSteps)
		}
		if flags.Changed("files-changed") {
			params.FilesChanged = nonNil(params.FilesChanged)
		}
		if flags.Changed("decisions") {
			params.Decisions = nonNil(params.Decisions)
		}
		sess, err := a.Store.Complete(ctx, args[0], params)
		if err != nil {
			return err
		}
		return p.Print(sess)
	})
	return cmd
}

func parseCommits(s string) ([]model.Commit, error) {
	commits := []model.Commit{}
	if err := json.Unmarshal([]byte(s), &commits); err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid --commits JSON: %v", err)).WithField("commits")
	}
	return commits, nil
}

func newParkSessionCmd(o *rootOptions) *cobra.Command {
	var (
		reason    string
		nextSteps []string
	)
	cmd := &cobra.Command{
		Use:   "park-session <session-id>",
		Short: "Pause an active session",
		Args:  exactArgs(1, "<session-id>"),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the session is paused")
	cmd.Flags().StringArrayVar(&nextSteps, "next-steps", nil, "next step (repeatable)")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		sess, err := a.Store.Park(ctx, args[0], reason, nextSteps)
		if err != nil {
			return err
		}
		return p.Print(sess)
	})
	return cmd
}

func newResumeSessionCmd(o *rootOptions) *cobra.Command {
	var intent string
	cmd := &cobra.Command{
		Use:   "resume-session <session-id>",
		Short: "Start a new session continuing a parked one",
		Args:  exactArgs(1, "<session-id>"),
	}
	cmd.Flags().StringVar(&intent, "intent", "", "intent for the new session (default: the parked session's)")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		sess, err := a.Store.Resume(ctx, args[0], intent)
		if err != nil {
			return err
		}
		return p.Print(sess)
	})
	return cmd
}

func newUpdateSessionCmd(o *rootOptions) *cobra.Command {
	values := make(map[string]*string, len(session.UpdatableFields))
	cmd := &cobra.Command{
		Use:   "update-session <session-id>",
		Short: "Change whitelisted fields of a session",
		Args:  exactArgs(1, "<session-id>"),
	}
	for _, field := range session.UpdatableFields {
		values[field] = cmd.Flags().String(flagName(field), "", "new "+field)
	}

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		changed := map[string]any{}
		for field, v := range values {
			if cmd.Flags().Changed(flagName(field)) {
				changed[field] = *v
			}
		}
		sess, err := a.Store.Update(ctx, args[0], session.FieldsFromMap(changed))
		if err != nil {
			return err
		}
		return p.Print(sess)
	})
	return cmd
}

// flagName turns a record field such as current_activity into its flag
// spelling, current-activity.
func flagName(field string) string {
	return strings.ReplaceAll(field, "_", "-")
}

func newAddEventCmd(o *rootOptions) *cobra.Command {
	var message string
	cmd := sessionCmd(o, "add-event <session-id>", "Append an event to a session",
		func(ctx context.Context, a *app.App, id string) (*model.Session, error) {
			return a.Store.AddEvent(ctx, id, message)
		})
	cmd.Flags().StringVar(&message, "message", "", "event message")
	return cmd
}

func newAddCommitCmd(o *rootOptions) *cobra.Command {
	var sha, message string
	cmd := sessionCmd(o, "add-commit <session-id>", "Record a commit on a session",
		func(ctx context.Context, a *app.App, id string) (*model.Session, error) {
			return a.Store.AddCommit(ctx, id, sha, message)
		})
	cmd.Flags().StringVar(&sha, "sha", "", "commit SHA (4 to 40 hex characters)")
	cmd.Flags().StringVar(&message, "message", "", "commit subject")
	return cmd
}

func newAddDecisionCmd(o *rootOptions) *cobra.Command {
	var decision string
	cmd := sessionCmd(o, "add-decision <session-id>", "Record a decision on a session",
		func(ctx context.Context, a *app.App, id string) (*model.Session, error) {
			return a.Store.AddDecision(ctx, id, decision)
		})
	cmd.Flags().StringVar(&decision, "decision", "", "decision text")
	return cmd
}

func newCaptureCommitsCmd(o *rootOptions) *cobra.Command {
	var repoPath string
	cmd := &cobra.Command{
		Use:   "capture-commits <session-id>",
		Short: "Record every commit made in a repository since the session started",
		Args:  exactArgs(1, "<session-id>"),
	}
	cmd.Flags().StringVar(&repoPath, "repo-path", ".", "git repository")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		res, err := gitlog.Capture(ctx, a.Store, a.Git, args[0], repoPath)
		if err != nil {
			return err
		}
		return p.Print(res)
	})
	return cmd
}

func newRequestActionCmd(o *rootOptions) *cobra.Command {
	var reason string
	cmd := sessionCmd(o, "request-action <session-id>", "Flag that a session is waiting on the user",
		func(ctx context.Context, a *app.App, id string) (*model.Session, error) {
			return a.Store.RequestAction(ctx, id, reason)
		})
	cmd.Flags().StringVar(&reason, "reason", "", "what the session is waiting for")
	return cmd
}

func newClearActionCmd(o *rootOptions) *cobra.Command {
	return sessionCmd(o, "clear-action <session-id>", "Clear a session's awaiting-action flag",
		func(ctx context.Context, a *app.App, id string) (*model.Session, error) {
			return a.Store.ClearAction(ctx, id)
		})
}

// sessionCmd builds a command that applies one store operation to the
// session named by its only argument and prints the result.
func sessionCmd(o *rootOptions, use, short string, op func(ctx context.Context, a *app.App, id string) (*model.Session, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  exactArgs(1, "<session-id>"),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		sess, err := op(ctx, a, args[0])
		if err != nil {
			return err
		}
		return p.Print(sess)
	})
	return cmd
}
