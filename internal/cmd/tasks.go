package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/worklog/internal/app"
	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/model"
	"github.com/Iron-Ham/worklog/internal/session"
)

func registerTaskCmds(root *cobra.Command, o *rootOptions) {
	root.AddCommand(
		newAddTaskCmd(o),
		newAddTasksCmd(o),
		newUpdateTaskCmd(o),
	)
}

func newAddTaskCmd(o *rootOptions) *cobra.Command {
	var subject string
	cmd := sessionCmd(o, "add-task <session-id>", "Add one task to a session",
		func(ctx context.Context, a *app.App, id string) (*model.Session, error) {
			return a.Store.AddTask(ctx, id, subject)
		})
	cmd.Flags().StringVar(&subject, "subject", "", "task subject")
	return cmd
}

func newAddTasksCmd(o *rootOptions) *cobra.Command {
	var (
		subjects []string
		stdin    bool
	)
	cmd := &cobra.Command{
		Use:   "add-tasks <session-id>",
		Short: "Add several tasks to a session",
		Long: `Add tasks to a session. Subjects already present on the session, compared
case-insensitively, are skipped. With --stdin each non-blank input line
is a subject.`,
		Args: exactArgs(1, "<session-id>"),
	}
	cmd.Flags().StringArrayVar(&subjects, "subjects", nil, "task subject (repeatable)")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read subjects from standard input, one per line")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		all := append([]string{}, subjects...)
		if stdin {
			lines, err := readSubjects(cmd.InOrStdin())
			if err != nil {
				return err
			}
			all = append(all, lines...)
		}
		if len(all) == 0 {
			return errors.NewValidationError("no task subjects given").WithField("subjects")
		}
		sess, err := a.Store.AddTasks(ctx, args[0], all)
		if err != nil {
			return err
		}
		return p.Print(sess)
	})
	return cmd
}

func readSubjects(r io.Reader) ([]string, error) {
	if f, ok := r.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil, errors.NewValidationError("--stdin needs piped input").WithField("stdin")
	}
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subjects: %w", err)
	}
	return lines, nil
}

func newUpdateTaskCmd(o *rootOptions) *cobra.Command {
	var (
		update  session.TaskUpdate
		subject string
	)
	cmd := &cobra.Command{
		Use:   "update-task <session-id>",
		Short: "Change a task's status or subject",
		Args:  exactArgs(1, "<session-id>"),
	}
	cmd.Flags().StringVar(&update.TaskID, "task-id", "", "task ID")
	cmd.Flags().StringVar(&update.Status, "status", "", "pending, in_progress, completed or skipped")
	cmd.Flags().StringVar(&subject, "subject", "", "new subject")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		if cmd.Flags().Changed("subject") {
			update.Subject = &subject
		}
		sess, err := a.Store.UpdateTask(ctx, args[0], update)
		if err != nil {
			return err
		}
		return p.Print(sess)
	})
	return cmd
}
