package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/worklog/internal/app"
	"github.com/Iron-Ham/worklog/internal/projectstate"
)

func registerProjectCmds(root *cobra.Command, o *rootOptions) {
	root.AddCommand(
		newRegisterProjectCmd(o),
		newListProjectsCmd(o),
		newProjectStateCmd(o),
		newUpdateProjectStateCmd(o),
	)
}

func newRegisterProjectCmd(o *rootOptions) *cobra.Command {
	var name, path string
	cmd := &cobra.Command{
		Use:   "register-project",
		Short: "Register a project directory",
		Long: `Register a project by name and path. The slug is derived from the last
path element. Registering the same path again is a no-op.`,
		Args: exactArgs(0),
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&path, "path", "", "project directory")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		slug, err := a.Registry.RegisterProject(ctx, name, path)
		if err != nil {
			return err
		}
		return p.Print(map[string]string{"slug": slug, "status": "registered"})
	})
	return cmd
}

func newListProjectsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-projects",
		Short: "List registered projects",
		Args:  exactArgs(0),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		projects, err := a.Registry.Projects(ctx)
		if err != nil {
			return err
		}
		return p.Print(projects)
	})
	return cmd
}

func newProjectStateCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project-state <slug>",
		Short: "Show a project's derived state",
		Args:  exactArgs(1, "<slug>"),
	}
	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		ps, err := a.States.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return p.Print(ps)
	})
	return cmd
}

func newUpdateProjectStateCmd(o *rootOptions) *cobra.Command {
	var (
		phase                         string
		completed, inProgress, nextUp []string
	)
	cmd := &cobra.Command{
		Use:   "update-project-state <slug>",
		Short: "Set the externally managed fields of a project's state",
		Long: `Set the current phase and roadmap lists of a project. Only the flags
given are changed. --next-up keeps at most three items.`,
		Args: exactArgs(1, "<slug>"),
	}
	cmd.Flags().StringVar(&phase, "current-phase", "", "current phase")
	cmd.Flags().StringArrayVar(&completed, "completed", nil, "completed roadmap item (repeatable)")
	cmd.Flags().StringArrayVar(&inProgress, "in-progress", nil, "in-progress roadmap item (repeatable)")
	cmd.Flags().StringArrayVar(&nextUp, "next-up", nil, "next roadmap item (repeatable)")

	cmd.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		var params projectstate.UpdateParams
		flags := cmd.Flags()
		if flags.Changed("current-phase") {
			params.Phase = &phase
		}
		if flags.Changed("completed") {
			params.Completed = nonNil(completed)
		}
		if flags.Changed("in-progress") {
			params.InProgress = nonNil(inProgress)
		}
		if flags.Changed("next-up") {
			params.NextUp = nonNil(nextUp)
		}
		ps, err := a.States.Update(ctx, args[0], params)
		if err != nil {
			return err
		}
		return p.Print(ps)
	})
	return cmd
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
