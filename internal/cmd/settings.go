package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/worklog/internal/app"
	"github.com/Iron-Ham/worklog/internal/registry"
)

func registerSettingsCmd(root *cobra.Command, o *rootOptions) {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the settings shared by every worklog client",
		Long: `Settings live in config.json in the data directory, next to the project
registrations. They are separate from the runtime config edited with
'worklog config'.`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  exactArgs(0),
	}
	show.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, _ []string) error {
		settings, err := a.Registry.Settings(ctx)
		if err != nil {
			return err
		}
		return p.Print(settings)
	})

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long:  "Change one setting. Valid keys: " + strings.Join(registry.SettingKeys(), ", "),
		Args:  exactArgs(2, "<key>", "<value>"),
	}
	set.RunE = o.withApp(func(ctx context.Context, a *app.App, p *printer, args []string) error {
		settings, err := a.Registry.SetSetting(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return p.Print(settings)
	})

	cmd.AddCommand(show, set)
	root.AddCommand(cmd)
}
