// Package cmd implements the worklog command tree.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/worklog/internal/app"
	"github.com/Iron-Ham/worklog/internal/config"
	"github.com/Iron-Ham/worklog/internal/errors"
)

// rootOptions holds the persistent flags and the extra app options tests
// inject.
type rootOptions struct {
	cfgFile string
	appOpts []app.Option
}

// NewRootCmd builds a fresh worklog command tree.
func NewRootCmd(appOpts ...app.Option) *cobra.Command {
	opts := &rootOptions{appOpts: appOpts}

	root := &cobra.Command{
		Use:   "worklog",
		Short: "Track Claude Code work sessions across projects",
		Long: `Worklog records the life of a coding session (intent, heartbeats, events,
commits, tasks and decisions) as plain JSON files under a shared data
directory, and derives per-project state and a dashboard overview from them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, opts.cfgFile)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.NewValidationError(err.Error())
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/worklog/config.yaml)")
	flags.String("data-dir", "", "data directory (default is ~/.claude/dashboard)")
	flags.StringP("output", "o", "", "output format: json or yaml")

	registerProjectCmds(root, opts)
	registerSessionCmds(root, opts)
	registerTaskCmds(root, opts)
	registerQueryCmds(root, opts)
	registerReconcileCmds(root, opts)
	registerViewCmds(root, opts)
	registerSettingsCmd(root, opts)
	registerConfigCmd(root)
	registerLogsCmd(root, opts)

	return root
}

// Execute runs the command line and returns the process exit code. Errors
// are written to stderr as {"error": ..., "code": ...}.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	writeError(root.ErrOrStderr(), err)
	return errors.ExitCode(err)
}

func initConfig(cmd *cobra.Command, cfgFile string) error {
	config.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("WORKLOG")
	// WORKLOG_LOGGING_LEVEL for logging.level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	flags := cmd.Root().PersistentFlags()
	if err := viper.BindPFlag("data_dir", flags.Lookup("data-dir")); err != nil {
		return err
	}
	if err := viper.BindPFlag("output.format", flags.Lookup("output")); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config that cannot be read is an error; a missing
		// default file is not.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return errors.NewValidationError(fmt.Sprintf("failed to read config: %v", err)).WithField("config")
		}
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid configuration: %v", err))
	}
	return cfg, nil
}

// runFunc is the body of a command that needs the wired app.
type runFunc func(ctx context.Context, a *app.App, p *printer, args []string) error

// withApp loads the runtime config, builds the app and passes it to fn. The
// app is closed when fn returns.
func (o *rootOptions) withApp(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.New(cfg, o.appOpts...)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		return fn(cmd.Context(), a, newPrinter(cmd.OutOrStdout(), cfg.Output.Format), args)
	}
}

func writeError(w io.Writer, err error) {
	body := struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}{Error: err.Error(), Code: errors.Code(err)}
	data, mErr := json.Marshal(body)
	if mErr != nil {
		_, _ = fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(w, string(data))
}

// exactArgs is cobra.ExactArgs reported as a validation error.
func exactArgs(n int, names ...string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) == n {
			return nil
		}
		want := fmt.Sprintf("%d argument(s)", n)
		if len(names) > 0 {
			want = strings.Join(names, " ")
		}
		return errors.NewValidationError(fmt.Sprintf("expected %s, got %d argument(s)", want, len(args)))
	}
}
