package cmd

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/worklog/internal/config"
	"github.com/Iron-Ham/worklog/internal/errors"
)

const configHeader = `# Worklog runtime configuration.
# Environment variables override this file: WORKLOG_DATA_DIR,
# WORKLOG_LOGGING_LEVEL, WORKLOG_SERVER_PORT and so on.
# Shared settings such as stale_threshold_hours live in the data
# directory; change them with 'worklog settings set'.

`

func registerConfigCmd(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the runtime configuration",
		Long: `Show and edit the runtime configuration file.

Configuration is read from (in order of precedence):
  1. Command-line flags
  2. Environment variables (WORKLOG_ prefix)
  3. Config file ($XDG_CONFIG_HOME/worklog/config.yaml)
  4. Default values`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  exactArgs(0),
		RunE:  runConfigShow,
	}
	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.ConfigFile())
			return err
		},
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default values",
		Args:  exactArgs(0),
		RunE:  runConfigInit,
	}
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one configuration value",
		Long:  "Set one configuration value. Valid keys: " + strings.Join(config.Keys(), ", "),
		Args:  exactArgs(2, "<key>", "<value>"),
		RunE:  runConfigSet,
	}

	cmd.AddCommand(show, path, initCmd, set)
	root.AddCommand(cmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	file := viper.ConfigFileUsed()
	if _, statErr := os.Stat(file); file == "" || statErr != nil {
		file = ""
	}
	return newPrinter(cmd.OutOrStdout(), cfg.Output.Format).Print(map[string]any{
		"config_file": file,
		"config":      effectiveSettings(),
	})
}

// effectiveSettings nests the value of every known key the way it appears
// in the YAML file.
func effectiveSettings() map[string]any {
	out := map[string]any{}
	for _, key := range config.Keys() {
		section, name, nested := strings.Cut(key, ".")
		if !nested {
			out[key] = viper.Get(key)
			continue
		}
		m, ok := out[section].(map[string]any)
		if !ok {
			m = map[string]any{}
			out[section] = m
		}
		m[name] = viper.Get(key)
	}
	return out
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	file := config.ConfigFile()
	if _, err := os.Stat(file); err == nil {
		return errors.NewConflictError("config file", file).
			WithCause(fmt.Errorf("use 'worklog config set' to modify values"))
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	body, err := yaml.Marshal(defaultSettings())
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	if err := os.WriteFile(file, append([]byte(configHeader), body...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", file)
	return err
}

// defaultSettings is effectiveSettings over the built-in defaults only.
func defaultSettings() map[string]any {
	v := viper.New()
	for k, val := range config.DefaultValues() {
		v.Set(k, val)
	}
	return v.AllSettings()
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if !slices.Contains(config.Keys(), key) {
		return errors.NewValidationError(fmt.Sprintf("unknown configuration key: %s (valid keys: %s)",
			key, strings.Join(config.Keys(), ", "))).WithField("key")
	}

	typed, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}
	viper.Set(key, typed)
	if _, err := loadConfig(); err != nil {
		return err
	}

	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	file := config.ConfigFile()
	if err := writeConfigKey(file, key, typed); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\nConfig saved to %s\n", key, typed, file)
	return err
}

// parseConfigValue converts value to the type of the key's default.
func parseConfigValue(key, value string) (any, error) {
	invalid := func(want string) error {
		return errors.NewValidationError(fmt.Sprintf("invalid value for %s: expected %s", key, want)).
			WithField(key).WithValue(value)
	}
	switch config.DefaultValues()[key].(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, invalid("true or false")
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, invalid("an integer")
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, invalid("a number")
		}
		return f, nil
	default:
		return value, nil
	}
}

// writeConfigKey changes one key in the config file, leaving the rest of
// the file alone so flags and environment variables in effect for this run
// do not leak into it.
func writeConfigKey(file, key string, value any) error {
	v := viper.New()
	v.SetConfigType("yaml")
	if data, err := os.ReadFile(file); err == nil {
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return errors.NewValidationError(fmt.Sprintf("failed to parse %s: %v", file, err)).WithField("config")
		}
	}
	v.Set(key, value)
	if err := v.WriteConfigAs(file); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
