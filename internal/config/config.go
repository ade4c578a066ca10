package config

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/worklog/internal/layout"
)

// Config is the runtime configuration of the worklog binary. It is distinct
// from the config record kept in the data directory, which holds project
// registrations and the settings every client shares.
type Config struct {
	// DataDir is the store root. Supports ~ for the home directory.
	DataDir string        `mapstructure:"data_dir"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Output  OutputConfig  `mapstructure:"output"`
	TUI     TUIConfig     `mapstructure:"tui"`
}

// LoggingConfig controls the JSON log file under <data_dir>/logs.
type LoggingConfig struct {
	// Enabled writes worklog.log. When false, warnings and errors go to stderr.
	Enabled bool `mapstructure:"enabled"`
	// Level is one of debug, info, warn, error (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the size at which the log rotates (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress"`
}

// ServerConfig controls `worklog serve`.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	// Port 0 means use the dashboard_port setting from the config record.
	Port int `mapstructure:"port"`
	// RateLimitRPS caps /api requests per second; 0 disables the limiter.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// OutputConfig controls how commands print results.
type OutputConfig struct {
	// Format is "json" or "yaml" (default: "json")
	Format string `mapstructure:"format"`
}

// TUIConfig controls `worklog dashboard`.
type TUIConfig struct {
	// RefreshIntervalSeconds is the periodic refresh on top of file events (default: 5)
	RefreshIntervalSeconds int `mapstructure:"refresh_interval_seconds"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		DataDir: "~/.claude/dashboard",
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           0,
			RateLimitRPS:   0,
			RateLimitBurst: 20,
		},
		Output: OutputConfig{
			Format: "json",
		},
		TUI: TUIConfig{
			RefreshIntervalSeconds: 5,
		},
	}
}

// RefreshInterval returns the TUI refresh interval as a time.Duration
func (c *TUIConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// ResolveDataDir returns the absolute store root. An empty DataDir falls
// back to ~/.claude/dashboard.
func (c *Config) ResolveDataDir() (string, error) {
	path := c.DataDir
	if path == "" {
		return layout.DefaultRoot()
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return filepath.Abs(path)
}

// DefaultValues is Default() keyed by the dotted viper key.
func DefaultValues() map[string]any {
	d := Default()
	return map[string]any{
		"data_dir":                     d.DataDir,
		"logging.enabled":              d.Logging.Enabled,
		"logging.level":                d.Logging.Level,
		"logging.max_size_mb":          d.Logging.MaxSizeMB,
		"logging.max_backups":          d.Logging.MaxBackups,
		"logging.compress":             d.Logging.Compress,
		"server.host":                  d.Server.Host,
		"server.port":                  d.Server.Port,
		"server.rate_limit_rps":        d.Server.RateLimitRPS,
		"server.rate_limit_burst":      d.Server.RateLimitBurst,
		"output.format":                d.Output.Format,
		"tui.refresh_interval_seconds": d.TUI.RefreshIntervalSeconds,
	}
}

// SetDefaults registers every default with the global viper.
func SetDefaults() {
	for k, v := range DefaultValues() {
		viper.SetDefault(k, v)
	}
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when it
// cannot be loaded.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "worklog")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".worklog"
	}
	return filepath.Join(home, ".config", "worklog")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Keys lists every settable key in dot notation, sorted.
func Keys() []string {
	return slices.Sorted(maps.Keys(DefaultValues()))
}
