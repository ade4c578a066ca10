package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DataDir != "~/.claude/dashboard" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if !cfg.Logging.Enabled || cfg.Logging.Level != "info" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Logging.MaxSizeMB != 10 || cfg.Logging.MaxBackups != 3 {
		t.Errorf("rotation defaults = %+v", cfg.Logging)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 0 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Output.Format = %q", cfg.Output.Format)
	}
	if cfg.TUI.RefreshInterval() != 5*time.Second {
		t.Errorf("RefreshInterval() = %v", cfg.TUI.RefreshInterval())
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("defaults should validate: %v", ValidationErrors(errs))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"huge log size", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative rate", func(c *Config) { c.Server.RateLimitRPS = -1 }, "server.rate_limit_rps"},
		{"rate without burst", func(c *Config) { c.Server.RateLimitRPS = 5; c.Server.RateLimitBurst = 0 }, "server.rate_limit_burst"},
		{"bad output format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"zero refresh", func(c *Config) { c.TUI.RefreshIntervalSeconds = 0 }, "tui.refresh_interval_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 || errs[0].Field != tt.field {
				t.Fatalf("Validate() = %v, want one error on %s", errs, tt.field)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	msg := errs.Error()
	if !strings.HasPrefix(msg, "2 validation errors:") || !strings.Contains(msg, "b: worse (got: 2)") {
		t.Errorf("Error() = %q", msg)
	}
	if ValidationErrors(nil).Error() != "" {
		t.Error("empty errors should render empty")
	}
}

func TestResolveDataDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	abs := t.TempDir()

	tests := []struct {
		in   string
		want string
	}{
		{"", filepath.Join(home, ".claude", "dashboard")},
		{"~", home},
		{"~/worklog-data", filepath.Join(home, "worklog-data")},
		{abs, abs},
	}
	for _, tt := range tests {
		cfg := &Config{DataDir: tt.in}
		got, err := cfg.ResolveDataDir()
		if err != nil {
			t.Fatalf("ResolveDataDir(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ResolveDataDir(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/worklog" {
			t.Errorf("ConfigDir() = %q", got)
		}
		if got := ConfigFile(); got != "/custom/config/worklog/config.yaml" {
			t.Errorf("ConfigFile() = %q", got)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		if got, want := ConfigDir(), filepath.Join(home, ".config", "worklog"); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestLoad(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TUI.RefreshIntervalSeconds != 5 || cfg.Output.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}

	viper.Set("output.format", "yaml")
	viper.Set("server.port", 9100)
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output.Format != "yaml" || cfg.Server.Port != 9100 {
		t.Errorf("overrides not applied: %+v", cfg)
	}

	viper.Set("logging.level", "loud")
	if _, err := Load(); err == nil {
		t.Error("invalid config should fail to load")
	}
	if got := Get(); got.Logging.Level != "info" {
		t.Errorf("Get() should fall back to defaults, level = %q", got.Logging.Level)
	}
}

func TestKeysHaveDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	for _, key := range Keys() {
		if !viper.IsSet(key) {
			t.Errorf("key %q has no default", key)
		}
	}
}
