package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/worklog/internal/logging"
)

const (
	maxLogSizeMB      = 1000
	maxRefreshSeconds = 3600
	maxPort           = 65535
)

// ValidationError is one rejected config value, keyed by its dotted path.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors reports every rejected value of a config at once so a
// user fixing config.yaml sees all problems in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("%d validation errors:", len(e)))
	for i, v := range e {
		lines = append(lines, fmt.Sprintf("  %d. %s", i+1, v))
	}
	return strings.Join(lines, "\n") + "\n"
}

// ValidOutputFormats returns the formats commands can print in.
func ValidOutputFormats() []string {
	return []string{"json", "yaml"}
}

// rule is a single check; failed reports whether value is rejected.
type rule struct {
	field   string
	value   any
	failed  bool
	message string
}

func (c *Config) rules() []rule {
	levels := logging.ValidLevels()
	srv := c.Server
	return []rule{
		{
			field:   "logging.level",
			value:   c.Logging.Level,
			failed:  c.Logging.Level != "" && !slices.Contains(levels, strings.ToUpper(c.Logging.Level)),
			message: "must be one of: " + strings.ToLower(strings.Join(levels, ", ")),
		},
		{
			field:   "logging.max_size_mb",
			value:   c.Logging.MaxSizeMB,
			failed:  c.Logging.MaxSizeMB <= 0,
			message: "must be positive",
		},
		{
			field:   "logging.max_size_mb",
			value:   c.Logging.MaxSizeMB,
			failed:  c.Logging.MaxSizeMB > maxLogSizeMB,
			message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		},
		{
			field:   "logging.max_backups",
			value:   c.Logging.MaxBackups,
			failed:  c.Logging.MaxBackups < 0,
			message: "must be non-negative",
		},
		{
			field:   "server.port",
			value:   srv.Port,
			failed:  srv.Port < 0 || srv.Port > maxPort,
			message: fmt.Sprintf("must be between 0 and %d", maxPort),
		},
		{
			field:   "server.rate_limit_rps",
			value:   srv.RateLimitRPS,
			failed:  srv.RateLimitRPS < 0,
			message: "must be non-negative",
		},
		{
			field:   "server.rate_limit_burst",
			value:   srv.RateLimitBurst,
			failed:  srv.RateLimitRPS > 0 && srv.RateLimitBurst < 1,
			message: "must be at least 1 when rate limiting is enabled",
		},
		{
			field:   "output.format",
			value:   c.Output.Format,
			failed:  c.Output.Format != "" && !slices.Contains(ValidOutputFormats(), c.Output.Format),
			message: "must be one of: " + strings.Join(ValidOutputFormats(), ", "),
		},
		{
			field:   "tui.refresh_interval_seconds",
			value:   c.TUI.RefreshIntervalSeconds,
			failed:  c.TUI.RefreshIntervalSeconds < 1 || c.TUI.RefreshIntervalSeconds > maxRefreshSeconds,
			message: fmt.Sprintf("must be between 1 and %d", maxRefreshSeconds),
		},
	}
}

// Validate returns every rule the config breaks, in a stable order.
func (c *Config) Validate() []ValidationError {
	var out []ValidationError
	for _, r := range c.rules() {
		if r.failed {
			out = append(out, ValidationError{Field: r.field, Value: r.value, Message: r.message})
		}
	}
	return out
}
