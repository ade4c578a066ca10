package model

import "time"

// ConfigVersion is the current version of the config record.
const ConfigVersion = 1

// ProjectRegistration is one registered project in config.json.
type ProjectRegistration struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Settings are the user-tunable thresholds stored in config.json.
type Settings struct {
	DashboardPort        int  `json:"dashboard_port" mapstructure:"dashboard_port" validate:"min=1,max=65535"`
	StaleThresholdHours  int  `json:"stale_threshold_hours" mapstructure:"stale_threshold_hours" validate:"min=1,max=8760"`
	ArchiveAfterDays     int  `json:"archive_after_days" mapstructure:"archive_after_days" validate:"min=1,max=3650"`
	NotificationsEnabled bool `json:"notifications_enabled" mapstructure:"notifications_enabled"`
	ParkedNotifyHours    int  `json:"parked_notify_hours" mapstructure:"parked_notify_hours" validate:"min=1"`
	NotifyCooldownHours  int  `json:"notify_cooldown_hours" mapstructure:"notify_cooldown_hours" validate:"min=1"`
}

// DefaultSettings returns the settings a fresh config record starts with.
func DefaultSettings() Settings {
	return Settings{
		DashboardPort:        9000,
		StaleThresholdHours:  24,
		ArchiveAfterDays:     30,
		NotificationsEnabled: false,
		ParkedNotifyHours:    48,
		NotifyCooldownHours:  12,
	}
}

// StaleThreshold returns the stale threshold as a duration.
func (s Settings) StaleThreshold() time.Duration {
	return time.Duration(s.StaleThresholdHours) * time.Hour
}

// Config is the process-wide record in config.json.
type Config struct {
	Version  int                            `json:"version"`
	Projects map[string]ProjectRegistration `json:"projects"`
	Settings Settings                       `json:"settings"`
}

// DefaultConfig returns the record created on first access.
func DefaultConfig() *Config {
	return &Config{
		Version:  ConfigVersion,
		Projects: map[string]ProjectRegistration{},
		Settings: DefaultSettings(),
	}
}
