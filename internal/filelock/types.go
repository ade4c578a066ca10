package filelock

import (
	"time"

	"github.com/Iron-Ham/worklog/internal/logging"
)

// Holder describes the process that last acquired a lock file.
type Holder struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Info is the inspection result for one lock file.
type Info struct {
	Path string `json:"path"`
	// Held is true when another descriptor currently holds the flock.
	Held bool `json:"held"`
	// Holder is nil when the file is empty or unreadable.
	Holder *Holder `json:"holder,omitempty"`
}

// Option configures Acquire and With.
type Option func(*options)

type options struct {
	logger *logging.Logger
	onWait func(time.Duration)
}

// WithLogger logs acquisition and release at DEBUG.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWaitObserver reports how long Acquire blocked before the lock was granted.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(o *options) {
		o.onWait = fn
	}
}
