package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels accepted in config and by 'worklog logs --level'.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the name of the active log file inside the log directory.
const LogFileName = "worklog.log"

var slogLevels = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// sink is the file shared by a root Logger and every child derived from it.
type sink struct {
	mu     sync.Mutex
	closer io.Closer
}

// Logger writes JSON lines through slog. Children created with WithSession,
// WithProject, WithComponent or With share the parent's output. A nil
// *Logger discards everything.
type Logger struct {
	logger *slog.Logger
	sink   *sink
}

// NewLogger appends JSON lines to {logDir}/worklog.log without rotation.
// An empty logDir logs to stderr.
func NewLogger(logDir string, level string) (*Logger, error) {
	return NewLoggerWithRotation(logDir, level, RotationConfig{})
}

// NewLoggerWithRotation is NewLogger backed by a RotatingWriter. A zero
// MaxSizeMB disables rotation. An empty logDir logs to stderr.
func NewLoggerWithRotation(logDir, level string, rotation RotationConfig) (*Logger, error) {
	if logDir == "" {
		return build(os.Stderr, nil, level), nil
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rw, err := NewRotatingWriter(filepath.Join(logDir, LogFileName), rotation)
	if err != nil {
		return nil, err
	}
	return build(rw, rw, level), nil
}

// NewWriterLogger logs to w, which stays owned by the caller.
func NewWriterLogger(w io.Writer, level string) *Logger {
	return build(w, nil, level)
}

// NopLogger discards all output.
func NopLogger() *Logger {
	return build(io.Discard, nil, LevelError)
}

func build(w io.Writer, closer io.Closer, level string) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevels[ParseLevel(level)]})
	return &Logger{
		logger: slog.New(h),
		sink:   &sink{closer: closer},
	}
}

// WithSession tags every entry with session_id.
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.With("session_id", sessionID)
}

// WithProject tags every entry with project_slug.
func (l *Logger) WithProject(slug string) *Logger {
	return l.With("project_slug", slug)
}

// WithComponent tags every entry with component, e.g. "store", "index",
// "reconcile", "notify" or "api".
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// With returns a child carrying alternating key-value pairs. Pairs whose
// key is not a string are dropped.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || len(args) == 0 {
		return l
	}
	attrs := make([]any, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	return &Logger{logger: l.logger.With(attrs...), sink: l.sink}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *Logger) log(level slog.Level, msg string, args []any) {
	if l == nil {
		return
	}
	l.logger.Log(context.Background(), level, msg, args...)
}

// Close closes the log file. Children share the file with their root, so
// only the root should be closed. Closing a stderr logger does nothing.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.closer == nil {
		return nil
	}
	err := l.sink.closer.Close()
	l.sink.closer = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// ParseLevel normalizes level to one of the Level constants, falling back
// to LevelInfo for anything unrecognized.
func ParseLevel(level string) string {
	up := strings.ToUpper(level)
	if _, ok := slogLevels[up]; ok {
		return up
	}
	return LevelInfo
}

// ValidLevels returns the level names in increasing severity.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
