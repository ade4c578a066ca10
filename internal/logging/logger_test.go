package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line is not valid JSON: %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("creates worklog.log in the log directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(filepath.Join(dir, LogFileName)); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
	})

	t.Run("writes to stderr when logDir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.sink.closer != nil {
			t.Error("expected no closer when logging to stderr")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close on stderr logger returned %v", err)
		}
	})
}

func TestLogLevels(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
	logger.Close()

	entries := readLines(t, filepath.Join(dir, LogFileName))
	if len(entries) != 4 {
		t.Fatalf("expected 4 log lines, got %d", len(entries))
	}

	wantLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for i, entry := range entries {
		if entry["level"] != wantLevels[i] {
			t.Errorf("line %d: level = %v, want %s", i, entry["level"], wantLevels[i])
		}
		if entry["key"] != "value" {
			t.Errorf("line %d: key = %v, want value", i, entry["key"])
		}
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below WARN should be filtered: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("WARN and ERROR should be logged: %s", out)
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, LevelInfo)

	child := root.WithComponent("store").WithProject("my-app").WithSession("sess_20260210T1430_a1b2")
	child.Info("session created", "intent", "fix bug")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := map[string]string{
		"component":    "store",
		"project_slug": "my-app",
		"session_id":   "sess_20260210T1430_a1b2",
		"intent":       "fix bug",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %s", k, entry[k], v)
		}
	}

	buf.Reset()
	root.Info("root message")
	if strings.Contains(buf.String(), "session_id") {
		t.Error("child attributes leaked into the parent logger")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelInfo)

	if logger.With() != logger {
		t.Error("With() without args should return the same logger")
	}

	logger.With("attempt", 2, 42, "ignored-non-string-key").Info("retry")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", entry["attempt"])
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("nothing happens")
	logger.Error("still nothing")
	logger.WithSession("sess_20260210T1430_a1b2").With("k", "v").Warn("child of nil")
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Debug("x")
	logger.Error("y")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidLevels(t *testing.T) {
	levels := ValidLevels()
	if len(levels) != 4 || levels[0] != LevelDebug || levels[3] != LevelError {
		t.Errorf("ValidLevels() = %v", levels)
	}
}

func TestClose(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			l := logger.With("worker", w)
			for i := 0; i < perWorker; i++ {
				l.Info("tick", "i", i)
			}
		}(w)
	}
	wg.Wait()
	logger.Close()

	entries := readLines(t, filepath.Join(dir, LogFileName))
	if len(entries) != workers*perWorker {
		t.Errorf("got %d lines, want %d", len(entries), workers*perWorker)
	}
}
