package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	lineA = `{"time":"2026-02-10T14:30:00Z","level":"INFO","msg":"session created","component":"store","session_id":"sess_20260210T1430_a1b2","project_slug":"my-app"}`
	lineB = `{"time":"2026-02-10T14:31:00Z","level":"WARN","msg":"stale session","component":"reconcile","session_id":"sess_20260210T1430_a1b2","hours":25}`
	lineC = `{"time":"2026-02-10T14:29:00Z","level":"DEBUG","msg":"index rebuilt","component":"index"}`
	lineD = `{"time":"2026-02-10T14:32:00Z","level":"ERROR","msg":"write failed","component":"store","project_slug":"other"}`
)

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestAggregateLogs(t *testing.T) {
	t.Run("merges active file and backups in time order", func(t *testing.T) {
		dir := t.TempDir()
		base := filepath.Join(dir, LogFileName)
		if err := os.WriteFile(base, []byte(lineD+"\nnot json\n\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(base+".1", []byte(lineB+"\n"+lineA+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		writeGzip(t, base+".2.gz", lineC+"\n")

		entries, err := AggregateLogs(dir)
		if err != nil {
			t.Fatalf("AggregateLogs failed: %v", err)
		}
		if len(entries) != 4 {
			t.Fatalf("got %d entries, want 4", len(entries))
		}
		wantMsgs := []string{"index rebuilt", "session created", "stale session", "write failed"}
		for i, want := range wantMsgs {
			if entries[i].Message != want {
				t.Errorf("entries[%d].Message = %q, want %q", i, entries[i].Message, want)
			}
		}
	})

	t.Run("missing directory reports not exist", func(t *testing.T) {
		_, err := AggregateLogs(filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("err = %v, want os.ErrNotExist", err)
		}
	})
}

func TestParseLogEntry(t *testing.T) {
	entry, err := parseLogEntry(lineB)
	if err != nil {
		t.Fatalf("parseLogEntry failed: %v", err)
	}
	if entry.Level != "WARN" || entry.Component != "reconcile" || entry.SessionID != "sess_20260210T1430_a1b2" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Attrs["hours"] != float64(25) {
		t.Errorf("hours attr = %v", entry.Attrs["hours"])
	}
	if _, ok := entry.Attrs["msg"]; ok {
		t.Error("known fields should not be copied into Attrs")
	}
	if !entry.Timestamp.Equal(time.Date(2026, 2, 10, 14, 31, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", entry.Timestamp)
	}

	if _, err := parseLogEntry("{broken"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFilterLogs(t *testing.T) {
	var entries []LogEntry
	for _, line := range []string{lineC, lineA, lineB, lineD} {
		e, err := parseLogEntry(line)
		if err != nil {
			t.Fatal(err)
		}
		entries = append(entries, e)
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   []string
	}{
		{"empty filter keeps all", LogFilter{}, []string{"index rebuilt", "session created", "stale session", "write failed"}},
		{"minimum level", LogFilter{Level: "warn"}, []string{"stale session", "write failed"}},
		{"session", LogFilter{SessionID: "sess_20260210T1430_a1b2"}, []string{"session created", "stale session"}},
		{"project", LogFilter{ProjectSlug: "other"}, []string{"write failed"}},
		{"component", LogFilter{Component: "store"}, []string{"session created", "write failed"}},
		{"message", LogFilter{MessageContains: "stale"}, []string{"stale session"}},
		{
			"time window",
			LogFilter{
				StartTime: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
				EndTime:   time.Date(2026, 2, 10, 14, 31, 0, 0, time.UTC),
			},
			[]string{"session created", "stale session"},
		},
		{"combined", LogFilter{Component: "store", Level: "ERROR"}, []string{"write failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterLogs(entries, tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Message != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i].Message, tt.want[i])
				}
			}
		})
	}
}

func TestWriteEntries(t *testing.T) {
	a, _ := parseLogEntry(lineA)
	b, _ := parseLogEntry(lineB)
	entries := []LogEntry{a, b}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, entries, "text"); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.Contains(out, "[2026-02-10 14:30:00.000] INFO - session created (component=store, session=sess_20260210T1430_a1b2, project=my-app)") {
			t.Errorf("unexpected text output:\n%s", out)
		}
		if !strings.Contains(out, `{"hours":25}`) {
			t.Errorf("attrs missing from text output:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, entries, "JSON"); err != nil {
			t.Fatal(err)
		}
		var decoded []LogEntry
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if len(decoded) != 2 || decoded[1].Component != "reconcile" {
			t.Errorf("decoded = %+v", decoded)
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteEntries(&buf, entries, "csv"); err != nil {
			t.Fatal(err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d records, want 3", len(records))
		}
		if records[0][0] != "timestamp" || records[1][5] != "my-app" {
			t.Errorf("records = %v", records)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if err := WriteEntries(&bytes.Buffer{}, entries, "xml"); err == nil {
			t.Error("expected error for unsupported format")
		}
	})
}
