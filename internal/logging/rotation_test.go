package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", LogFileName)
		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer rw.Close()

		if rw.Path() != path {
			t.Errorf("Path() = %q, want %q", rw.Path(), path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("file not created: %v", err)
		}
	})

	t.Run("picks up existing size", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), LogFileName)
		if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
			t.Fatal(err)
		}
		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer rw.Close()

		if rw.Size() != 10 {
			t.Errorf("Size() = %d, want 10", rw.Size())
		}
	})
}

// newTinyWriter returns a writer whose limit is a few bytes, by setting
// maxBytes directly since RotationConfig is expressed in megabytes.
func newTinyWriter(t *testing.T, limit int64, backups int, compress bool) *RotatingWriter {
	t.Helper()
	path := filepath.Join(t.TempDir(), LogFileName)
	rw, err := NewRotatingWriter(path, RotationConfig{MaxBackups: backups, Compress: compress})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.maxBytes = limit
	t.Cleanup(func() { _ = rw.Close() })
	return rw
}

func TestRotatingWriterRotation(t *testing.T) {
	rw := newTinyWriter(t, 20, 2, false)

	for _, line := range []string{"first-line-0123\n", "second-line-012\n", "third-line-0123\n", "fourth-line-012\n"} {
		if _, err := rw.Write([]byte(line)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	read := func(p string) string {
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		return string(b)
	}

	if got := read(rw.Path()); got != "fourth-line-012\n" {
		t.Errorf("active file = %q", got)
	}
	if got := read(rw.Path() + ".1"); got != "third-line-0123\n" {
		t.Errorf(".1 = %q", got)
	}
	if got := read(rw.Path() + ".2"); got != "second-line-012\n" {
		t.Errorf(".2 = %q", got)
	}
	if _, err := os.Stat(rw.Path() + ".3"); !os.IsNotExist(err) {
		t.Error("backups beyond MaxBackups should be removed")
	}
}

func TestRotatingWriterNoBackups(t *testing.T) {
	rw := newTinyWriter(t, 10, 0, false)

	_, _ = rw.Write([]byte("aaaaaaaa\n"))
	_, _ = rw.Write([]byte("bbbbbbbb\n"))

	b, err := os.ReadFile(rw.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "bbbbbbbb\n" {
		t.Errorf("active file = %q", b)
	}
	if _, err := os.Stat(rw.Path() + ".1"); !os.IsNotExist(err) {
		t.Error("no backup should exist when MaxBackups is 0")
	}
}

func TestRotatingWriterOversizedFirstWrite(t *testing.T) {
	rw := newTinyWriter(t, 4, 1, false)

	if _, err := rw.Write([]byte("much longer than four bytes\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(rw.Path() + ".1"); !os.IsNotExist(err) {
		t.Error("an empty file should not be rotated")
	}
}

func TestRotatingWriterCompression(t *testing.T) {
	rw := newTinyWriter(t, 10, 2, true)

	_, _ = rw.Write([]byte("compress-me\n"))
	_, _ = rw.Write([]byte("next\n"))

	gzPath := rw.Path() + ".1.gz"
	f, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("expected %s: %v", gzPath, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if string(data) != "compress-me\n" {
		t.Errorf("decompressed = %q", data)
	}
	if _, err := os.Stat(rw.Path() + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup should be removed after compression")
	}
}

func TestRotatingWriterConcurrency(t *testing.T) {
	rw := newTinyWriter(t, 256, 50, false)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := rw.Write([]byte("concurrent line\n")); err != nil {
					t.Errorf("Write failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync() = %v", err)
	}

	matches, _ := filepath.Glob(rw.Path() + "*")
	total := 0
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			t.Fatal(err)
		}
		total += strings.Count(string(b), "concurrent line\n")
	}
	if total != 400 {
		t.Errorf("found %d lines across files, want 400", total)
	}
}

func TestRotatingWriterClose(t *testing.T) {
	rw := newTinyWriter(t, 0, 0, false)
	if err := rw.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if _, err := rw.Write([]byte("x")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync after Close = %v", err)
	}
}

func TestNewLoggerWithRotation(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLoggerWithRotation(dir, LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLoggerWithRotation failed: %v", err)
	}
	logger.Info("hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	entries := readLines(t, filepath.Join(dir, LogFileName))
	if len(entries) != 1 || entries[0]["msg"] != "hello" {
		t.Errorf("entries = %v", entries)
	}
}

func TestDefaultRotationConfig(t *testing.T) {
	cfg := DefaultRotationConfig()
	if cfg.MaxSizeMB != 10 || cfg.MaxBackups != 3 || cfg.Compress {
		t.Errorf("DefaultRotationConfig() = %+v", cfg)
	}
}
