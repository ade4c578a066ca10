package fileio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/worklog/internal/errors"
)

func TestWriteAtomic(t *testing.T) {
	t.Run("creates and replaces content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rec.json")

		if err := WriteAtomic(path, []byte("first"), 0644); err != nil {
			t.Fatalf("WriteAtomic() = %v", err)
		}
		if err := WriteAtomic(path, []byte("second"), 0600); err != nil {
			t.Fatalf("WriteAtomic() = %v", err)
		}

		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "second" {
			t.Errorf("content = %q, want second", got)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("perm = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "rec.json")
		for i := 0; i < 3; i++ {
			if err := WriteAtomic(path, []byte("x"), 0644); err != nil {
				t.Fatal(err)
			}
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("directory has %d entries, want 1", len(entries))
		}
	})

	t.Run("failed rename keeps prior content and removes temp", func(t *testing.T) {
		dir := t.TempDir()
		// A non-empty directory at the destination makes rename fail.
		path := filepath.Join(dir, "rec.json")
		if err := os.MkdirAll(filepath.Join(path, "child"), 0755); err != nil {
			t.Fatal(err)
		}

		if err := WriteAtomic(path, []byte("data"), 0644); err == nil {
			t.Fatal("expected rename failure")
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if IsTempName(e.Name()) {
				t.Errorf("temp file %s left behind", e.Name())
			}
		}
	})

	t.Run("missing directory fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nope", "rec.json")
		if err := WriteAtomic(path, []byte("x"), 0644); err == nil {
			t.Error("expected error for missing parent directory")
		}
	})
}

func TestReadBounded(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads regular file", func(t *testing.T) {
		path := filepath.Join(dir, "ok.json")
		if err := os.WriteFile(path, []byte(`{"a":1}`), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := ReadBounded(path)
		if err != nil {
			t.Fatalf("ReadBounded() = %v", err)
		}
		if string(got) != `{"a":1}` {
			t.Errorf("got %q", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadBounded(filepath.Join(dir, "missing.json"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("err = %v, want os.ErrNotExist", err)
		}
	})

	t.Run("symlink rejected", func(t *testing.T) {
		target := filepath.Join(dir, "target.json")
		link := filepath.Join(dir, "link.json")
		if err := os.WriteFile(target, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(target, link); err != nil {
			t.Fatal(err)
		}
		_, err := ReadBounded(link)
		if !errors.Is(err, errors.ErrSymlinkRejected) {
			t.Errorf("err = %v, want ErrSymlinkRejected", err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		path := filepath.Join(dir, "big.json")
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.Truncate(MaxFileSize + 1); err != nil {
			t.Fatal(err)
		}
		_ = f.Close()

		_, err = ReadBounded(path)
		if !errors.Is(err, errors.ErrTooLarge) {
			t.Errorf("err = %v, want ErrTooLarge", err)
		}
	})

	t.Run("exactly at ceiling is allowed", func(t *testing.T) {
		path := filepath.Join(dir, "edge.json")
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.Truncate(MaxFileSize); err != nil {
			t.Fatal(err)
		}
		_ = f.Close()

		got, err := ReadBounded(path)
		if err != nil {
			t.Fatalf("ReadBounded() = %v", err)
		}
		if len(got) != MaxFileSize {
			t.Errorf("len = %d", len(got))
		}
	})

	t.Run("directory is corrupt", func(t *testing.T) {
		sub := filepath.Join(dir, "sub.json")
		if err := os.Mkdir(sub, 0755); err != nil {
			t.Fatal(err)
		}
		_, err := ReadBounded(sub)
		if !errors.Is(err, errors.ErrCorrupt) {
			t.Errorf("err = %v, want ErrCorrupt", err)
		}
	})
}

func TestIsTempName(t *testing.T) {
	tests := map[string]bool{
		".sess_20260210T1430_a1b2.json.tmp-123": true,
		".x.tmp-":                               true,
		"sess_20260210T1430_a1b2.json":          false,
		".hidden":                               false,
	}
	for name, want := range tests {
		if got := IsTempName(name); got != want {
			t.Errorf("IsTempName(%q) = %v, want %v", name, got, want)
		}
	}
}
