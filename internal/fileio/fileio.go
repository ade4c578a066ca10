// Package fileio provides the two file primitives every record goes through:
// an all-or-nothing write and a bounded, symlink-refusing read.
package fileio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/worklog/internal/errors"
)

// MaxFileSize is the read ceiling for any record file.
const MaxFileSize = 10 * 1024 * 1024

// TempPrefix marks in-flight temporary files so scanners can skip them.
const TempPrefix = "."

// IsTempName reports whether name looks like a temporary file created by WriteAtomic.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, TempPrefix) && strings.Contains(name, ".tmp-")
}

// WriteAtomic writes data to a sibling temporary file and renames it over
// path. On any failure the temporary file is removed and path keeps its
// previous content.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, TempPrefix+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// ReadBounded returns the full content of path.
//
// A missing file yields an error matching os.ErrNotExist. A path that is a
// symbolic link yields an IntegrityError of kind Symlink; the check happens
// in the open itself (O_NOFOLLOW), so there is no window between check and
// use. Files larger than MaxFileSize yield kind TooLarge. Partial content is
// never returned.
func ReadBounded(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		switch err {
		case unix.ELOOP, unix.EMLINK:
			return nil, errors.NewIntegrityError(errors.IntegritySymlink, path, err)
		case unix.ENOENT:
			return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
		default:
			return nil, &os.PathError{Op: "open", Path: path, Err: err}
		}
	}
	f := os.NewFile(uintptr(fd), path)
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.NewIntegrityError(errors.IntegrityCorrupt, path,
			fmt.Errorf("not a regular file"))
	}
	if info.Size() > MaxFileSize {
		return nil, errors.NewIntegrityError(errors.IntegrityTooLarge, path,
			fmt.Errorf("%d bytes, max %d", info.Size(), MaxFileSize))
	}

	// The size can change between fstat and read; never trust more than the ceiling.
	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > MaxFileSize {
		return nil, errors.NewIntegrityError(errors.IntegrityTooLarge, path,
			fmt.Errorf("grew past %d bytes while reading", MaxFileSize))
	}
	return data, nil
}

// Exists reports whether path names an existing file without following a
// final symlink.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
