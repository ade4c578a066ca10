package filelock

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/logging"
)

// Lock is an acquired exclusive flock on a lock file.
type Lock struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	holder   Holder
	logger   *logging.Logger
	released bool
}

// Acquire opens (creating if needed) the lock file at path and blocks until
// an exclusive flock is granted. There is no timeout.
func Acquire(path string, opts ...Option) (*Lock, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	for {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open lock file %s: %v", errors.ErrLockFailed, path, err)
		}
		if err := flockRetry(f, unix.LOCK_EX); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%w: flock %s: %v", errors.ErrLockFailed, path, err)
		}
		// The file may have been unlinked by orphan cleanup while we
		// waited; a lock on a detached inode excludes nobody.
		if !stillLinked(path, f) {
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			_ = f.Close()
			continue
		}
		if o.onWait != nil {
			o.onWait(time.Since(start))
		}
		return newLock(path, f, o.logger), nil
	}
}

func stillLinked(path string, f *os.File) bool {
	onDisk, err := os.Stat(path)
	if err != nil {
		return false
	}
	held, err := f.Stat()
	if err != nil {
		return false
	}
	return os.SameFile(onDisk, held)
}

// TryAcquire is Acquire without blocking. It returns an error matching
// errors.ErrLockFailed if another descriptor holds the lock.
func TryAcquire(path string, opts ...Option) (*Lock, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open lock file %s: %v", errors.ErrLockFailed, path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is held: %v", errors.ErrLockFailed, path, err)
	}
	if !stillLinked(path, f) {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s was removed while locking", errors.ErrLockFailed, path)
	}
	return newLock(path, f, o.logger), nil
}

func newLock(path string, f *os.File, logger *logging.Logger) *Lock {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	l := &Lock{
		path: path,
		file: f,
		holder: Holder{
			PID:        os.Getpid(),
			Hostname:   hostname,
			AcquiredAt: time.Now().UTC(),
		},
		logger: logger,
	}
	l.writeHolder()
	logger.Debug("lock acquired", "path", path)
	return l
}

// writeHolder records the holder in the file. The flock is what excludes,
// so a failure here is logged and otherwise ignored.
func (l *Lock) writeHolder() {
	data, err := json.Marshal(l.holder)
	if err != nil {
		return
	}
	if err := l.file.Truncate(0); err != nil {
		l.logger.Warn("failed to truncate lock file", "path", l.path, "error", err.Error())
		return
	}
	if _, err := l.file.WriteAt(append(data, '\n'), 0); err != nil {
		l.logger.Warn("failed to write lock holder", "path", l.path, "error", err.Error())
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Holder returns the holder recorded at acquisition.
func (l *Lock) Holder() Holder { return l.holder }

// Release unlocks and closes the lock file. The file itself is left in place.
// Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.logger.Debug("lock released", "path", l.path)

	if unlockErr != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close lock file %s: %w", l.path, closeErr)
	}
	return nil
}

// With acquires the lock at path, runs fn, and releases the lock whether fn
// returns normally, returns an error, or panics. A release failure is
// reported only when fn itself succeeded.
func With(path string, fn func() error, opts ...Option) (err error) {
	lock, err := Acquire(path, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn()
}

// Inspect reports whether the lock file at path is currently held and who
// last acquired it. It never creates the file.
func Inspect(path string) (Info, error) {
	info := Info{Path: path}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return info, err
	}
	defer func() { _ = f.Close() }()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			info.Held = true
		} else {
			return info, fmt.Errorf("failed to probe %s: %w", path, err)
		}
	} else {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}

	var h Holder
	buf := make([]byte, 512)
	n, _ := f.ReadAt(buf, 0)
	if n > 0 && json.Unmarshal(trimNUL(buf[:n]), &h) == nil {
		info.Holder = &h
	}
	return info, nil
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// flockRetry restarts flock when a signal interrupts the blocking wait.
func flockRetry(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}
