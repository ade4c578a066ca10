// Package filelock provides named, cross-process mutual exclusion backed by
// flock(2) on a lock file.
//
// Every session record has a sibling "{id}.lock" file, and the session index
// and config record each have one of their own. A [Lock] is acquired with
// [Acquire], which blocks until the exclusive lock is granted, and is
// released with [Lock.Release]. [With] runs a function under a lock and
// releases it on every exit path, including panics:
//
//	err := filelock.With(path, func() error {
//	    // read-modify-write the record
//	    return nil
//	})
//
// The holder (pid, hostname, acquisition time) is written into the lock file
// so "worklog locks" can report who holds what. The lock itself is the flock,
// not the file content; a crashed holder's lock is released by the kernel
// when its descriptor closes, but the file stays behind until orphan cleanup
// removes it.
//
// Locks are per open file description, so two goroutines in the same process
// exclude each other just like two processes do.
package filelock
