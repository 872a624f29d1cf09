package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
)

// ErrLockTimeout is returned when the lock could not be acquired within the
// caller's timeout. State is untouched; the caller may retry.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// DefaultTimeout bounds Acquire when the caller passes no explicit timeout.
const DefaultTimeout = 30 * time.Second

// pollInterval is how often Acquire re-attempts a contended lock.
const pollInterval = 50 * time.Millisecond

// FileLock provides cross-process mutual exclusion using flock(2).
// It protects state files when multiple benchgrid processes may be
// operating on the same state directory.
//
// One FileLock may be shared by concurrent goroutines: flock(2) already
// serializes them against each other (each TryLock opens its own file
// description), and the held handle is mutex-guarded so the syscall's
// exclusion is visible to the Go memory model as well.
type FileLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// New creates a FileLock backed by the lock file at path. The file is
// created on first acquisition. Call Acquire/Release to use it.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.path
}

// Acquire obtains the exclusive lock, polling until it succeeds or the
// timeout elapses. A non-positive timeout means DefaultTimeout. Returns
// ErrLockTimeout when the bound is exceeded, or the context error if ctx
// is cancelled first.
func (fl *FileLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		ok, err := fl.TryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s not acquired within %s", ErrLockTimeout, fl.path, timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it is held elsewhere.
func (fl *FileLock) TryLock() (bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}

	fl.file = f
	return true, nil
}

// Release releases the lock and closes the lock file. Releasing an
// unheld lock is a no-op.
func (fl *FileLock) Release() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = fl.file.Close()
		fl.file = nil
		return fmt.Errorf("funlock: %w", err)
	}

	err := fl.file.Close()
	fl.file = nil
	return err
}
