// Package flock provides a cross-process mutual-exclusion lock built on
// flock(2). It guards the run-state file: every mutation of persisted run
// state must happen while holding the lock. Acquisition is bounded; a caller
// that cannot obtain the lock within its timeout gets ErrLockTimeout instead
// of blocking forever.
package flock
