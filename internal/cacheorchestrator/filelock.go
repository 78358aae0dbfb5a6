package cacheorchestrator

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tsukumogami/cport/internal/log"
)

// FileLock is an exclusive, OS-level advisory lock acquired via flock(2)
// (spec.md §5 "Filesystem locks: exclusive lock file acquired via OS-level
// file locking"). It guards one physical resource — typically a cache
// staging directory or a NuGet packages.config scratch file multiple
// cport invocations could race on.
type FileLock struct {
	path string
	f    *os.File
}

// NewFileLock opens (creating if needed) the lock file at path without
// acquiring it.
func NewFileLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	return &FileLock{path: path, f: f}, nil
}

// initialBackoff and maxBackoff bound the exponential back-off between
// lock attempts, doubling each time starting at 100ms (spec.md §5).
const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 1000 * time.Millisecond
	tryTotalBudget = 1500 * time.Millisecond // "~1.5 seconds total" (spec.md §5)
)

// TryLock attempts the non-blocking variant: back off 100ms, 200ms, 400ms...
// capped at 1000ms per step, giving up once the total elapsed time exceeds
// ~1.5 seconds (spec.md §5).
func (l *FileLock) TryLock() (bool, error) {
	deadline := time.Now().Add(tryTotalBudget)
	backoff := initialBackoff
	for {
		err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return true, nil
		}
		if err != unix.EWOULDBLOCK {
			return false, fmt.Errorf("flock %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(backoff)
		backoff = minDuration(backoff*2, maxBackoff)
	}
}

// Lock blocks until the lock is acquired, logging a "waiting..." message
// after the first failed non-blocking attempt (spec.md §5: "the blocking
// variant logs a 'waiting…' message after the first failed attempt").
// There is no overall cap on the blocking variant.
func (l *FileLock) Lock(logger log.Logger) error {
	if logger == nil {
		logger = log.NewNoop()
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if err != unix.EWOULDBLOCK {
		return fmt.Errorf("flock %s: %w", l.path, err)
	}

	logger.Warn("waiting for lock", "path", l.path)
	backoff := initialBackoff
	for {
		time.Sleep(backoff)
		err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != unix.EWOULDBLOCK {
			return fmt.Errorf("flock %s: %w", l.path, err)
		}
		backoff = minDuration(backoff*2, maxBackoff)
	}
}

// Unlock releases the lock. Safe to call even if the lock was never
// acquired (flock on an unlocked fd is a no-op).
func (l *FileLock) Unlock() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

// Close releases the lock (if held) and closes the underlying file.
func (l *FileLock) Close() error {
	_ = l.Unlock()
	return l.f.Close()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
