// Package filelock provides cross-process mutual exclusion using flock(2).
//
// It guards resources shared by independent OS processes on the same device,
// such as the sync cycle that drains the shared action queue. Locks are
// advisory and tied to the open file, so a crashed holder releases its lock
// automatically when the kernel closes the descriptor.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// FileLock is an exclusive lock on a single lock file.
type FileLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// New creates a FileLock for the file at path. The file is created on first
// acquisition if it does not exist.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.path
}

// TryLock attempts to acquire the lock without blocking.
// It returns false if another holder has it.
func (fl *FileLock) TryLock() (bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file != nil {
		return false, fmt.Errorf("lock %s already held by this FileLock", fl.path)
	}

	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}

	fl.file = f
	return true, nil
}

// Unlock releases the lock and closes the lock file. Unlocking a lock that
// is not held is a no-op.
func (fl *FileLock) Unlock() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file == nil {
		return nil
	}

	f := fl.file
	fl.file = nil

	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		_ = f.Close()
		return fmt.Errorf("funlock: %w", err)
	}
	return f.Close()
}
