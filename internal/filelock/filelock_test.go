package filelock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileLock_TryLockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")
	fl := New(path)

	if ok, err := fl.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	fl := New(filepath.Join(t.TempDir(), "sync.lock"))
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock without TryLock should not error: %v", err)
	}
}

func TestFileLock_TryLockContended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")

	holder := New(path)
	acquired, err := holder.TryLock()
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if !acquired {
		t.Fatal("TryLock should succeed when lock is available")
	}

	// flock locks belong to the open file description, so a second open of
	// the same path conflicts even inside one process.
	other := New(path)
	acquired, err = other.TryLock()
	if err != nil {
		t.Fatalf("TryLock (contended): %v", err)
	}
	if acquired {
		_ = other.Unlock()
		t.Fatal("TryLock should fail while another FileLock holds the lock")
	}

	if err := holder.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	acquired, err = other.TryLock()
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	if !acquired {
		t.Error("TryLock should succeed after the holder released")
	}
	_ = other.Unlock()
}

func TestFileLock_DoubleAcquire(t *testing.T) {
	fl := New(filepath.Join(t.TempDir(), "sync.lock"))
	if ok, err := fl.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer fl.Unlock()

	if _, err := fl.TryLock(); err == nil {
		t.Error("TryLock on a held FileLock should error")
	}
}

func TestFileLock_InvalidDir(t *testing.T) {
	fl := New("/nonexistent/dir/path/sync.lock")
	if _, err := fl.TryLock(); err == nil {
		t.Error("TryLock should fail for nonexistent directory")
	}
}

func TestFileLock_ReusableAfterUnlock(t *testing.T) {
	fl := New(filepath.Join(t.TempDir(), "sync.lock"))

	for i := 0; i < 2; i++ {
		if ok, err := fl.TryLock(); err != nil || !ok {
			t.Fatalf("TryLock %d = %v, %v", i+1, ok, err)
		}
		if err := fl.Unlock(); err != nil {
			t.Fatalf("Unlock %d: %v", i+1, err)
		}
	}
}
