package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DirLock guards a data directory against concurrent writers from other
// processes. Only one process may hold the lock at a time.
type DirLock struct {
	lock *flock.Flock
}

// AcquireDirLock takes an exclusive lock on dir, creating it if needed.
// It fails immediately if another process holds the lock.
func AcquireDirLock(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is locked by another process", dir)
	}
	return &DirLock{lock: lock}, nil
}

// Release unlocks the directory.
func (l *DirLock) Release() error {
	return l.lock.Unlock()
}
