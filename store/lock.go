package store

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked means another process holds the state directory
var ErrLocked = errors.New("state directory is in use by another shorts-studio process")

// Lock guards a state directory so only one process mutates the pipeline
type Lock struct {
	lock *flock.Flock
}

// AcquireLock takes the directory lock without blocking
func AcquireLock(dir string) (*Lock, error) {
	fl := flock.New(filepath.Join(dir, "pipeline.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{lock: fl}, nil
}

// Release unlocks the directory
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
