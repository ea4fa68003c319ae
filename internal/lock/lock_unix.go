//go:build !windows

package lock

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// flockLock holds an exclusive flock(2) on an existing file.
type flockLock struct {
	fl *flock.Flock
}

func (l *flockLock) Unlock() error {
	// Unlock also closes the underlying descriptor.
	return l.fl.Unlock()
}

// acquireFile opens path read/write without creating it and takes a
// non-blocking exclusive flock covering the whole file.
func acquireFile(path string) (fileLock, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrUnavailable, path)
	}

	fl := flock.New(path, flock.SetFlag(os.O_RDWR))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is locked by another process", ErrUnavailable, path)
	}

	return &flockLock{fl: fl}, nil
}

// IsLocked reports whether another holder has path exclusively locked.
// It makes a transient attempt and never touches any Table.
func IsLocked(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}

	fl := flock.New(path, flock.SetFlag(os.O_RDWR))
	locked, err := fl.TryLock()
	if err != nil {
		// Open failures are not lock contention.
		return false
	}
	if !locked {
		return true
	}
	_ = fl.Unlock()
	return false
}
