//go:build windows

package lock

import (
	"errors"
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/windows"
)

// handleLock holds a file opened with no sharing plus a LockFileEx range lock.
type handleLock struct {
	f *os.File
}

func (l *handleLock) Unlock() error {
	overlapped := &windows.Overlapped{}
	err := windows.UnlockFileEx(
		windows.Handle(l.f.Fd()),
		0,              // reserved
		math.MaxUint32, // low-order length
		math.MaxUint32, // high-order length
		overlapped,
	)
	closeErr := l.f.Close()
	return errors.Join(err, closeErr)
}

// acquireFile opens an existing file for read/write denying all sharing,
// then locks its full byte range with LockFileEx.
func acquireFile(path string) (fileLock, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	h, err := windows.CreateFile(
		name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, // no sharing
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, path, err)
	}

	overlapped := &windows.Overlapped{}
	err = windows.LockFileEx(
		h,
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,              // reserved
		math.MaxUint32, // low-order length
		math.MaxUint32, // high-order length
		overlapped,
	)
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("%w: lock %s: %w", ErrUnavailable, path, err)
	}

	return &handleLock{f: os.NewFile(uintptr(h), path)}, nil
}

// IsLocked reports whether path is held by another process with a sharing
// restriction. It makes a transient open and never touches any Table.
func IsLocked(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
			errors.Is(err, windows.ERROR_LOCK_VIOLATION)
	}
	f.Close()
	return false
}
