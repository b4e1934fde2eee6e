//go:build unix

package fs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Lock when another process holds the file.
var ErrLocked = errors.New("file is locked by another process")

type fder interface {
	Fd() uintptr
}

// Lock takes a non-blocking exclusive advisory lock on f. Files that do not
// expose a descriptor (wrappers used in tests) are not locked.
func Lock(f File) error {
	fd, ok := f.(fder)
	if !ok {
		return nil
	}
	if err := unix.Flock(int(fd.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrLocked
		}
		return fmt.Errorf("flock: %w", err)
	}
	return nil
}

// Unlock releases a lock taken by Lock.
func Unlock(f File) error {
	fd, ok := f.(fder)
	if !ok {
		return nil
	}
	return unix.Flock(int(fd.Fd()), unix.LOCK_UN)
}
