// Package lockfile is the concurrency substrate: POSIX advisory file
// locks plus atomic, schema-validated JSON reads and writes. Every
// cross-process mutation in the system goes through this package.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Handle holds an acquired advisory lock until Release is called.
type Handle struct {
	f *os.File
}

// Acquire takes a blocking advisory lock on path, creating the lock file
// if needed. Exclusive locks serialize writers; shared locks allow
// concurrent readers.
func Acquire(path string, exclusive bool) (*Handle, error) {
	return acquire(path, exclusive, true)
}

// TryAcquire is the non-blocking variant. The bool result reports whether
// the lock was obtained.
func TryAcquire(path string, exclusive bool) (*Handle, bool, error) {
	h, err := acquire(path, exclusive, false)
	if err != nil {
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return nil, false, nil
		}
		return nil, false, err
	}
	return h, true, nil
}

func acquire(path string, exclusive, block bool) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if !block {
		how |= unix.LOCK_NB
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return nil, err
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &Handle{f: f}, nil
}

// Release drops the lock and closes the descriptor. Safe to call once.
func (h *Handle) Release() error {
	if h == nil || h.f == nil {
		return nil
	}
	err := unix.Flock(int(h.f.Fd()), unix.LOCK_UN)
	if cerr := h.f.Close(); err == nil {
		err = cerr
	}
	h.f = nil
	return err
}

// WithLock runs fn while holding the lock at path, releasing it on every
// exit path including panics.
func WithLock(path string, exclusive bool, fn func() error) error {
	h, err := Acquire(path, exclusive)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn()
}
