//go:build !windows

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FileLock is an exclusive flock on a local file. The kernel drops it when
// the process exits, so a crashed run never leaves a stale lock.
type FileLock struct {
	path string
	file *os.File
	info *LockInfo
}

// NewFileLock creates a lock on path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire takes the lock without waiting.
func (l *FileLock) Acquire(_ context.Context, operation string) (*LockInfo, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			data, _ := os.ReadFile(l.path)
			return nil, &LockedError{Path: l.path, Holder: parseLockInfo(data)}
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	info := newLockInfo(operation)
	data, err := json.Marshal(info)
	if err == nil {
		if err = file.Truncate(0); err == nil {
			_, err = file.WriteAt(data, 0)
		}
	}
	if err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	l.file = file
	l.info = info
	return info, nil
}

// Release unlocks and empties the lock file. The file itself stays so a
// concurrent opener never locks an unlinked inode.
func (l *FileLock) Release(context.Context) error {
	if l.file == nil {
		return nil
	}
	_ = l.file.Truncate(0)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	l.info = nil
	return err
}
