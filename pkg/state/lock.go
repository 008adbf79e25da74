// Package state guards the target server against concurrent installs.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another laravel-vps run holds the lock")

// LockTimeout is how long a host lock is considered valid. A flock dies
// with its process, so it only applies to host locks.
const LockTimeout = 2 * time.Hour

// LockInfo contains information about who holds the lock
type LockInfo struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"` // install, doctor, ...
	Who       string    `json:"who"`       // user@hostname
	Created   time.Time `json:"created"`
	PID       int       `json:"pid"`
}

func (i *LockInfo) String() string {
	return fmt.Sprintf("%s (pid %d, %s, started %s ago)", i.Who, i.PID, i.Operation, time.Since(i.Created).Round(time.Second))
}

// Locker is held for the whole run.
type Locker interface {
	Acquire(ctx context.Context, operation string) (*LockInfo, error)
	Release(ctx context.Context) error
}

// LockedError names the holder of a lock.
type LockedError struct {
	Path   string
	Holder *LockInfo
}

func (e *LockedError) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("%s is locked by another process", e.Path)
	}
	return fmt.Sprintf("%s is locked by %s", e.Path, e.Holder)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// newLockInfo creates a new lock info struct with current process details
func newLockInfo(operation string) *LockInfo {
	hostname, _ := os.Hostname()
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	now := time.Now()
	return &LockInfo{
		ID:        fmt.Sprintf("%d-%d", os.Getpid(), now.UnixNano()),
		Operation: operation,
		Who:       fmt.Sprintf("%s@%s", username, hostname),
		Created:   now,
		PID:       os.Getpid(),
	}
}

func parseLockInfo(data []byte) *LockInfo {
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil || info.ID == "" {
		return nil
	}
	return &info
}
