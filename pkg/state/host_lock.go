package state

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/redentordev/laravel-vps/pkg/host"
)

// HostLock locks a remote server. mkdir is atomic, so the directory acts as
// the lock and holds an info file naming the owner. A lock older than
// LockTimeout is treated as abandoned.
type HostLock struct {
	host host.Host
	dir  string
	info *LockInfo
	now  func() time.Time
}

// NewHostLock creates a lock next to path on h.
func NewHostLock(h host.Host, path string) *HostLock {
	return &HostLock{host: h, dir: path + ".d", now: time.Now}
}

func (l *HostLock) infoPath() string { return path.Join(l.dir, "owner.json") }

func (l *HostLock) Acquire(ctx context.Context, operation string) (*LockInfo, error) {
	if err := l.host.MkdirAll(ctx, path.Dir(l.dir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	if out, err := l.host.Exec(ctx, host.Cmd("mkdir", l.dir)); err != nil {
		holder := l.holder(ctx)
		if holder != nil && l.now().Sub(holder.Created) > LockTimeout {
			if rmErr := l.host.RemoveAll(ctx, l.dir); rmErr != nil {
				return nil, fmt.Errorf("failed to remove stale lock: %w", rmErr)
			}
			return l.Acquire(ctx, operation)
		}
		if holder == nil && !strings.Contains(out, "File exists") {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		return nil, &LockedError{Path: l.dir, Holder: holder}
	}

	info := newLockInfo(operation)
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	if err := l.host.WriteFile(ctx, l.infoPath(), data, 0o644); err != nil {
		_ = l.host.RemoveAll(ctx, l.dir)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	l.info = info
	return info, nil
}

func (l *HostLock) Release(ctx context.Context) error {
	if l.info == nil {
		return nil
	}
	current := l.holder(ctx)
	if current != nil && current.ID != l.info.ID {
		return fmt.Errorf("cannot release lock: lock ID mismatch (held by %s)", current.Who)
	}
	l.info = nil
	return l.host.RemoveAll(context.WithoutCancel(ctx), l.dir)
}

func (l *HostLock) holder(ctx context.Context) *LockInfo {
	data, err := l.host.ReadFile(ctx, l.infoPath())
	if err != nil {
		return nil
	}
	return parseLockInfo(data)
}
