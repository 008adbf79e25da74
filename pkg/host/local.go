package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/redentordev/laravel-vps/pkg/telemetry"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sys/unix"
)

// Local runs everything on the current machine.
type Local struct {
	// DefaultTimeout bounds commands that do not set their own timeout.
	DefaultTimeout time.Duration
}

// NewLocal creates a Local host.
func NewLocal(defaultTimeout time.Duration) *Local {
	return &Local{DefaultTimeout: defaultTimeout}
}

func (l *Local) Name() string { return "local" }

// EffectiveUID reports the effective user ID of this process.
func (l *Local) EffectiveUID(context.Context) (int, error) {
	return unix.Geteuid(), nil
}

func (l *Local) Exec(ctx context.Context, c Command) (string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = l.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := telemetry.TraceCommand(ctx, l.Name(), c.String())
	defer span.End()

	//nolint:gosec // G204: command lines are built by installer-owned call sites.
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "command failed")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return string(out), fmt.Errorf("%s: timed out after %s", c.String(), timeout)
		}
		return string(out), fmt.Errorf("%s: %w (%s)", c.String(), err, strings.TrimSpace(lastLines(string(out), 5)))
	}
	return string(out), nil
}

func (l *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
	}
	return data, err
}

func (l *Local) WriteFile(_ context.Context, path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, mode)
}

func (l *Local) Lstat(_ context.Context, path string) (FileInfo, error) {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return FileInfo{}, fmt.Errorf("%s: %w", path, ErrNotExist)
	}
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Path:      path,
		IsDir:     fi.IsDir(),
		IsSymlink: fi.Mode()&os.ModeSymlink != 0,
		Mode:      fi.Mode(),
	}, nil
}

func (l *Local) ReadDir(_ context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (l *Local) MkdirAll(_ context.Context, path string, mode os.FileMode) error {
	return os.MkdirAll(path, mode)
}

func (l *Local) Remove(_ context.Context, path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Local) RemoveAll(_ context.Context, path string) error {
	return os.RemoveAll(path)
}

func (l *Local) Rename(_ context.Context, from, to string) error {
	return os.Rename(from, to)
}

func (l *Local) Symlink(_ context.Context, target, link string) error {
	return os.Symlink(target, link)
}

func (l *Local) Readlink(_ context.Context, link string) (string, error) {
	return os.Readlink(link)
}

// lastLines keeps error messages short when a tool prints a wall of output.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
