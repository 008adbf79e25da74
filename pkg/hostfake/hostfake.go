// Package hostfake provides an in-process host.Host for tests. Commands are
// recorded and answered by scripted responders; files live under a temp dir.
package hostfake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/redentordev/laravel-vps/pkg/host"
)

// Handler answers a command.
type Handler func(h *Host, c host.Command) (string, error)

type responder struct {
	match   string
	handler Handler
}

// Host is a fake host.Host.
type Host struct {
	Root string
	UID  int

	mu         sync.Mutex
	commands   []host.Command
	responders []responder
}

// New creates a fake rooted at a fresh temp dir. UID defaults to 0.
func New(t testing.TB) *Host {
	t.Helper()
	return &Host{Root: t.TempDir()}
}

// On registers a canned reply for commands whose shell line contains match.
// Later registrations win.
func (h *Host) On(match, out string, err error) *Host {
	return h.Handle(match, func(*Host, host.Command) (string, error) { return out, err })
}

// Handle registers a handler for commands whose shell line contains match.
func (h *Host) Handle(match string, fn Handler) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responders = append(h.responders, responder{match: match, handler: fn})
	return h
}

// Fail makes commands containing match fail with the given output.
func (h *Host) Fail(match, out string) *Host {
	return h.On(match, out, fmt.Errorf("exit status 1"))
}

// Missing makes "command -v name" fail.
func (h *Host) Missing(name string) *Host {
	return h.Fail("command -v "+name, "")
}

func (h *Host) Name() string { return "fake" }

func (h *Host) EffectiveUID(context.Context) (int, error) { return h.UID, nil }

func (h *Host) Exec(ctx context.Context, c host.Command) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line := c.String()

	h.mu.Lock()
	h.commands = append(h.commands, c)
	var fn Handler
	for i := len(h.responders) - 1; i >= 0; i-- {
		if strings.Contains(line, h.responders[i].match) {
			fn = h.responders[i].handler
			break
		}
	}
	h.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	out, err := fn(h, c)
	if err != nil {
		return out, fmt.Errorf("%s: %w", line, err)
	}
	return out, nil
}

// Commands returns every shell line run so far.
func (h *Host) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	lines := make([]string, len(h.commands))
	for i, c := range h.commands {
		lines[i] = c.String()
	}
	return lines
}

// Ran reports whether any command line contained substr.
func (h *Host) Ran(substr string) bool {
	for _, l := range h.Commands() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// IndexOf returns the position of the first command containing substr, or -1.
func (h *Host) IndexOf(substr string) int {
	for i, l := range h.Commands() {
		if strings.Contains(l, substr) {
			return i
		}
	}
	return -1
}

// LastIndexOf returns the position of the last command containing substr, or -1.
func (h *Host) LastIndexOf(substr string) int {
	lines := h.Commands()
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], substr) {
			return i
		}
	}
	return -1
}

// Path maps an absolute host path into the fake's root.
func (h *Host) Path(p string) string {
	return filepath.Join(h.Root, filepath.FromSlash(p))
}

// Put writes a file directly, for test setup.
func (h *Host) Put(t testing.TB, p, content string) {
	t.Helper()
	full := h.Path(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Get reads a file directly, returning "" if it does not exist.
func (h *Host) Get(p string) string {
	data, err := os.ReadFile(h.Path(p))
	if err != nil {
		return ""
	}
	return string(data)
}

func notExist(p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", p, host.ErrNotExist)
	}
	return err
}

func (h *Host) ReadFile(_ context.Context, p string) ([]byte, error) {
	data, err := os.ReadFile(h.Path(p))
	return data, notExist(p, err)
}

func (h *Host) WriteFile(_ context.Context, p string, data []byte, mode os.FileMode) error {
	full := h.Path(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, mode)
}

func (h *Host) Lstat(_ context.Context, p string) (host.FileInfo, error) {
	fi, err := os.Lstat(h.Path(p))
	if err != nil {
		return host.FileInfo{}, notExist(p, err)
	}
	return host.FileInfo{
		Path:      p,
		IsDir:     fi.IsDir(),
		IsSymlink: fi.Mode()&os.ModeSymlink != 0,
		Mode:      fi.Mode(),
	}, nil
}

func (h *Host) ReadDir(_ context.Context, p string) ([]string, error) {
	entries, err := os.ReadDir(h.Path(p))
	if err != nil {
		return nil, notExist(p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (h *Host) MkdirAll(_ context.Context, p string, mode os.FileMode) error {
	return os.MkdirAll(h.Path(p), mode)
}

func (h *Host) Remove(_ context.Context, p string) error {
	err := os.Remove(h.Path(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (h *Host) RemoveAll(_ context.Context, p string) error {
	return os.RemoveAll(h.Path(p))
}

func (h *Host) Rename(_ context.Context, from, to string) error {
	return notExist(from, os.Rename(h.Path(from), h.Path(to)))
}

// Symlink stores the target as given so Readlink returns host paths.
func (h *Host) Symlink(_ context.Context, target, link string) error {
	full := h.Path(link)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.Symlink(target, full)
}

func (h *Host) Readlink(_ context.Context, link string) (string, error) {
	target, err := os.Readlink(h.Path(link))
	return target, notExist(link, err)
}

var _ host.Host = (*Host)(nil)
var _ host.Identity = (*Host)(nil)
