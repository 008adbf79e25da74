// Package host abstracts the machine being provisioned.
//
// Every side effect of an installation (running a command, reading or writing
// a file, creating a symlink) goes through a Host. Local executes on the
// machine running laravel-vps; Remote executes over SSH. Tests use
// hostfake.Host.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNotExist is returned by ReadFile and Lstat when the path does not exist.
var ErrNotExist = errors.New("path does not exist")

// Command describes one external program invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string        // working directory, empty for the default
	Env     []string      // extra KEY=VALUE pairs
	Timeout time.Duration // zero means the host default
	// ReadOnly marks a query about state that existed before the run.
	// A dry run still executes it.
	ReadOnly bool
}

// Cmd builds a Command from a program name and arguments.
func Cmd(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// Query builds a read-only Command.
func Query(name string, args ...string) Command {
	return Command{Name: name, Args: args, ReadOnly: true}
}

// In returns a copy of c that runs in dir.
func (c Command) In(dir string) Command {
	c.Dir = dir
	return c
}

// WithEnv returns a copy of c with extra environment variables.
func (c Command) WithEnv(env ...string) Command {
	c.Env = append(append([]string{}, c.Env...), env...)
	return c
}

// WithTimeout returns a copy of c bounded by d.
func (c Command) WithTimeout(d time.Duration) Command {
	c.Timeout = d
	return c
}

// String renders the command as a POSIX shell line.
func (c Command) String() string {
	var b strings.Builder
	if c.Dir != "" {
		fmt.Fprintf(&b, "cd %s && ", Quote(c.Dir))
	}
	if len(c.Env) > 0 {
		b.WriteString("env ")
		for _, kv := range c.Env {
			b.WriteString(Quote(kv))
			b.WriteByte(' ')
		}
	}
	b.WriteString(Quote(c.Name))
	for _, a := range c.Args {
		b.WriteByte(' ')
		b.WriteString(Quote(a))
	}
	return b.String()
}

// FileInfo is the subset of file metadata the installer needs.
type FileInfo struct {
	Path      string
	IsDir     bool
	IsSymlink bool
	Mode      os.FileMode
}

// Host is the machine being provisioned.
type Host interface {
	// Name identifies the host in logs ("local" or user@host:port).
	Name() string

	// Exec runs a command and returns its combined output. The output is
	// returned even on failure since it usually carries the reason.
	Exec(ctx context.Context, cmd Command) (string, error)

	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error
	Lstat(ctx context.Context, path string) (FileInfo, error)
	ReadDir(ctx context.Context, path string) ([]string, error)
	MkdirAll(ctx context.Context, path string, mode os.FileMode) error
	Remove(ctx context.Context, path string) error
	RemoveAll(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	Symlink(ctx context.Context, target, link string) error
	Readlink(ctx context.Context, link string) (string, error)
}

// Identity is implemented by hosts that know their effective user without
// running a command.
type Identity interface {
	EffectiveUID(ctx context.Context) (int, error)
}

// EffectiveUID returns the user ID commands on h run as.
func EffectiveUID(ctx context.Context, h Host) (int, error) {
	if id, ok := h.(Identity); ok {
		return id.EffectiveUID(ctx)
	}
	out, err := h.Exec(ctx, Query("id", "-u"))
	if err != nil {
		return -1, err
	}
	uid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return -1, fmt.Errorf("unexpected id -u output %q", strings.TrimSpace(out))
	}
	return uid, nil
}

// Exists reports whether path exists on h. Dangling symlinks count as existing.
func Exists(ctx context.Context, h Host, path string) (bool, error) {
	_, err := h.Lstat(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return false, err
}

// CommandExists reports whether a program is on the host's PATH.
func CommandExists(ctx context.Context, h Host, name string) bool {
	_, err := h.Exec(ctx, Query("sh", "-c", "command -v "+Quote(name)))
	return err == nil
}

// Quote quotes s for safe use as a single POSIX shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune("-_./:=@,+%^", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
