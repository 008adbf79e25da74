package host

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redentordev/laravel-vps/pkg/ssh"
	"github.com/redentordev/laravel-vps/pkg/telemetry"
	"go.opentelemetry.io/otel/codes"
)

// exit code used by file helpers to signal a missing path
const missingStatus = 44

// Session is the part of an SSH client Remote needs.
type Session interface {
	Address() string
	Exec(ctx context.Context, cmd string, stdin io.Reader) (string, error)
}

// Remote runs everything over SSH.
type Remote struct {
	session Session
	// Sudo prefixes every command with "sudo -n" for non-root logins.
	Sudo           bool
	DefaultTimeout time.Duration
}

// NewRemote creates a Remote host on top of an SSH session.
func NewRemote(s Session, sudo bool, defaultTimeout time.Duration) *Remote {
	return &Remote{session: s, Sudo: sudo, DefaultTimeout: defaultTimeout}
}

func (r *Remote) Name() string { return r.session.Address() }

func (r *Remote) shell(line string) string {
	if r.Sudo {
		return "sudo -n sh -c " + Quote(line)
	}
	return line
}

func (r *Remote) run(ctx context.Context, line string, stdin io.Reader, timeout time.Duration) (string, error) {
	if timeout == 0 {
		timeout = r.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := telemetry.TraceCommand(ctx, r.Name(), line)
	defer span.End()

	out, err := r.session.Exec(ctx, r.shell(line), stdin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "command failed")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%s: timed out after %s", line, timeout)
		}
	}
	return out, err
}

func (r *Remote) Exec(ctx context.Context, c Command) (string, error) {
	out, err := r.run(ctx, c.String(), nil, c.Timeout)
	if err != nil {
		return out, fmt.Errorf("%s: %w (%s)", c.String(), err, lastLines(out, 5))
	}
	return out, nil
}

func (r *Remote) fileOp(ctx context.Context, p, line string, stdin io.Reader) (string, error) {
	out, err := r.run(ctx, line, stdin, 0)
	if status, ok := ssh.ExitStatus(err); ok && status == missingStatus {
		return "", fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	if err != nil {
		return out, fmt.Errorf("%s: %w (%s)", p, err, lastLines(out, 3))
	}
	return out, nil
}

func guardExists(p string) string {
	q := Quote(p)
	return fmt.Sprintf("{ [ -e %s ] || [ -L %s ]; } || exit %d; ", q, q, missingStatus)
}

func (r *Remote) ReadFile(ctx context.Context, p string) ([]byte, error) {
	out, err := r.fileOp(ctx, p, guardExists(p)+"base64 "+Quote(p), nil)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(strings.Join(strings.Fields(out), ""))
}

func (r *Remote) WriteFile(ctx context.Context, p string, data []byte, mode os.FileMode) error {
	q := Quote(p)
	line := fmt.Sprintf("mkdir -p %s && base64 -d > %s && chmod %o %s", Quote(path.Dir(p)), q, mode.Perm(), q)
	_, err := r.fileOp(ctx, p, line, strings.NewReader(base64.StdEncoding.EncodeToString(data)))
	return err
}

func (r *Remote) Lstat(ctx context.Context, p string) (FileInfo, error) {
	out, err := r.fileOp(ctx, p, guardExists(p)+"stat -c '%F|%a' "+Quote(p), nil)
	if err != nil {
		return FileInfo{}, err
	}
	return parseStat(p, out)
}

func parseStat(p, out string) (FileInfo, error) {
	kind, perm, ok := strings.Cut(strings.TrimSpace(out), "|")
	if !ok {
		return FileInfo{}, fmt.Errorf("%s: unexpected stat output %q", p, out)
	}
	bits, err := strconv.ParseUint(perm, 8, 32)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: unexpected mode %q", p, perm)
	}
	fi := FileInfo{Path: p, Mode: os.FileMode(bits)}
	switch kind {
	case "directory":
		fi.IsDir = true
		fi.Mode |= os.ModeDir
	case "symbolic link":
		fi.IsSymlink = true
		fi.Mode |= os.ModeSymlink
	}
	return fi, nil
}

func (r *Remote) ReadDir(ctx context.Context, p string) ([]string, error) {
	out, err := r.fileOp(ctx, p, guardExists(p)+"ls -A1 "+Quote(p), nil)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, n := range strings.Split(out, "\n") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Remote) MkdirAll(ctx context.Context, p string, mode os.FileMode) error {
	_, err := r.fileOp(ctx, p, fmt.Sprintf("mkdir -p -m %o %s", mode.Perm(), Quote(p)), nil)
	return err
}

func (r *Remote) Remove(ctx context.Context, p string) error {
	q := Quote(p)
	_, err := r.fileOp(ctx, p, fmt.Sprintf("if [ -d %s ] && [ ! -L %s ]; then rmdir %s; else rm -f %s; fi", q, q, q, q), nil)
	return err
}

func (r *Remote) RemoveAll(ctx context.Context, p string) error {
	_, err := r.fileOp(ctx, p, "rm -rf "+Quote(p), nil)
	return err
}

func (r *Remote) Rename(ctx context.Context, from, to string) error {
	_, err := r.fileOp(ctx, from, guardExists(from)+"mv -fT "+Quote(from)+" "+Quote(to), nil)
	return err
}

func (r *Remote) Symlink(ctx context.Context, target, link string) error {
	_, err := r.fileOp(ctx, link, "ln -s "+Quote(target)+" "+Quote(link), nil)
	return err
}

func (r *Remote) Readlink(ctx context.Context, link string) (string, error) {
	out, err := r.fileOp(ctx, link, guardExists(link)+"readlink "+Quote(link), nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
