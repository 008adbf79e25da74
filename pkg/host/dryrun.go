package host

import (
	"context"
	"fmt"
	"os"
)

// DryRun reads from the wrapped host but only reports what it would change.
type DryRun struct {
	Host
	Report func(action string)
}

// NewDryRun wraps h. report receives one line per skipped action.
func NewDryRun(h Host, report func(action string)) *DryRun {
	return &DryRun{Host: h, Report: report}
}

func (d *DryRun) Name() string { return d.Host.Name() + " (dry run)" }

func (d *DryRun) say(format string, args ...any) {
	if d.Report != nil {
		d.Report(fmt.Sprintf(format, args...))
	}
}

// Exec runs read-only queries on the wrapped host and reports the rest.
func (d *DryRun) Exec(ctx context.Context, c Command) (string, error) {
	if c.ReadOnly {
		return d.Host.Exec(ctx, c)
	}
	d.say("would run: %s", c.String())
	return "", nil
}

func (d *DryRun) WriteFile(_ context.Context, path string, data []byte, mode os.FileMode) error {
	d.say("would write %s (%d bytes, mode %o)", path, len(data), mode.Perm())
	return nil
}

func (d *DryRun) MkdirAll(_ context.Context, path string, _ os.FileMode) error {
	d.say("would create directory %s", path)
	return nil
}

func (d *DryRun) Remove(_ context.Context, path string) error {
	d.say("would remove %s", path)
	return nil
}

func (d *DryRun) RemoveAll(_ context.Context, path string) error {
	d.say("would remove %s recursively", path)
	return nil
}

func (d *DryRun) Rename(_ context.Context, from, to string) error {
	d.say("would move %s to %s", from, to)
	return nil
}

func (d *DryRun) Symlink(_ context.Context, target, link string) error {
	d.say("would link %s -> %s", link, target)
	return nil
}

// IsDryRun reports whether h only pretends to change anything.
func IsDryRun(h Host) bool {
	_, ok := h.(*DryRun)
	return ok
}

// EffectiveUID asks the wrapped host; "id -u" has no side effects.
func (d *DryRun) EffectiveUID(ctx context.Context) (int, error) {
	return EffectiveUID(ctx, d.Host)
}
