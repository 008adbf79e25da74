package provisioner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/resilience"
)

// PackageManager is the part of the OS package manager the stack needs.
type PackageManager interface {
	Update(ctx context.Context) error
	Install(ctx context.Context, packages ...string) error
	Installed(ctx context.Context, pkg string) bool
	Available(ctx context.Context, pkg string) (bool, error)
}

// AptManager drives apt-get on a Debian-family host.
type AptManager struct {
	Host    host.Host
	Timeout time.Duration
	// LockRetries bounds retries while another apt process holds the dpkg lock.
	LockRetries uint64
	RetryDelay  time.Duration
}

// NewAptManager creates an AptManager.
func NewAptManager(h host.Host, timeout time.Duration) *AptManager {
	return &AptManager{Host: h, Timeout: timeout, LockRetries: 5, RetryDelay: 5 * time.Second}
}

func (a *AptManager) apt(args ...string) host.Command {
	return host.Cmd("apt-get", args...).
		WithEnv("DEBIAN_FRONTEND=noninteractive").
		WithTimeout(a.Timeout)
}

func isLockContention(out string) bool {
	return strings.Contains(out, "Could not get lock") || strings.Contains(out, "Unable to acquire the dpkg frontend lock")
}

// run retries only while the dpkg lock is busy, e.g. unattended-upgrades on a fresh VPS.
func (a *AptManager) run(ctx context.Context, c host.Command) error {
	return resilience.RetryWithBackoff(ctx, func() error {
		out, err := a.Host.Exec(ctx, c)
		if err != nil && !isLockContention(out) {
			return resilience.PermanentError(err)
		}
		return err
	},
		resilience.WithMaxRetries(a.LockRetries),
		resilience.WithInitialDelay(a.RetryDelay),
		resilience.WithMaxElapsed(0),
	)
}

func (a *AptManager) Update(ctx context.Context) error {
	if err := a.run(ctx, a.apt("update", "-y")); err != nil {
		return fmt.Errorf("apt-get update: %w", err)
	}
	return nil
}

// Install is a no-op for packages that are already installed.
func (a *AptManager) Install(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}
	args := append([]string{"install", "-y", "--no-install-recommends"}, packages...)
	if err := a.run(ctx, a.apt(args...)); err != nil {
		return fmt.Errorf("apt-get install %s: %w", strings.Join(packages, " "), err)
	}
	return nil
}

func (a *AptManager) Installed(ctx context.Context, pkg string) bool {
	out, err := a.Host.Exec(ctx, host.Query("dpkg-query", "-W", "-f=${Status}", pkg))
	return err == nil && strings.Contains(out, "install ok installed")
}

// Available reports whether the configured sources offer an installable candidate.
func (a *AptManager) Available(ctx context.Context, pkg string) (bool, error) {
	out, err := a.Host.Exec(ctx, host.Query("apt-cache", "policy", pkg))
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Candidate:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Candidate:")) != "(none)", nil
		}
	}
	return false, nil
}
