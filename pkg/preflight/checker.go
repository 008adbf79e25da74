// Package preflight verifies that the target machine can be provisioned:
// enough privilege, outbound network access and a supported distribution.
// It never changes anything.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInsufficientPrivilege = errors.New("insufficient privilege: run as root")
	ErrNoConnectivity        = errors.New("no outbound network connectivity")
	ErrUnsupportedOS         = errors.New("unsupported operating system: Debian or Ubuntu required")
)

// Checker runs the precondition probes.
type Checker struct {
	Host host.Host
	// ProbeTargets are host:port pairs; reaching any one of them is enough.
	ProbeTargets []string
	ProbeTimeout time.Duration
	// Retries is how many more times the connectivity probe runs after a failure.
	Retries    uint64
	RetryDelay time.Duration
	// Sudo means commands are wrapped in "sudo -n", so privilege comes from sudo.
	Sudo bool

	os OSInfo
}

// NewChecker creates a Checker with two connectivity retries.
func NewChecker(h host.Host, targets []string, timeout time.Duration, sudo bool) *Checker {
	return &Checker{
		Host:         h,
		ProbeTargets: targets,
		ProbeTimeout: timeout,
		Retries:      2,
		RetryDelay:   time.Second,
		Sudo:         sudo,
	}
}

// OS returns the distribution found by the last Check.
func (c *Checker) OS() OSInfo {
	return c.os
}

// Check runs the probes concurrently and reports the first failure in the
// order privilege, connectivity, OS.
func (c *Checker) Check(ctx context.Context) error {
	var privErr, netErr, osErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		privErr = c.CheckPrivilege(gctx)
		return nil
	})
	g.Go(func() error {
		netErr = c.CheckConnectivity(gctx)
		return nil
	})
	g.Go(func() error {
		c.os, osErr = c.CheckOS(gctx)
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{privErr, netErr, osErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// CheckPrivilege requires an effective UID of 0. No escalation is attempted.
func (c *Checker) CheckPrivilege(ctx context.Context) error {
	uid, err := host.EffectiveUID(ctx, c.Host)
	if err != nil {
		if c.Sudo {
			return fmt.Errorf("%w: passwordless sudo is not available (%v)", ErrInsufficientPrivilege, err)
		}
		return fmt.Errorf("%w: %v", ErrInsufficientPrivilege, err)
	}
	if uid != 0 {
		return fmt.Errorf("%w (effective uid %d)", ErrInsufficientPrivilege, uid)
	}
	return nil
}

// CheckConnectivity opens a TCP connection from the target machine to any
// probe target, retrying with backoff.
func (c *Checker) CheckConnectivity(ctx context.Context) error {
	err := resilience.RetryWithBackoff(ctx, func() error {
		return c.probeOnce(ctx)
	},
		resilience.WithMaxRetries(c.Retries),
		resilience.WithInitialDelay(c.RetryDelay),
		resilience.WithMaxDelay(4*c.RetryDelay),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnectivity, err)
	}
	return nil
}

func (c *Checker) probeOnce(ctx context.Context) error {
	secs := int(c.ProbeTimeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	var errs []string
	for _, target := range c.ProbeTargets {
		h, port, err := net.SplitHostPort(target)
		if err != nil {
			return resilience.PermanentError(fmt.Errorf("bad probe target %q: %w", target, err))
		}
		probe := fmt.Sprintf("exec 3<>/dev/tcp/%s/%s", h, port)
		_, err = c.Host.Exec(ctx, host.Query("timeout", fmt.Sprint(secs), "bash", "-c", probe).WithTimeout(c.ProbeTimeout+time.Second))
		if err == nil {
			return nil
		}
		errs = append(errs, target)
	}
	return fmt.Errorf("could not reach %s", strings.Join(errs, ", "))
}

// CheckOS requires a Debian-family distribution with apt-get.
func (c *Checker) CheckOS(ctx context.Context) (OSInfo, error) {
	info, err := DetectOS(ctx, c.Host)
	if err != nil {
		return info, fmt.Errorf("%w: %v", ErrUnsupportedOS, err)
	}
	if info.Family != OSFamilyDebian {
		return info, fmt.Errorf("%w (found %s)", ErrUnsupportedOS, info)
	}
	if !host.CommandExists(ctx, c.Host, "apt-get") {
		return info, fmt.Errorf("%w: apt-get not found on %s", ErrUnsupportedOS, info)
	}
	return info, nil
}
