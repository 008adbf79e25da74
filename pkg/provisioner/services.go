package provisioner

import (
	"context"
	"fmt"

	"github.com/redentordev/laravel-vps/pkg/host"
)

// Services wraps systemctl.
type Services struct {
	Host host.Host
}

// EnableNow enables a unit at boot and starts it.
func (s Services) EnableNow(ctx context.Context, unit string) error {
	if _, err := s.Host.Exec(ctx, host.Cmd("systemctl", "enable", "--now", unit)); err != nil {
		return fmt.Errorf("enable %s: %w", unit, err)
	}
	return nil
}

// Restart restarts a unit.
func (s Services) Restart(ctx context.Context, unit string) error {
	if _, err := s.Host.Exec(ctx, host.Cmd("systemctl", "restart", unit)); err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	return nil
}

// Reload reloads a unit's configuration without dropping connections.
func (s Services) Reload(ctx context.Context, unit string) error {
	if _, err := s.Host.Exec(ctx, host.Cmd("systemctl", "reload", unit)); err != nil {
		return fmt.Errorf("reload %s: %w", unit, err)
	}
	return nil
}

// IsActive reports whether a unit is running.
func (s Services) IsActive(ctx context.Context, unit string) bool {
	_, err := s.Host.Exec(ctx, host.Cmd("systemctl", "is-active", "--quiet", unit))
	return err == nil
}
