// Package nginx renders Laravel virtual hosts and publishes them with a
// validate-then-reload discipline: a configuration that fails "nginx -t" is
// never left enabled.
package nginx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/provisioner"
)

var (
	ErrSiteAlreadyExists      = errors.New("site configuration already exists")
	ErrConfigValidationFailed = errors.New("nginx configuration test failed")
)

// Server is the running nginx instance.
type Server struct {
	Host     host.Host
	Services provisioner.Services
}

// NewServer creates a Server for h.
func NewServer(h host.Host) *Server {
	return &Server{Host: h, Services: provisioner.Services{Host: h}}
}

// TestConfig runs nginx -t.
func (s *Server) TestConfig(ctx context.Context) error {
	out, err := s.Host.Exec(ctx, host.Cmd("nginx", "-t"))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConfigValidationFailed, firstError(out, err))
	}
	return nil
}

// Reload reloads nginx.
func (s *Server) Reload(ctx context.Context) error {
	return s.Services.Reload(ctx, "nginx")
}

// Apply validates the configuration and reloads on success. On failure
// revert runs before the error is returned so nothing invalid stays live.
func (s *Server) Apply(ctx context.Context, revert func(context.Context) error) error {
	if err := s.TestConfig(ctx); err != nil {
		if revert != nil {
			if rerr := revert(context.WithoutCancel(ctx)); rerr != nil {
				return errors.Join(err, fmt.Errorf("revert: %w", rerr))
			}
		}
		return err
	}
	return s.Reload(ctx)
}

// firstError picks the "[emerg]" line nginx -t prints, falling back to err.
func firstError(out string, err error) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "[emerg]") || strings.Contains(line, "[error]") {
			return strings.TrimSpace(line)
		}
	}
	return err.Error()
}
