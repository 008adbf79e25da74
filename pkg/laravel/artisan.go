// Package laravel configures a materialized project and drives artisan.
package laravel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redentordev/laravel-vps/pkg/host"
)

var (
	ErrKeyGeneration   = errors.New("php artisan key:generate failed")
	ErrMigrationFailed = errors.New("database migration failed")
)

// Artisan runs php artisan inside a project directory.
type Artisan struct {
	Host host.Host
	// PHP is the interpreter, e.g. php8.3, so the planned version is used
	// even when several are installed.
	PHP     string
	Timeout time.Duration
}

// NewArtisan uses the php<version> binary.
func NewArtisan(h host.Host, phpVersion string, timeout time.Duration) *Artisan {
	php := "php"
	if phpVersion != "" {
		php += phpVersion
	}
	return &Artisan{Host: h, PHP: php, Timeout: timeout}
}

// Run executes one artisan command non-interactively.
func (a *Artisan) Run(ctx context.Context, dir string, args ...string) (string, error) {
	argv := append([]string{"artisan"}, args...)
	argv = append(argv, "--no-interaction")
	return a.Host.Exec(ctx, host.Cmd(a.PHP, argv...).In(dir).WithTimeout(a.Timeout))
}

// GenerateKey sets APP_KEY in .env.
func (a *Artisan) GenerateKey(ctx context.Context, dir string) error {
	if _, err := a.Run(ctx, dir, "key:generate", "--force"); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return nil
}

// CacheConfig runs config:cache.
func (a *Artisan) CacheConfig(ctx context.Context, dir string) error {
	_, err := a.Run(ctx, dir, "config:cache")
	return err
}

// StorageLink creates the public/storage symlink.
func (a *Artisan) StorageLink(ctx context.Context, dir string) error {
	_, err := a.Run(ctx, dir, "storage:link")
	return err
}

// Migrate runs pending migrations. Failure is fatal to an install.
func (a *Artisan) Migrate(ctx context.Context, dir string) error {
	if _, err := a.Run(ctx, dir, "migrate", "--force"); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return nil
}

// Seed runs the database seeders.
func (a *Artisan) Seed(ctx context.Context, dir string) error {
	if _, err := a.Run(ctx, dir, "db:seed", "--force"); err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	return nil
}
