// Package provisioner installs and verifies the server packages a Laravel
// site needs: Nginx, MySQL or MariaDB, PHP-FPM, Composer and Certbot.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/resilience"
)

var (
	ErrStackVerificationFailed = errors.New("package stack verification failed")
	ErrPHPUnavailable          = errors.New("requested PHP version is not available")
)

// PHPExtensions are installed as php<ver>-<ext>.
var PHPExtensions = []string{"fpm", "cli", "common", "mysql", "mbstring", "xml", "curl", "zip", "bcmath", "intl", "gd"}

// BasePackages are version independent.
var BasePackages = []string{"nginx", "git", "curl", "unzip", "tar", "ca-certificates", "certbot", "python3-certbot-nginx"}

// FPMSocket returns the PHP-FPM socket path for a version.
func FPMSocket(phpVersion string) string {
	return fmt.Sprintf("/run/php/php%s-fpm.sock", phpVersion)
}

// FPMService returns the PHP-FPM systemd unit for a version.
func FPMService(phpVersion string) string {
	return fmt.Sprintf("php%s-fpm", phpVersion)
}

// Distro is what the stack needs to know about the OS.
type Distro struct {
	Ubuntu   bool
	Codename string
}

// Stack ensures the package stack is installed, enabled and running.
type Stack struct {
	Host     host.Host
	Packages PackageManager
	Services Services
	Distro   Distro
	Out      *formatter.Output

	ComposerTimeout time.Duration
	// SocketWait bounds how long to wait for the FPM socket after a restart.
	SocketWait time.Duration

	// DatabaseService is set by Ensure to "mysql" or "mariadb".
	DatabaseService string
}

// NewStack creates a Stack using apt.
func NewStack(h host.Host, d Distro, out *formatter.Output, packageTimeout, composerTimeout time.Duration) *Stack {
	return &Stack{
		Host:            h,
		Packages:        NewAptManager(h, packageTimeout),
		Services:        Services{Host: h},
		Distro:          d,
		Out:             out,
		ComposerTimeout: composerTimeout,
		SocketWait:      10 * time.Second,
	}
}

// Ensure installs everything for phpVersion. Packages that are already
// present count as success. Afterwards the FPM socket must exist.
func (s *Stack) Ensure(ctx context.Context, phpVersion string) error {
	fpm := "php" + phpVersion + "-fpm"

	available, err := s.Packages.Available(ctx, fpm)
	if err != nil {
		return fmt.Errorf("check %s: %w", fpm, err)
	}
	if !available {
		s.Out.Step("PHP %s is not in the distribution archive, adding the ondrej/php source", phpVersion)
		if err := s.addPHPSource(ctx); err != nil {
			return err
		}
	}

	if err := s.Packages.Update(ctx); err != nil {
		return err
	}
	// A dry run never adds the source, so the candidate cannot appear.
	if !available && !host.IsDryRun(s.Host) {
		if available, err = s.Packages.Available(ctx, fpm); err != nil || !available {
			return fmt.Errorf("%w: %s has no install candidate", ErrPHPUnavailable, fpm)
		}
	}

	dbServer, err := s.databasePackage(ctx)
	if err != nil {
		return err
	}

	pkgs := append([]string{}, BasePackages...)
	pkgs = append(pkgs, dbServer)
	for _, ext := range PHPExtensions {
		pkgs = append(pkgs, "php"+phpVersion+"-"+ext)
	}
	s.Out.Step("Installing %d packages", len(pkgs))
	if err := s.Packages.Install(ctx, pkgs...); err != nil {
		return err
	}

	for _, unit := range []string{"nginx", s.DatabaseService, FPMService(phpVersion)} {
		if err := s.Services.EnableNow(ctx, unit); err != nil {
			return err
		}
	}
	if err := s.Services.Restart(ctx, FPMService(phpVersion)); err != nil {
		return err
	}
	for _, unit := range []string{"nginx", s.DatabaseService} {
		if !s.Services.IsActive(ctx, unit) {
			return fmt.Errorf("%w: %s is not running", ErrStackVerificationFailed, unit)
		}
	}

	if err := s.verifySocket(ctx, phpVersion); err != nil {
		return err
	}

	return s.ensureComposer(ctx)
}

// databasePackage prefers mysql-server and falls back to mariadb-server,
// which is what Debian ships.
func (s *Stack) databasePackage(ctx context.Context) (string, error) {
	if s.Packages.Installed(ctx, "mariadb-server") {
		s.DatabaseService = "mariadb"
		return "mariadb-server", nil
	}
	ok, err := s.Packages.Available(ctx, "mysql-server")
	if err != nil {
		return "", err
	}
	if ok {
		s.DatabaseService = "mysql"
		return "mysql-server", nil
	}
	s.DatabaseService = "mariadb"
	return "mariadb-server", nil
}

func (s *Stack) addPHPSource(ctx context.Context) error {
	if s.Distro.Ubuntu {
		if err := s.Packages.Install(ctx, "software-properties-common", "ca-certificates"); err != nil {
			return err
		}
		if _, err := s.Host.Exec(ctx, host.Cmd("add-apt-repository", "-y", "ppa:ondrej/php")); err != nil {
			return fmt.Errorf("add ppa:ondrej/php: %w", err)
		}
		return nil
	}

	// Debian: the same packages come from packages.sury.org.
	if err := s.Packages.Install(ctx, "ca-certificates", "curl", "lsb-release"); err != nil {
		return err
	}
	const (
		keyringDeb = "/tmp/debsuryorg-archive-keyring.deb"
		keyring    = "/usr/share/keyrings/deb.sury.org-php.gpg"
	)
	for _, c := range []host.Command{
		host.Cmd("curl", "-fsSLo", keyringDeb, "https://packages.sury.org/debsuryorg-archive-keyring.deb"),
		host.Cmd("dpkg", "-i", keyringDeb),
	} {
		if _, err := s.Host.Exec(ctx, c); err != nil {
			return fmt.Errorf("install sury keyring: %w", err)
		}
	}
	_ = s.Host.Remove(ctx, keyringDeb)
	line := fmt.Sprintf("deb [signed-by=%s] https://packages.sury.org/php/ %s main\n", keyring, s.Distro.Codename)
	if err := s.Host.WriteFile(ctx, "/etc/apt/sources.list.d/php.list", []byte(line), 0o644); err != nil {
		return fmt.Errorf("write php source list: %w", err)
	}
	return nil
}

func (s *Stack) verifySocket(ctx context.Context, phpVersion string) error {
	sock := FPMSocket(phpVersion)
	err := resilience.RetryWithBackoff(ctx, func() error {
		_, err := s.Host.Exec(ctx, host.Cmd("test", "-S", sock))
		return err
	},
		resilience.WithMaxRetries(8),
		resilience.WithInitialDelay(250*time.Millisecond),
		resilience.WithMaxDelay(2*time.Second),
		resilience.WithMaxElapsed(s.SocketWait),
	)
	if err != nil {
		return fmt.Errorf("%w: %s not found", ErrStackVerificationFailed, sock)
	}
	return nil
}

func (s *Stack) ensureComposer(ctx context.Context) error {
	if host.CommandExists(ctx, s.Host, "composer") {
		return nil
	}
	s.Out.Step("Installing Composer")
	const installer = "/tmp/composer-setup.php"
	steps := []host.Command{
		host.Cmd("curl", "-fsSL", "https://getcomposer.org/installer", "-o", installer),
		host.Cmd("php", installer, "--quiet", "--install-dir=/usr/local/bin", "--filename=composer").WithTimeout(s.ComposerTimeout),
	}
	for _, c := range steps {
		if _, err := s.Host.Exec(ctx, c); err != nil {
			_ = s.Host.Remove(ctx, installer)
			return fmt.Errorf("install composer: %w", err)
		}
	}
	_ = s.Host.Remove(ctx, installer)

	if _, err := s.Host.Exec(ctx, host.Cmd("composer", "--version", "--no-ansi").WithEnv("COMPOSER_ALLOW_SUPERUSER=1")); err != nil {
		return fmt.Errorf("%w: composer not runnable: %v", ErrStackVerificationFailed, err)
	}
	return nil
}
