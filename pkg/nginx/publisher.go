package nginx

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/plan"
	"github.com/redentordev/laravel-vps/pkg/project"
	"github.com/redentordev/laravel-vps/pkg/provisioner"
	"github.com/redentordev/laravel-vps/pkg/rollback"
)

const step = "publish"

// Site is a published virtual host.
type Site struct {
	Name          string
	AvailablePath string
	EnabledPath   string
	SnippetsDir   string
	// BackupPath is set when an existing file was replaced.
	BackupPath string
}

// Publisher installs the vhost for a project.
type Publisher struct {
	Host   host.Host
	Server *Server
	Ledger *rollback.Ledger
	Out    *formatter.Output

	SitesAvailable string
	SitesEnabled   string
	SnippetsRoot   string
	// DefaultSite is disabled when enabled, empty to leave it alone.
	DefaultSite string
}

// SiteFor returns the paths a project's site uses.
func (p *Publisher) SiteFor(name string) Site {
	return Site{
		Name:          name,
		AvailablePath: path.Join(p.SitesAvailable, name),
		EnabledPath:   path.Join(p.SitesEnabled, name),
		SnippetsDir:   path.Join(p.SnippetsRoot, name),
	}
}

// Publish writes, enables, validates and reloads. Every change is recorded
// in the ledger as soon as it is made.
func (p *Publisher) Publish(ctx context.Context, pl plan.Plan, dir project.Directory) (Site, error) {
	site := p.SiteFor(pl.ProjectName)

	exists, err := host.Exists(ctx, p.Host, site.AvailablePath)
	if err != nil {
		return site, err
	}
	if exists && !pl.OverwriteSite {
		return site, fmt.Errorf("%w: %s", ErrSiteAlreadyExists, site.AvailablePath)
	}

	content, err := SiteTemplate{
		ServerName:  pl.Domain,
		Root:        dir.Public(),
		FPMSocket:   provisioner.FPMSocket(pl.PHPVersion),
		SnippetsDir: site.SnippetsDir,
	}.Render()
	if err != nil {
		return site, err
	}

	// Recorded first so it runs last: once every file is back, nginx
	// serves the restored configuration.
	p.Ledger.Record(step, "reload nginx", func(ctx context.Context) error {
		return p.Server.Apply(ctx, nil)
	})

	if exists {
		site.BackupPath = site.AvailablePath + ".laravel-vps.bak"
		if err := p.Host.Rename(ctx, site.AvailablePath, site.BackupPath); err != nil {
			return site, fmt.Errorf("back up %s: %w", site.AvailablePath, err)
		}
		p.Ledger.Record(step, "restore "+site.AvailablePath+" from backup", rollback.Restore(p.Host, site.BackupPath, site.AvailablePath))
		p.Out.Warning("Replacing existing site %s (backup at %s)", site.AvailablePath, site.BackupPath)
	}

	if err := p.Host.WriteFile(ctx, site.AvailablePath, []byte(content), 0o644); err != nil {
		return site, fmt.Errorf("write %s: %w", site.AvailablePath, err)
	}
	if !exists {
		p.Ledger.Record(step, "remove site file "+site.AvailablePath, rollback.Remove(p.Host, site.AvailablePath))
	}

	if err := p.ensureSnippetsDir(ctx, site.SnippetsDir); err != nil {
		return site, err
	}

	linked, err := p.enable(ctx, site)
	if err != nil {
		return site, err
	}

	if err := p.disableDefault(ctx); err != nil {
		return site, err
	}

	revert := func(ctx context.Context) error {
		if linked {
			return p.Host.Remove(ctx, site.EnabledPath)
		}
		return nil
	}
	if err := p.Server.Apply(ctx, revert); err != nil {
		return site, err
	}
	return site, nil
}

// enable links the site. It reports whether a new link was created.
func (p *Publisher) enable(ctx context.Context, site Site) (bool, error) {
	if target, err := p.Host.Readlink(ctx, site.EnabledPath); err == nil && target == site.AvailablePath {
		p.Ledger.Record(step, "re-link "+site.EnabledPath, rollback.Relink(p.Host, site.AvailablePath, site.EnabledPath))
		return true, nil
	}
	if ok, err := host.Exists(ctx, p.Host, site.EnabledPath); err != nil {
		return false, err
	} else if ok {
		return false, fmt.Errorf("%w: %s", ErrSiteAlreadyExists, site.EnabledPath)
	}
	if err := p.Host.Symlink(ctx, site.AvailablePath, site.EnabledPath); err != nil {
		return false, fmt.Errorf("enable site: %w", err)
	}
	p.Ledger.Record(step, "remove link "+site.EnabledPath, rollback.Remove(p.Host, site.EnabledPath))
	return true, nil
}

func (p *Publisher) ensureSnippetsDir(ctx context.Context, dir string) error {
	ok, err := host.Exists(ctx, p.Host, dir)
	if err != nil || ok {
		return err
	}
	if err := p.Host.MkdirAll(ctx, dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	p.Ledger.Record(step, "remove snippets directory "+dir, rollback.RemoveAll(p.Host, dir))
	return nil
}

// disableDefault removes the distribution's default site link so it does
// not answer for the domain. A regular file is left alone.
func (p *Publisher) disableDefault(ctx context.Context) error {
	if p.DefaultSite == "" {
		return nil
	}
	link := path.Join(p.SitesEnabled, p.DefaultSite)
	fi, err := p.Host.Lstat(ctx, link)
	if errors.Is(err, host.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !fi.IsSymlink {
		p.Out.Warning("%s is not a symlink, leaving the default site enabled", link)
		return nil
	}
	target, err := p.Host.Readlink(ctx, link)
	if err != nil {
		return err
	}
	if err := p.Host.Remove(ctx, link); err != nil {
		return fmt.Errorf("disable default site: %w", err)
	}
	p.Ledger.Record(step, "re-enable default site", rollback.Relink(p.Host, target, link))
	p.Out.Verbose("Disabled default site %s", link)
	return nil
}
