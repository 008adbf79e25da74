// Package adminpanel installs a per-project phpMyAdmin behind nginx.
package adminpanel

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/nginx"
	"github.com/redentordev/laravel-vps/pkg/plan"
	"github.com/redentordev/laravel-vps/pkg/provisioner"
	"github.com/redentordev/laravel-vps/pkg/rollback"
)

const (
	step        = "admin_panel"
	snippetName = "phpmyadmin.conf"
	htpasswd    = "phpmyadmin.htpasswd"
)

// ErrDownloadFailed is returned when phpMyAdmin cannot be fetched or unpacked.
var ErrDownloadFailed = errors.New("phpMyAdmin download failed")

// Panel describes an installed admin panel.
type Panel struct {
	Dir          string
	SnippetPath  string
	HtpasswdPath string
	Reused       bool
}

// Installer puts phpMyAdmin in <BaseDir>/phpmyadmin-<project> and exposes it
// under the site's alias.
type Installer struct {
	Host        host.Host
	Server      *nginx.Server
	Ledger      *rollback.Ledger
	Out         *formatter.Output
	BaseDir     string
	DownloadURL string
	WebUser     string
	Timeout     time.Duration
}

// DirFor returns where a project's panel is installed.
func (i *Installer) DirFor(project string) string {
	return path.Join(i.BaseDir, "phpmyadmin-"+project)
}

// Install downloads (or reuses) phpMyAdmin, writes its config and snippet,
// then validates and reloads nginx.
func (i *Installer) Install(ctx context.Context, p plan.Plan, site nginx.Site) (Panel, error) {
	panel := Panel{Dir: i.DirFor(p.ProjectName), SnippetPath: path.Join(site.SnippetsDir, snippetName)}

	reused, err := i.ensureSources(ctx, p.ProjectName, panel.Dir)
	if err != nil {
		return panel, err
	}
	panel.Reused = reused

	if err := i.writeConfig(ctx, p, panel.Dir); err != nil {
		return panel, err
	}

	if p.Admin.HasBasicAuth() {
		panel.HtpasswdPath = path.Join(site.SnippetsDir, htpasswd)
		if err := i.writeHtpasswd(ctx, panel.HtpasswdPath, p.Admin.BasicAuthUser, p.Admin.BasicAuthPassword); err != nil {
			return panel, err
		}
	}

	snippet, err := SnippetTemplate{
		Project:   p.ProjectName,
		Alias:     strings.Trim(p.Admin.Alias, "/"),
		Dir:       panel.Dir,
		FPMSocket: provisioner.FPMSocket(p.PHPVersion),
		Htpasswd:  panel.HtpasswdPath,
		AllowList: p.AllowList(),
	}.Render()
	if err != nil {
		return panel, err
	}
	if err := i.Host.WriteFile(ctx, panel.SnippetPath, []byte(snippet), 0o644); err != nil {
		return panel, fmt.Errorf("write %s: %w", panel.SnippetPath, err)
	}
	i.Ledger.Record(step, "remove admin snippet "+panel.SnippetPath, rollback.Remove(i.Host, panel.SnippetPath))

	revert := func(ctx context.Context) error {
		return i.Host.Remove(ctx, panel.SnippetPath)
	}
	if err := i.Server.Apply(ctx, revert); err != nil {
		return panel, err
	}

	if !p.Admin.HasAccessControl() {
		i.Out.Advisory("phpMyAdmin at /%s has no basic auth and no IP allow-list; anyone can reach its login page",
			strings.Trim(p.Admin.Alias, "/"))
	}
	return panel, nil
}

// ensureSources reports whether an existing install was reused.
func (i *Installer) ensureSources(ctx context.Context, project, dir string) (bool, error) {
	if ok, err := host.Exists(ctx, i.Host, path.Join(dir, "index.php")); err != nil {
		return false, err
	} else if ok {
		i.Out.Verbose("Reusing phpMyAdmin in %s", dir)
		return true, nil
	}

	if err := i.Host.MkdirAll(ctx, dir, 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", dir, err)
	}
	i.Ledger.Record(step, "remove "+dir, rollback.RemoveAll(i.Host, dir))

	i.Out.Step("Downloading phpMyAdmin")
	archive := "/tmp/phpmyadmin-" + project + ".tar.gz"
	defer func() { _ = i.Host.Remove(context.WithoutCancel(ctx), archive) }()

	for _, c := range []host.Command{
		host.Cmd("curl", "-fsSL", "-o", archive, i.DownloadURL).WithTimeout(i.Timeout),
		host.Cmd("tar", "-xzf", archive, "--strip-components=1", "-C", dir),
	} {
		if _, err := i.Host.Exec(ctx, c); err != nil {
			return false, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
	}
	return false, nil
}

func (i *Installer) writeConfig(ctx context.Context, p plan.Plan, dir string) error {
	cfgPath := path.Join(dir, "config.inc.php")
	if ok, err := host.Exists(ctx, i.Host, cfgPath); err != nil || ok {
		return err
	}

	secret, err := NewBlowfishSecret()
	if err != nil {
		return err
	}
	dbHost, dbPort := p.Database.Host, p.Database.Port
	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == 0 {
		dbPort = 3306
	}
	content, err := ConfigTemplate{BlowfishSecret: secret, DBHost: dbHost, DBPort: dbPort, Dir: dir}.Render()
	if err != nil {
		return err
	}
	if err := i.Host.WriteFile(ctx, cfgPath, []byte(content), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}

	tmp := path.Join(dir, "tmp")
	if err := i.Host.MkdirAll(ctx, tmp, 0o750); err != nil {
		return err
	}
	owner := "root:" + i.WebUser
	if _, err := i.Host.Exec(ctx, host.Cmd("chown", owner, cfgPath)); err != nil {
		return fmt.Errorf("chown %s: %w", cfgPath, err)
	}
	if _, err := i.Host.Exec(ctx, host.Cmd("chown", i.WebUser+":"+i.WebUser, tmp)); err != nil {
		return fmt.Errorf("chown %s: %w", tmp, err)
	}
	return nil
}

func (i *Installer) writeHtpasswd(ctx context.Context, file, user, password string) error {
	line, err := HtpasswdLine(user, password)
	if err != nil {
		return err
	}
	if err := i.Host.WriteFile(ctx, file, []byte(line), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	i.Ledger.Record(step, "remove "+file, rollback.Remove(i.Host, file))
	if _, err := i.Host.Exec(ctx, host.Cmd("chown", "root:"+i.WebUser, file)); err != nil {
		return fmt.Errorf("chown %s: %w", file, err)
	}
	return nil
}

// HtpasswdLine returns "user:<bcrypt hash>\n".
func HtpasswdLine(user, password string) (string, error) {
	if strings.ContainsAny(user, ":\n") {
		return "", fmt.Errorf("invalid basic auth user %q", user)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return user + ":" + string(hash) + "\n", nil
}
