// Package project produces the Laravel source tree: either a fresh skeleton
// from Composer or a clone of an existing repository.
package project

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/redentordev/laravel-vps/pkg/envfile"
	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/git"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/plan"
	"github.com/redentordev/laravel-vps/pkg/rollback"
)

var (
	ErrDirectoryNotEmpty          = errors.New("project directory exists and is not empty")
	ErrDependencyResolutionFailed = errors.New("composer could not resolve dependencies")
)

// Skeleton is the Composer package scaffolded for new projects.
const Skeleton = "laravel/laravel"

// Directory is a materialized project.
type Directory struct {
	Path string
	// Branch is the branch actually cloned, empty for scaffolds.
	Branch string
}

// Public is the web root nginx serves.
func (d Directory) Public() string { return path.Join(d.Path, "public") }

// Materializer creates the project directory.
type Materializer struct {
	Host            host.Host
	Git             *git.Client
	Ledger          *rollback.Ledger
	Out             *formatter.Output
	WebRoot         string
	ComposerTimeout time.Duration
}

// DirFor returns where a project lives.
func (m *Materializer) DirFor(p plan.Plan) string {
	return path.Join(m.WebRoot, p.ProjectName)
}

// Materialize checks the target is empty before writing anything, then
// scaffolds or clones into it.
func (m *Materializer) Materialize(ctx context.Context, p plan.Plan) (Directory, error) {
	dir := Directory{Path: m.DirFor(p)}

	existed, err := m.ensureEmpty(ctx, dir.Path)
	if err != nil {
		return dir, err
	}

	if existed {
		m.Ledger.Record("materialize", "empty directory "+dir.Path, func(ctx context.Context) error {
			if err := m.Host.RemoveAll(ctx, dir.Path); err != nil {
				return err
			}
			return m.Host.MkdirAll(ctx, dir.Path, 0o755)
		})
	} else {
		if err := m.Host.MkdirAll(ctx, dir.Path, 0o755); err != nil {
			return dir, fmt.Errorf("failed to create %s: %w", dir.Path, err)
		}
		m.Ledger.Record("materialize", "created directory "+dir.Path, rollback.RemoveAll(m.Host, dir.Path))
	}

	switch p.Method {
	case plan.MethodClone:
		branch, err := m.clone(ctx, p, dir.Path)
		if err != nil {
			return dir, err
		}
		dir.Branch = branch
		if err := m.composer(ctx, dir.Path, "install", "--no-interaction", "--prefer-dist", "--no-dev", "--optimize-autoloader"); err != nil {
			return dir, err
		}
	default:
		m.Out.Step("Creating a new %s project in %s", Skeleton, dir.Path)
		if err := m.composer(ctx, m.WebRoot, "create-project", "--no-interaction", "--prefer-dist", Skeleton, p.ProjectName); err != nil {
			return dir, err
		}
	}

	if err := m.seedEnv(ctx, dir.Path); err != nil {
		return dir, err
	}
	return dir, nil
}

// ensureEmpty reports whether dir already existed. It fails on a non-empty
// directory or a non-directory at that path.
func (m *Materializer) ensureEmpty(ctx context.Context, dir string) (bool, error) {
	fi, err := m.Host.Lstat(ctx, dir)
	if errors.Is(err, host.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !fi.IsDir {
		return true, fmt.Errorf("%w: %s is not a directory", ErrDirectoryNotEmpty, dir)
	}
	entries, err := m.Host.ReadDir(ctx, dir)
	if err != nil {
		return true, err
	}
	if len(entries) > 0 {
		return true, fmt.Errorf("%w: %s has %d entries", ErrDirectoryNotEmpty, dir, len(entries))
	}
	return true, nil
}

func (m *Materializer) clone(ctx context.Context, p plan.Plan, dir string) (string, error) {
	branch := p.Branch
	ok, err := m.Git.HasBranch(ctx, p.RepoURL, branch)
	if err != nil {
		return "", err
	}
	if !ok {
		def, err := m.Git.DefaultBranch(ctx, p.RepoURL)
		if err != nil {
			return "", err
		}
		m.Out.Warning("Branch %q not found on %s, using default branch %q", branch, p.RepoURL, def)
		branch = def
	}

	m.Out.Step("Cloning %s (%s) into %s", p.RepoURL, branch, dir)
	if err := m.Git.Clone(ctx, p.RepoURL, branch, dir); err != nil {
		return "", err
	}
	return branch, nil
}

func (m *Materializer) composer(ctx context.Context, dir string, args ...string) error {
	cmd := host.Cmd("composer", args...).
		In(dir).
		WithEnv("COMPOSER_ALLOW_SUPERUSER=1", "COMPOSER_NO_INTERACTION=1").
		WithTimeout(m.ComposerTimeout)
	if _, err := m.Host.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyResolutionFailed, err)
	}
	return nil
}

// seedEnv copies .env.example to .env unless a .env is already there.
func (m *Materializer) seedEnv(ctx context.Context, dir string) error {
	env := path.Join(dir, envfile.Name)
	if ok, err := host.Exists(ctx, m.Host, env); err != nil || ok {
		return err
	}
	example, err := m.Host.ReadFile(ctx, env+".example")
	if errors.Is(err, host.ErrNotExist) {
		m.Out.Verbose("No .env.example in %s", dir)
		return nil
	}
	if err != nil {
		return err
	}
	return m.Host.WriteFile(ctx, env, example, 0o640)
}
