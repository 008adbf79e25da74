// Package git runs the git operations a clone install needs on the target host.
package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redentordev/laravel-vps/pkg/host"
)

// ErrBranchNotFound is returned when neither the requested branch nor a
// default branch can be resolved on the remote.
var ErrBranchNotFound = errors.New("branch not found on remote")

// Client handles Git operations
type Client struct {
	host    host.Host
	timeout time.Duration
}

// NewClient creates a new Git client
func NewClient(h host.Host, timeout time.Duration) *Client {
	return &Client{host: h, timeout: timeout}
}

// git never prompts: a private repo without credentials must fail, not hang.
func (c *Client) git(args ...string) host.Command {
	return host.Cmd("git", args...).WithEnv("GIT_TERMINAL_PROMPT=0").WithTimeout(c.timeout)
}

// query is git for commands that only read.
func (c *Client) query(args ...string) host.Command {
	cmd := c.git(args...)
	cmd.ReadOnly = true
	return cmd
}

// RemoteBranches lists the branch heads of a remote repository.
func (c *Client) RemoteBranches(ctx context.Context, repo string) ([]string, error) {
	out, err := c.host.Exec(ctx, c.query("ls-remote", "--heads", "--", repo))
	if err != nil {
		return nil, fmt.Errorf("failed to list remote branches: %w", err)
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		if name, ok := strings.CutPrefix(fields[1], "refs/heads/"); ok {
			branches = append(branches, name)
		}
	}
	return branches, nil
}

// HasBranch reports whether repo has branch.
func (c *Client) HasBranch(ctx context.Context, repo, branch string) (bool, error) {
	branches, err := c.RemoteBranches(ctx, repo)
	if err != nil {
		return false, err
	}
	for _, b := range branches {
		if b == branch {
			return true, nil
		}
	}
	return false, nil
}

// DefaultBranch returns the branch the remote HEAD points at.
func (c *Client) DefaultBranch(ctx context.Context, repo string) (string, error) {
	out, err := c.host.Exec(ctx, c.query("ls-remote", "--symref", "--", repo, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve default branch: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		// ref: refs/heads/main	HEAD
		if rest, ok := strings.CutPrefix(line, "ref: refs/heads/"); ok {
			if name, _, ok := strings.Cut(rest, "\t"); ok {
				return strings.TrimSpace(name), nil
			}
			return strings.Fields(rest)[0], nil
		}
	}
	return "", fmt.Errorf("%w: remote %s has no symbolic HEAD", ErrBranchNotFound, repo)
}

// Clone clones one branch of repo into dir. An empty branch clones the default branch.
func (c *Client) Clone(ctx context.Context, repo, branch, dir string) error {
	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch, "--single-branch")
	}
	args = append(args, "--", repo, dir)
	if _, err := c.host.Exec(ctx, c.git(args...)); err != nil {
		return fmt.Errorf("failed to clone %s: %w", repo, err)
	}
	return nil
}

// CommitInfo describes the checked-out commit.
type CommitInfo struct {
	ShortHash string
	Message   string
	Branch    string
}

// GetCommitInfo returns the commit checked out in dir.
func (c *Client) GetCommitInfo(ctx context.Context, dir string) (*CommitInfo, error) {
	out, err := c.host.Exec(ctx, c.query("log", "-1", "--pretty=%h%n%s").In(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to get current commit: %w", err)
	}
	hash, msg, _ := strings.Cut(strings.TrimSpace(out), "\n")

	branch, err := c.host.Exec(ctx, c.query("rev-parse", "--abbrev-ref", "HEAD").In(dir))
	if err != nil {
		branch = "unknown"
	}
	return &CommitInfo{
		ShortHash: strings.TrimSpace(hash),
		Message:   strings.TrimSpace(msg),
		Branch:    strings.TrimSpace(branch),
	}, nil
}
