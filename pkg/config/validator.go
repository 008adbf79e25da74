package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
)

// Validate rejects configurations the installer cannot run with.
func Validate(cfg *Config) error {
	for name, p := range map[string]string{
		"paths.web_root":        cfg.Paths.WebRoot,
		"paths.sites_available": cfg.Paths.SitesAvailable,
		"paths.sites_enabled":   cfg.Paths.SitesEnabled,
		"paths.snippets":        cfg.Paths.Snippets,
		"paths.phpmyadmin_base": cfg.Paths.PhpMyAdmin,
		"paths.lock_file":       cfg.Paths.LockFile,
		"paths.state_dir":       cfg.Paths.StateDir,
	} {
		if !path.IsAbs(p) {
			return fmt.Errorf("%s must be an absolute path, got %q", name, p)
		}
	}
	if cfg.Paths.WebUser == "" {
		return fmt.Errorf("paths.web_user is required")
	}

	if cfg.Timeouts.Default <= 0 {
		return fmt.Errorf("timeouts.default must be positive")
	}
	if cfg.Timeouts.Probe <= 0 {
		return fmt.Errorf("timeouts.probe must be positive")
	}

	if len(cfg.Network.ProbeTargets) == 0 {
		return fmt.Errorf("network.probe_targets needs at least one host:port")
	}
	for _, t := range append(append([]string{}, cfg.Network.ProbeTargets...), cfg.Network.Resolvers...) {
		if _, _, err := net.SplitHostPort(t); err != nil {
			return fmt.Errorf("invalid host:port %q: %w", t, err)
		}
	}
	for _, s := range cfg.Network.IPServices {
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("network.ip_services: %q is not an http(s) URL", s)
		}
	}

	if cfg.SSH.Target != "" {
		if _, _, err := SplitTarget(cfg.SSH.Target); err != nil {
			return err
		}
		if cfg.SSH.Port <= 0 || cfg.SSH.Port > 65535 {
			return fmt.Errorf("ssh.port %d is out of range", cfg.SSH.Port)
		}
	}

	return nil
}

// SplitTarget splits user@host; the user defaults to root.
func SplitTarget(target string) (user, host string, err error) {
	user, host, found := strings.Cut(target, "@")
	if !found {
		user, host = "root", target
	}
	if host == "" || user == "" || strings.ContainsAny(host, " /") {
		return "", "", fmt.Errorf("invalid SSH target %q, want user@host", target)
	}
	return user, host, nil
}
