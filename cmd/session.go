package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/redentordev/laravel-vps/pkg/config"
	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/ssh"
	"github.com/redentordev/laravel-vps/pkg/state"
)

// session is the configuration and host one command works with.
type session struct {
	cfg    *config.Config
	host   host.Host
	out    *formatter.Output
	client *ssh.Client
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openSession connects to the target. The caller must Close it.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, out: formatter.New(cfg.Verbose, cfg.NoColor)}

	if cfg.Remote() {
		user, addr, err := config.SplitTarget(cfg.SSH.Target)
		if err != nil {
			return nil, err
		}
		mode, err := ssh.ParseHostKeyMode(cfg.SSH.HostKeyMode)
		if err != nil {
			return nil, err
		}
		if mode == ssh.HostKeyModeInsecure {
			fmt.Fprintln(os.Stderr, "Warning: SSH host key verification is disabled. This is insecure!")
		}
		client, err := ssh.NewClient(ssh.Config{
			Host:        addr,
			Port:        cfg.SSH.Port,
			User:        user,
			KeyPath:     cfg.SSH.Key,
			HostKeyMode: mode,
		})
		if err != nil {
			return nil, err
		}
		s.out.Verbose("Connecting to %s", client.Address())
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", client.Address(), err)
		}
		s.client = client
		s.host = host.NewRemote(client, cfg.SSH.Sudo, cfg.Timeouts.Default)
	} else {
		s.host = host.NewLocal(cfg.Timeouts.Default)
	}

	if cfg.DryRun {
		s.host = host.NewDryRun(s.host, func(action string) {
			s.out.Info("[dry-run] %s", action)
		})
	}
	return s, nil
}

// locker guards the target against a second run: flock on the local
// machine, an atomic directory over SSH.
func (s *session) locker() state.Locker {
	if s.cfg.Remote() || s.cfg.DryRun {
		return state.NewHostLock(s.host, s.cfg.Paths.LockFile)
	}
	return state.NewFileLock(s.cfg.Paths.LockFile)
}

func (s *session) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
}
