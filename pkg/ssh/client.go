// Package ssh connects to the server being provisioned when laravel-vps runs
// from a workstation instead of on the server itself.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redentordev/laravel-vps/pkg/resilience"
	"golang.org/x/crypto/ssh"
)

// Config describes how to reach the server.
type Config struct {
	Host        string
	Port        int
	User        string
	KeyPath     string // empty tries ~/.ssh/id_ed25519 then ~/.ssh/id_rsa
	HostKeyMode HostKeyMode
	// KnownHostsPath is where first-use keys are recorded.
	KnownHostsPath string
	DialTimeout    time.Duration
}

// Client wraps an SSH connection.
type Client struct {
	cfg    Config
	config *ssh.ClientConfig
	conn   *ssh.Client
	mu     sync.Mutex
}

// NewClient parses the key and prepares host key verification. It does not dial.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}

	signer, err := loadSigner(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	verifier, err := NewHostKeyVerifier(cfg.HostKeyMode, cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg: cfg,
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: verifier.Callback(),
			Timeout:         cfg.DialTimeout,
			ClientVersion:   "SSH-2.0-laravel-vps",
		},
	}, nil
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	candidates := []string{keyPath}
	if keyPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		candidates = []string{
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_rsa"),
		}
	}

	var lastErr error
	for _, p := range candidates {
		key, err := os.ReadFile(p)
		if err != nil {
			lastErr = fmt.Errorf("failed to read SSH key: %w", err)
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key %s: %w", p, err)
		}
		return signer, nil
	}
	return nil, lastErr
}

// Address returns user@host:port.
func (c *Client) Address() string {
	return fmt.Sprintf("%s@%s:%d", c.cfg.User, c.cfg.Host, c.cfg.Port)
}

// Connect dials the server, retrying transient network failures.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprint(c.cfg.Port))
	return resilience.RetryWithBackoff(ctx, func() error {
		dialer := &net.Dialer{Timeout: c.cfg.DialTimeout, KeepAlive: 30 * time.Second}
		tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("TCP dial failed: %w", err)
		}

		sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, c.config)
		if err != nil {
			tcpConn.Close()
			// Authentication and host key problems do not fix themselves.
			return resilience.PermanentError(fmt.Errorf("SSH handshake failed: %w", err))
		}
		c.conn = ssh.NewClient(sshConn, chans, reqs)
		return nil
	}, resilience.WithMaxRetries(2), resilience.WithInitialDelay(time.Second))
}

// Close closes the SSH connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// ExitStatus returns the remote exit code carried by err, if any.
func ExitStatus(err error) (int, bool) {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), true
	}
	return 0, false
}

// Exec runs a shell line on the server and returns its combined output.
// stdin may be nil.
func (c *Client) Exec(ctx context.Context, cmd string, stdin io.Reader) (string, error) {
	if err := c.Connect(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return "", errors.New("ssh connection closed")
	}

	session, err := conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = stdin
	}

	var out strings.Builder
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return out.String(), fmt.Errorf("command failed: %w", err)
		}
		return out.String(), nil
	}
}
