package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyMode controls host key verification behavior
type HostKeyMode int

const (
	// HostKeyModeTOFU trusts on first use and verifies afterwards (default)
	HostKeyModeTOFU HostKeyMode = iota
	// HostKeyModeStrict requires the host to already be in known_hosts
	HostKeyModeStrict
	// HostKeyModeInsecure disables verification
	HostKeyModeInsecure
)

// ParseHostKeyMode parses a string into HostKeyMode
func ParseHostKeyMode(s string) (HostKeyMode, error) {
	switch strings.ToLower(s) {
	case "", "tofu":
		return HostKeyModeTOFU, nil
	case "strict":
		return HostKeyModeStrict, nil
	case "insecure", "off":
		return HostKeyModeInsecure, nil
	default:
		return HostKeyModeTOFU, fmt.Errorf("unknown host key mode %q (want tofu, strict or insecure)", s)
	}
}

func (m HostKeyMode) String() string {
	switch m {
	case HostKeyModeStrict:
		return "strict"
	case HostKeyModeInsecure:
		return "insecure"
	default:
		return "tofu"
	}
}

// HostKeyVerifier checks server keys against ~/.ssh/known_hosts and the
// laravel-vps known_hosts file.
type HostKeyVerifier struct {
	mode       HostKeyMode
	systemPath string
	ownPath    string
	mu         sync.Mutex
}

// DefaultKnownHostsPath returns ~/.laravel-vps/known_hosts.
func DefaultKnownHostsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".laravel-vps", "known_hosts"), nil
}

// NewHostKeyVerifier creates a verifier. An empty ownPath uses DefaultKnownHostsPath.
func NewHostKeyVerifier(mode HostKeyMode, ownPath string) (*HostKeyVerifier, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	if ownPath == "" {
		ownPath = filepath.Join(home, ".laravel-vps", "known_hosts")
	}
	if err := os.MkdirAll(filepath.Dir(ownPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(ownPath), err)
	}
	return &HostKeyVerifier{
		mode:       mode,
		systemPath: filepath.Join(home, ".ssh", "known_hosts"),
		ownPath:    ownPath,
	}, nil
}

// Callback returns an ssh.HostKeyCallback for use with ssh.ClientConfig
func (v *HostKeyVerifier) Callback() ssh.HostKeyCallback {
	if v.mode == HostKeyModeInsecure {
		return ssh.InsecureIgnoreHostKey() //nolint:gosec // explicit opt-in via --host-key-mode=insecure
	}
	return v.verify
}

func (v *HostKeyVerifier) verify(hostname string, remote net.Addr, key ssh.PublicKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var files []string
	for _, p := range []string{v.systemPath, v.ownPath} {
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}

	if len(files) > 0 {
		callback, err := knownhosts.New(files...)
		if err == nil {
			verifyErr := callback(hostname, remote, key)
			if verifyErr == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if errors.As(verifyErr, &keyErr) && len(keyErr.Want) > 0 {
				return fmt.Errorf("host key for %s changed (got %s %s); remove the stale entry with ssh-keygen -R if the server was rebuilt",
					hostname, key.Type(), ssh.FingerprintSHA256(key))
			}
		}
	}

	host, port := splitHostPort(hostname, remote)
	switch v.mode {
	case HostKeyModeStrict:
		return fmt.Errorf("host key verification failed: %s is not in known_hosts (fingerprint %s); add it with ssh-keyscan -H %s >> ~/.ssh/known_hosts",
			host, ssh.FingerprintSHA256(key), host)
	default:
		if err := v.addHostKey(host, port, key); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save host key for %s: %v\n", host, err)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: permanently added '%s' (%s) to known hosts.\n", host, key.Type())
		}
		return nil
	}
}

func (v *HostKeyVerifier) addHostKey(host string, port int, key ssh.PublicKey) error {
	addr := host
	if port != 22 && port != 0 {
		addr = fmt.Sprintf("[%s]:%d", host, port)
	}

	f, err := os.OpenFile(v.ownPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(knownhosts.Line([]string{addr}, key) + "\n"); err != nil {
		return fmt.Errorf("failed to write host key: %w", err)
	}
	return nil
}

func splitHostPort(hostname string, remote net.Addr) (string, int) {
	host, portStr, err := net.SplitHostPort(hostname)
	if err != nil {
		if remote != nil {
			host, portStr, _ = net.SplitHostPort(remote.String())
		}
		if host == "" {
			host = hostname
		}
	}
	port := 22
	if p, err := strconv.Atoi(portStr); err == nil {
		port = p
	}
	return host, port
}
