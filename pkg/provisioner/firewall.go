package provisioner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/redentordev/laravel-vps/pkg/host"
)

// ErrFirewallUnavailable means ufw is not installed; the step is skipped.
var ErrFirewallUnavailable = errors.New("ufw is not installed")

// Firewall opens SSH and HTTP(S) with ufw. Existing rules are left alone.
type Firewall struct {
	Host host.Host
	// SSHPort is the port the current session came in on, 0 when local.
	SSHPort int
}

// Configure is idempotent: ufw skips rules it already has. Every port sshd
// listens on is allowed before the firewall is enabled.
func (f Firewall) Configure(ctx context.Context) error {
	if !host.CommandExists(ctx, f.Host, "ufw") {
		return ErrFirewallUnavailable
	}
	cmds := []host.Command{host.Cmd("ufw", "allow", "OpenSSH")}
	for _, port := range f.sshPorts(ctx) {
		if port != 22 {
			cmds = append(cmds, host.Cmd("ufw", "allow", fmt.Sprintf("%d/tcp", port)))
		}
	}
	cmds = append(cmds,
		host.Cmd("ufw", "allow", "Nginx Full"),
		host.Cmd("ufw", "--force", "enable"),
	)
	for _, c := range cmds {
		if _, err := f.Host.Exec(ctx, c); err != nil {
			return fmt.Errorf("configure firewall: %w", err)
		}
	}
	return nil
}

// sshPorts merges the session port with what `sshd -T` reports.
func (f Firewall) sshPorts(ctx context.Context) []int {
	var ports []int
	if f.SSHPort > 0 {
		ports = append(ports, f.SSHPort)
	}
	out, err := f.Host.Exec(ctx, host.Query("sshd", "-T"))
	if err == nil {
		ports = append(ports, ParseSSHDPorts(out)...)
	}
	slices.Sort(ports)
	return slices.Compact(ports)
}

// ParseSSHDPorts reads the "port N" lines of `sshd -T` output.
func ParseSSHDPorts(out string) []int {
	var ports []int
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 || !strings.EqualFold(fields[0], "port") {
			continue
		}
		if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 && n < 65536 {
			ports = append(ports, n)
		}
	}
	return ports
}
