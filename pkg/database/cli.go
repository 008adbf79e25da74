package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/plan"
)

// CLI provisions through the mysql client on the host. The statements are
// written to a root-only file so the password never appears in a command line.
type CLI struct {
	Host    host.Host
	Timeout time.Duration
	// ScriptPath is where the statements are staged.
	ScriptPath string
}

// NewCLI creates a CLI provisioner staging its script under stateDir.
func NewCLI(h host.Host, stateDir string, timeout time.Duration) *CLI {
	return &CLI{Host: h, Timeout: timeout, ScriptPath: strings.TrimRight(stateDir, "/") + "/provision-db.sql"}
}

func (c *CLI) Provision(ctx context.Context, db plan.Database) error {
	script := strings.Join(Statements(db), ";\n") + ";\n"
	if err := c.Host.WriteFile(ctx, c.ScriptPath, []byte(script), 0o600); err != nil {
		return fmt.Errorf("%w: stage script: %v", ErrProvisionFailed, err)
	}
	defer func() { _ = c.Host.Remove(context.WithoutCancel(ctx), c.ScriptPath) }()

	cmd := host.Cmd("sh", "-c", "mysql --user=root < "+host.Quote(c.ScriptPath)).WithTimeout(c.Timeout)
	if _, err := c.Host.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	return nil
}
