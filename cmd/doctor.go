package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redentordev/laravel-vps/pkg/preflight"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check whether the server can be provisioned",
	Long: `Run the preflight checks without changing anything.

Checks performed:
  - Root privilege (or passwordless sudo over SSH)
  - Network connectivity to the package mirrors and GitHub
  - Debian or Ubuntu release
  - Presence of PHP, nginx, MySQL, Composer, Git, Certbot and UFW

Examples:
  laravel-vps doctor
  laravel-vps doctor --ssh root@203.0.113.10`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	s.out.Section(fmt.Sprintf("Checking %s", s.host.Name()))
	checker := preflight.NewChecker(s.host, s.cfg.Network.ProbeTargets, s.cfg.Timeouts.Probe, s.cfg.SSH.Sudo)
	results := checker.Report(ctx)

	rows := make([][]string, 0, len(results))
	passed, warned, failed := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case preflight.StatusPass:
			passed++
		case preflight.StatusWarn:
			warned++
		case preflight.StatusFail:
			failed++
		}
		rows = append(rows, []string{string(r.Status), r.Name, r.Detail})
	}
	s.out.Table([]string{"STATUS", "CHECK", "DETAIL"}, rows)
	s.out.Plain("\n%d passed, %d warnings, %d failed", passed, warned, failed)

	if preflight.Failed(results) {
		return errors.New("server is not ready to be provisioned")
	}
	s.out.Success("Server is ready")
	return nil
}
