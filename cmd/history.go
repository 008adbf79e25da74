package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	history "github.com/redentordev/laravel-vps/internal/state"
)

var (
	historyLimit   int
	historyStatus  string
	historyProject string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past install runs",
	Long: `View the install runs recorded on the server, newest first.

Each run shows its status, the step it failed at, the certificate outcome
and the application URL.

Examples:
  laravel-vps history
  laravel-vps history --status rolled_back
  laravel-vps history --ssh root@203.0.113.10 --project shop -n 5`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status (success, failed, rolled_back)")
	historyCmd.Flags().StringVar(&historyProject, "project", "", "Filter by project name")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := &history.HistoryOptions{
		Limit:   historyLimit,
		Project: historyProject,
	}
	if historyStatus != "" {
		opts.Status = history.RunStatus(historyStatus)
	}

	runs, err := history.NewHistoryManager(s.host, s.cfg.Paths.StateDir).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to load run history: %w", err)
	}
	if len(runs) == 0 {
		s.out.Info("No runs found")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := string(r.Status)
		if r.FailedStep != "" {
			status += " (" + r.FailedStep + ")"
		}
		rows = append(rows, []string{
			history.FormatRunID(r.ID),
			r.Timestamp.Local().Format(time.DateTime),
			r.Project,
			status,
			r.Cert,
			r.AppURL,
			history.FormatDuration(r.Duration),
		})
	}
	s.out.Table([]string{"RUN", "TIME", "PROJECT", "STATUS", "CERT", "URL", "DURATION"}, rows)

	if s.cfg.Verbose {
		for _, r := range runs {
			if r.Error == "" {
				continue
			}
			s.out.Verbose("%s: %s", history.FormatRunID(r.ID), r.Error)
		}
	}
	return nil
}
