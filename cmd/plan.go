package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/installer"
	"github.com/redentordev/laravel-vps/pkg/plan"
)

var (
	planOut            string
	planIncludeSecrets bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Answer the install questions and save them to a file",
	Long: `Ask the install questions without touching any server and write the
answers as YAML. Pass the file to "laravel-vps install --answers" later, or
keep it in version control.

Passwords are left out unless --include-secrets is given; missing passwords
are generated at install time.

Examples:
  laravel-vps plan --out plan.yaml
  laravel-vps plan --answers old.yaml --non-interactive --out plan.yaml`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVarP(&planOut, "out", "o", "laravel-vps-plan.yaml", "where to write the answers")
	planCmd.Flags().BoolVar(&planIncludeSecrets, "include-secrets", false, "write passwords to the file")
	planCmd.Flags().StringVar(&installAnswers, "answers", "", "YAML answers file to start from")
	planCmd.Flags().BoolVar(&installNonInteractive, "non-interactive", false, "never prompt; unanswered questions take their defaults")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := formatter.New(cfg.Verbose, cfg.NoColor)

	collector, err := collectorFor(cfg)
	if err != nil {
		return err
	}
	defaults, err := installer.PlanDefaults(cfg)
	if err != nil {
		return err
	}
	p, err := collector.Collect(cmd.Context(), defaults)
	if err != nil {
		return err
	}

	if err := plan.Save(planOut, p, planIncludeSecrets); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	out.Success("Plan written to %s", planOut)
	out.Info("Install with: laravel-vps install --answers %s", planOut)
	return nil
}
