package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/redentordev/laravel-vps/pkg/config"
	"github.com/redentordev/laravel-vps/pkg/installer"
	"github.com/redentordev/laravel-vps/pkg/plan"
	"github.com/redentordev/laravel-vps/pkg/runlog"
	"github.com/redentordev/laravel-vps/pkg/wizard"
)

var (
	installAnswers        string
	installNonInteractive bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Provision the server and install the Laravel application",
	Long: `Install PHP, nginx and MySQL, create or clone the project, configure it,
publish the nginx site and request a certificate.

Answers come from interactive prompts, or from a YAML answers file written by
"laravel-vps plan" (--answers). With --non-interactive every unanswered
question takes its default.

Examples:
  laravel-vps install
  laravel-vps install --answers plan.yaml --non-interactive
  laravel-vps install --ssh root@203.0.113.10 --answers plan.yaml
  laravel-vps install --dry-run`,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().StringVar(&installAnswers, "answers", "", "YAML answers file")
	installCmd.Flags().BoolVar(&installNonInteractive, "non-interactive", false, "never prompt; unanswered questions take their defaults")
}

// defaultsCollector accepts every default.
type defaultsCollector struct {
	opts plan.Options
}

func (c defaultsCollector) Collect(_ context.Context, d plan.Defaults) (plan.Plan, error) {
	return plan.Build(plan.Answers{}, d, c.opts)
}

func collectorFor(cfg *config.Config) (plan.Collector, error) {
	opts := installer.PlanOptions(cfg)
	switch {
	case installAnswers != "":
		return plan.FileCollector{Path: installAnswers, Options: opts}, nil
	case installNonInteractive:
		return defaultsCollector{opts: opts}, nil
	case !isatty.IsTerminal(os.Stdin.Fd()):
		return nil, errors.New("stdin is not a terminal: pass --answers or --non-interactive")
	default:
		return wizard.New(opts), nil
	}
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	collector, err := collectorFor(s.cfg)
	if err != nil {
		return err
	}
	defaults, err := installer.PlanDefaults(s.cfg)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log, err := runlog.Open(s.cfg.Paths.LogFile, runID)
	if err != nil {
		s.out.Warning("Run log disabled: %v", err)
		log = runlog.Nop()
	}
	defer log.Close()

	inst := &installer.Installer{
		Config:    s.cfg,
		Host:      s.host,
		Collector: collector,
		Defaults:  defaults,
		Locker:    s.locker(),
		Out:       s.out,
		Log:       log.Logger,
		RunID:     runID,
	}
	_, err = inst.Run(ctx)
	return err
}
