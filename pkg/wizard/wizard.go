// Package wizard collects the installation plan through interactive terminal
// forms. Every field shows its default as a placeholder; leaving it empty
// accepts the default.
package wizard

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/redentordev/laravel-vps/pkg/plan"
)

// Collector implements plan.Collector with huh forms.
type Collector struct {
	Options plan.Options

	// run executes one form; tests replace it to fill answers directly.
	run func(ctx context.Context, f *huh.Form) error
}

// New creates an interactive collector.
func New(opts plan.Options) *Collector {
	return &Collector{
		Options: opts,
		run: func(ctx context.Context, f *huh.Form) error {
			return f.RunWithContext(ctx)
		},
	}
}

// Collect prompts for every answer and builds the plan.
func (c *Collector) Collect(ctx context.Context, d plan.Defaults) (plan.Plan, error) {
	return c.collect(ctx, &answers{}, d)
}

func (c *Collector) collect(ctx context.Context, a *answers, d plan.Defaults) (plan.Plan, error) {
	steps := []struct {
		name string
		fn   func(context.Context, *answers, plan.Defaults) error
	}{
		{"project", c.projectGroup},
		{"source", c.sourceGroup},
		{"database", c.databaseGroup},
		{"admin panel", c.adminGroup},
		{"certificate", c.certificateGroup},
	}
	for _, s := range steps {
		if err := s.fn(ctx, a, d); err != nil {
			return plan.Plan{}, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	return plan.Build(a.toAnswers(), d, c.Options)
}

// answers mirrors plan.Answers with plain values huh can bind to.
type answers struct {
	ProjectName string
	Domain      string
	PHPVersion  string
	Method      string
	RepoURL     string
	Branch      string

	DBEnabled  bool
	DBName     string
	DBUser     string
	DBPassword string
	RunSeeders bool

	AdminEnabled   bool
	AdminAlias     string
	AdminBasicAuth bool
	AdminUser      string
	AdminPassword  string
	AllowList      string

	CertEmail string
}

func (a answers) toAnswers() plan.Answers {
	return plan.Answers{
		ProjectName:    a.ProjectName,
		Domain:         a.Domain,
		PHPVersion:     a.PHPVersion,
		Method:         a.Method,
		RepoURL:        a.RepoURL,
		Branch:         a.Branch,
		DBEnabled:      &a.DBEnabled,
		DBName:         a.DBName,
		DBUser:         a.DBUser,
		DBPassword:     a.DBPassword,
		RunSeeders:     &a.RunSeeders,
		AdminEnabled:   &a.AdminEnabled,
		AdminAlias:     a.AdminAlias,
		AdminBasicAuth: &a.AdminBasicAuth,
		AdminUser:      a.AdminUser,
		AdminPassword:  a.AdminPassword,
		AllowList:      []string{a.AllowList},
		CertEmail:      a.CertEmail,
	}
}
