package installer

import (
	"fmt"

	"github.com/redentordev/laravel-vps/pkg/config"
	"github.com/redentordev/laravel-vps/pkg/plan"
)

// generatedPasswordLength is used for the database and basic-auth defaults.
const generatedPasswordLength = 20

// PlanDefaults seeds every prompt from the configuration. Passwords are
// generated fresh for each run.
func PlanDefaults(cfg *config.Config) (plan.Defaults, error) {
	d := cfg.Defaults
	dbPass, err := plan.GeneratePassword(generatedPasswordLength)
	if err != nil {
		return plan.Defaults{}, fmt.Errorf("generate database password: %w", err)
	}
	adminPass, err := plan.GeneratePassword(generatedPasswordLength)
	if err != nil {
		return plan.Defaults{}, fmt.Errorf("generate admin password: %w", err)
	}
	return plan.Defaults{
		ProjectName:   d.ProjectName,
		Domain:        d.Domain,
		PHPVersion:    d.PHPVersion,
		Method:        plan.InstallMethod(d.InstallMethod),
		Branch:        d.Branch,
		DBHost:        d.DBHost,
		DBPort:        d.DBPort,
		DBPassword:    dbPass,
		AdminAlias:    d.AdminAlias,
		AdminUser:     d.AdminUser,
		AdminPassword: adminPass,
		CertEmail:     d.CertEmail,
	}, nil
}

// PlanOptions maps the feature flags onto validation options.
func PlanOptions(cfg *config.Config) plan.Options {
	return plan.Options{
		ValidateInputs:   cfg.Features.ValidateInputs,
		SecureAdminPanel: cfg.Features.SecureAdminPanel,
	}
}
