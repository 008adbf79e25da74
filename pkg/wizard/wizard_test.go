package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/redentordev/laravel-vps/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefaults() plan.Defaults {
	return plan.Defaults{
		ProjectName:   "shop",
		Domain:        "shop.example.com",
		PHPVersion:    "8.3",
		Method:        plan.MethodScaffold,
		Branch:        "main",
		DBHost:        "127.0.0.1",
		DBPort:        3306,
		DBPassword:    "generated-db-pass",
		AdminAlias:    "phpmyadmin",
		AdminUser:     "admin",
		AdminPassword: "generated-admin-pass",
	}
}

// scripted runs the collector with each form "answered" by the next fill
// function, which edits the bound answers directly.
func scripted(t *testing.T, opts plan.Options, fills ...func(a *answers)) (plan.Plan, error) {
	t.Helper()
	c := New(opts)
	a := &answers{}
	i := 0
	c.run = func(context.Context, *huh.Form) error {
		if i < len(fills) && fills[i] != nil {
			fills[i](a)
		}
		i++
		return nil
	}
	return c.collect(context.Background(), a, testDefaults())
}

func TestCollect_AcceptingEveryDefault(t *testing.T) {
	t.Parallel()

	p, err := scripted(t, plan.Options{ValidateInputs: true, SecureAdminPanel: true})
	require.NoError(t, err)

	assert.Equal(t, "shop", p.ProjectName)
	assert.Equal(t, "8.3", p.PHPVersion)
	assert.Equal(t, plan.MethodScaffold, p.Method)
	assert.True(t, p.Database.Enabled)
	assert.Equal(t, "generated-db-pass", p.Database.Password)
	assert.False(t, p.Admin.Enabled)
}

func TestCollect_CloneWithAdminPanel(t *testing.T) {
	t.Parallel()

	p, err := scripted(t, plan.Options{ValidateInputs: true, SecureAdminPanel: true},
		func(a *answers) {
			a.ProjectName = "api"
			a.Domain = "api.example.com"
			a.PHPVersion = "8.2"
		},
		func(a *answers) { a.Method = "clone" },
		func(a *answers) {
			a.RepoURL = "https://github.com/acme/api.git"
			a.Branch = "develop"
		},
		nil, // create database: keep yes
		func(a *answers) { a.RunSeeders = true },
		func(a *answers) { a.AdminEnabled = true },
		func(a *answers) {
			a.AdminBasicAuth = false
			a.AllowList = "203.0.113.4, 10.0.0.0/8"
		},
		func(a *answers) { a.CertEmail = "ops@example.com" },
	)
	require.NoError(t, err)

	assert.Equal(t, "api", p.ProjectName)
	assert.Equal(t, "8.2", p.PHPVersion)
	assert.Equal(t, plan.MethodClone, p.Method)
	assert.Equal(t, "develop", p.Branch)
	assert.Equal(t, "api", p.Database.Name)
	assert.True(t, p.RunSeeders)
	assert.Equal(t, []string{"203.0.113.4", "10.0.0.0/8"}, p.Admin.AllowList)
	assert.False(t, p.Admin.HasBasicAuth())
	assert.Equal(t, "ops@example.com", p.CertEmail)
}

func TestCollect_SecureAdminPanelRejectsOpenPanel(t *testing.T) {
	t.Parallel()

	_, err := scripted(t, plan.Options{ValidateInputs: true, SecureAdminPanel: true},
		nil, nil, nil, nil,
		func(a *answers) { a.AdminEnabled = true },
		func(a *answers) { a.AdminBasicAuth = false },
	)
	var ve *plan.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "admin_panel", ve.Field)
}

func TestCollect_FormErrorIsWrapped(t *testing.T) {
	t.Parallel()

	c := New(plan.Options{})
	c.run = func(context.Context, *huh.Form) error { return huh.ErrUserAborted }

	_, err := c.Collect(context.Background(), testDefaults())
	require.Error(t, err)
	assert.True(t, errors.Is(err, huh.ErrUserAborted))
	assert.Contains(t, err.Error(), "project")
}

func TestValidatorsAllowEmpty(t *testing.T) {
	t.Parallel()

	c := New(plan.Options{ValidateInputs: true})
	assert.NoError(t, c.orDefault("domain")(""))
	assert.Error(t, c.orDefault("domain")("not a domain"))
	assert.Error(t, c.orDefault("db_password")("short"))
	assert.NoError(t, c.validator("allow_list")(""))
	assert.Error(t, c.validator("allow_list")("10.0.0.0/40"))
}

func TestWithDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"8.2", "8.4", "8.3", "8.1"}, withDefault(PHPVersions, "8.2"))
	assert.Equal(t, []string{"7.4", "8.4", "8.3", "8.2", "8.1"}, withDefault(PHPVersions, "7.4"))
}
