package wizard

import (
	"context"

	"github.com/charmbracelet/huh"
	"github.com/redentordev/laravel-vps/pkg/plan"
)

// PHPVersions offered by the version select.
var PHPVersions = []string{"8.4", "8.3", "8.2", "8.1"}

func (c *Collector) validator(field string) func(string) error {
	return func(s string) error {
		return plan.ValidateField(field, s, c.Options)
	}
}

// orDefault validates s only when it is not empty, since empty means "use the default".
func (c *Collector) orDefault(field string) func(string) error {
	check := c.validator(field)
	return func(s string) error {
		if s == "" {
			return nil
		}
		return check(s)
	}
}

func (c *Collector) projectGroup(ctx context.Context, a *answers, d plan.Defaults) error {
	a.PHPVersion = d.PHPVersion
	return c.run(ctx, huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project Name").
				Description("Directory under the web root and default database name").
				Placeholder(d.ProjectName).
				Value(&a.ProjectName).
				Validate(c.orDefault("project_name")),
			huh.NewInput().
				Title("Domain").
				Description("The domain that will point at this server").
				Placeholder(d.Domain).
				Value(&a.Domain).
				Validate(c.orDefault("domain")),
			huh.NewSelect[string]().
				Title("PHP Version").
				Options(huh.NewOptions(withDefault(PHPVersions, d.PHPVersion)...)...).
				Value(&a.PHPVersion),
		).Title("Project"),
	))
}

func (c *Collector) sourceGroup(ctx context.Context, a *answers, d plan.Defaults) error {
	a.Method = string(d.Method)
	if a.Method == "" {
		a.Method = string(plan.MethodScaffold)
	}
	err := c.run(ctx, huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Install Method").
				Options(
					huh.NewOption("Scaffold a new Laravel project", string(plan.MethodScaffold)),
					huh.NewOption("Clone an existing repository", string(plan.MethodClone)),
				).
				Value(&a.Method),
		).Title("Source"),
	))
	if err != nil || a.Method != string(plan.MethodClone) {
		return err
	}

	return c.run(ctx, huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Repository URL").
				Placeholder("https://github.com/acme/shop.git").
				Value(&a.RepoURL).
				Validate(c.validator("repo_url")),
			huh.NewInput().
				Title("Branch").
				Description("Falls back to the default branch if it does not exist").
				Placeholder(d.Branch).
				Value(&a.Branch),
		).Title("Repository"),
	))
}

func (c *Collector) databaseGroup(ctx context.Context, a *answers, d plan.Defaults) error {
	a.DBEnabled = true
	err := c.run(ctx, huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Create a MySQL database?").
				Value(&a.DBEnabled),
		).Title("Database"),
	))
	if err != nil || !a.DBEnabled {
		return err
	}

	return c.run(ctx, huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Database Name").
				Placeholder("derived from the project name").
				Value(&a.DBName).
				Validate(c.orDefault("db_name")),
			huh.NewInput().
				Title("Database User").
				Placeholder("derived from the project name").
				Value(&a.DBUser).
				Validate(c.orDefault("db_user")),
			huh.NewInput().
				Title("Database Password").
				Description("Leave empty to generate one").
				EchoMode(huh.EchoModePassword).
				Value(&a.DBPassword).
				Validate(c.orDefault("db_password")),
			huh.NewConfirm().
				Title("Run database seeders?").
				Value(&a.RunSeeders),
		).Title("Database Credentials"),
	))
}

func (c *Collector) adminGroup(ctx context.Context, a *answers, d plan.Defaults) error {
	err := c.run(ctx, huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Install phpMyAdmin?").
				Value(&a.AdminEnabled),
		).Title("Admin Panel"),
	))
	if err != nil || !a.AdminEnabled {
		return err
	}

	a.AdminBasicAuth = true
	return c.run(ctx, huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("URL Path").
				Placeholder(d.AdminAlias).
				Value(&a.AdminAlias).
				Validate(c.orDefault("admin_alias")),
			huh.NewConfirm().
				Title("Protect with basic auth?").
				Value(&a.AdminBasicAuth),
			huh.NewInput().
				Title("Basic Auth User").
				Placeholder(d.AdminUser).
				Value(&a.AdminUser),
			huh.NewInput().
				Title("Basic Auth Password").
				Description("Leave empty to generate one").
				EchoMode(huh.EchoModePassword).
				Value(&a.AdminPassword).
				Validate(c.orDefault("admin_password")),
			huh.NewInput().
				Title("IP Allow-List (Optional)").
				Description("Comma-separated IPv4 addresses or CIDRs").
				Placeholder("203.0.113.4, 10.0.0.0/8").
				Value(&a.AllowList).
				Validate(c.validator("allow_list")),
		).Title("Admin Panel Access"),
	))
}

func (c *Collector) certificateGroup(ctx context.Context, a *answers, d plan.Defaults) error {
	placeholder := d.CertEmail
	if placeholder == "" {
		placeholder = "register without email"
	}
	return c.run(ctx, huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Let's Encrypt Email (Optional)").
				Placeholder(placeholder).
				Value(&a.CertEmail),
		).Title("Certificate"),
	))
}

// withDefault makes sure def is selectable and listed first.
func withDefault(options []string, def string) []string {
	out := []string{}
	if def != "" {
		out = append(out, def)
	}
	for _, o := range options {
		if o != def {
			out = append(out, o)
		}
	}
	return out
}
