package plan

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadAnswers reads an answers file.
func LoadAnswers(path string) (Answers, error) {
	var a Answers
	data, err := os.ReadFile(path)
	if err != nil {
		return a, fmt.Errorf("read answers file: %w", err)
	}
	if err := yaml.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("parse answers file %s: %w", path, err)
	}
	return a, nil
}

// Answers converts a plan back into answers, so a saved plan can be replayed
// with --answers.
func (p Plan) Answers() Answers {
	dbEnabled := p.Database.Enabled
	seeders := p.RunSeeders
	adminEnabled := p.Admin.Enabled
	basicAuth := p.Admin.HasBasicAuth()
	overwrite := p.OverwriteSite
	return Answers{
		ProjectName:    p.ProjectName,
		Domain:         p.Domain,
		PHPVersion:     p.PHPVersion,
		Method:         string(p.Method),
		RepoURL:        p.RepoURL,
		Branch:         p.Branch,
		DBEnabled:      &dbEnabled,
		DBName:         p.Database.Name,
		DBUser:         p.Database.User,
		DBPassword:     p.Database.Password,
		DBHost:         p.Database.Host,
		DBPort:         p.Database.Port,
		RunSeeders:     &seeders,
		AdminEnabled:   &adminEnabled,
		AdminAlias:     p.Admin.Alias,
		AdminBasicAuth: &basicAuth,
		AdminUser:      p.Admin.BasicAuthUser,
		AdminPassword:  p.Admin.BasicAuthPassword,
		AllowList:      p.AllowList(),
		CertEmail:      p.CertEmail,
		OverwriteSite:  &overwrite,
	}
}

// Save writes p as an answers file. Secrets are masked unless includeSecrets.
func Save(path string, p Plan, includeSecrets bool) error {
	if !includeSecrets {
		p = p.Redacted()
	}
	data, err := yaml.Marshal(p.Answers())
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if includeSecrets {
		mode = 0o600
	}
	return os.WriteFile(path, data, mode)
}

// FileCollector builds the plan from an answers file instead of prompts.
type FileCollector struct {
	Path    string
	Options Options
}

// Collect implements Collector.
func (c FileCollector) Collect(_ context.Context, defaults Defaults) (Plan, error) {
	a, err := LoadAnswers(c.Path)
	if err != nil {
		return Plan{}, err
	}
	if a.DBPassword == redacted || a.AdminPassword == redacted {
		return Plan{}, &ValidationError{Field: "password", Reason: "answers file contains a redacted secret; save it with --include-secrets or remove the field"}
	}
	return Build(a, defaults, c.Options)
}
