// Package plan holds the installation plan: the single, read-only snapshot of
// everything the operator chose before any side effect happens.
package plan

import (
	"context"
	"strings"
)

// InstallMethod selects how the project source is produced.
type InstallMethod string

const (
	MethodScaffold InstallMethod = "scaffold"
	MethodClone    InstallMethod = "clone"
)

// Database describes the MySQL database the application uses.
type Database struct {
	Enabled  bool   `yaml:"enabled"`
	Name     string `yaml:"name,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
}

// AdminPanel describes the optional phpMyAdmin install.
type AdminPanel struct {
	Enabled           bool     `yaml:"enabled"`
	Alias             string   `yaml:"alias,omitempty"`
	BasicAuthUser     string   `yaml:"basic_auth_user,omitempty"`
	BasicAuthPassword string   `yaml:"basic_auth_password,omitempty"`
	AllowList         []string `yaml:"allow_list,omitempty"`
}

// HasBasicAuth reports whether a basic-auth layer is configured.
func (a AdminPanel) HasBasicAuth() bool {
	return a.BasicAuthUser != "" && a.BasicAuthPassword != ""
}

// HasAccessControl reports whether at least one protection layer is configured.
func (a AdminPanel) HasAccessControl() bool {
	return a.HasBasicAuth() || len(a.AllowList) > 0
}

// Plan is built once by a Collector and only read afterwards. Steps take it
// by value.
type Plan struct {
	ProjectName   string        `yaml:"project_name"`
	Domain        string        `yaml:"domain"`
	PHPVersion    string        `yaml:"php_version"`
	Method        InstallMethod `yaml:"method"`
	RepoURL       string        `yaml:"repo_url,omitempty"`
	Branch        string        `yaml:"branch,omitempty"`
	Database      Database      `yaml:"database"`
	RunSeeders    bool          `yaml:"run_seeders"`
	Admin         AdminPanel    `yaml:"admin_panel"`
	CertEmail     string        `yaml:"cert_email,omitempty"`
	OverwriteSite bool          `yaml:"overwrite_site,omitempty"`
}

// AppURL is the public URL of the application.
func (p Plan) AppURL(secure bool) string {
	if secure {
		return "https://" + p.Domain
	}
	return "http://" + p.Domain
}

// AdminURL is where phpMyAdmin is served, empty when disabled.
func (p Plan) AdminURL(secure bool) string {
	if !p.Admin.Enabled {
		return ""
	}
	return p.AppURL(secure) + "/" + strings.Trim(p.Admin.Alias, "/")
}

// AllowList returns a copy so callers cannot change the plan's slice.
func (p Plan) AllowList() []string {
	return append([]string(nil), p.Admin.AllowList...)
}

const redacted = "********"

// Redacted returns a copy with every secret masked.
func (p Plan) Redacted() Plan {
	c := p
	c.Admin.AllowList = p.AllowList()
	if c.Database.Password != "" {
		c.Database.Password = redacted
	}
	if c.Admin.BasicAuthPassword != "" {
		c.Admin.BasicAuthPassword = redacted
	}
	return c
}

// Collector is the only place operator intent is captured.
type Collector interface {
	Collect(ctx context.Context, defaults Defaults) (Plan, error)
}
