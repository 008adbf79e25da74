package plan

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// MinPasswordLength applies to the database and basic-auth passwords.
const MinPasswordLength = 8

// ValidationError names the first invalid field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Defaults fills every answer the operator leaves empty. Generated secrets
// are supplied by the caller so Build stays deterministic.
type Defaults struct {
	ProjectName   string
	Domain        string
	PHPVersion    string
	Method        InstallMethod
	Branch        string
	DBHost        string
	DBPort        int
	DBPassword    string
	AdminAlias    string
	AdminUser     string
	AdminPassword string
	CertEmail     string
}

// Answers are raw operator inputs. Empty strings and nil pointers take the default.
type Answers struct {
	ProjectName    string   `yaml:"project_name"`
	Domain         string   `yaml:"domain"`
	PHPVersion     string   `yaml:"php_version"`
	Method         string   `yaml:"method"`
	RepoURL        string   `yaml:"repo_url"`
	Branch         string   `yaml:"branch"`
	DBEnabled      *bool    `yaml:"db_enabled"`
	DBName         string   `yaml:"db_name"`
	DBUser         string   `yaml:"db_user"`
	DBPassword     string   `yaml:"db_password"`
	DBHost         string   `yaml:"db_host"`
	DBPort         int      `yaml:"db_port"`
	RunSeeders     *bool    `yaml:"run_seeders"`
	AdminEnabled   *bool    `yaml:"admin_enabled"`
	AdminAlias     string   `yaml:"admin_alias"`
	AdminBasicAuth *bool    `yaml:"admin_basic_auth"`
	AdminUser      string   `yaml:"admin_user"`
	AdminPassword  string   `yaml:"admin_password"`
	AllowList      []string `yaml:"allow_list"`
	CertEmail      string   `yaml:"cert_email"`
	OverwriteSite  *bool    `yaml:"overwrite_site"`
}

// Options are the feature flags that shape validation.
type Options struct {
	ValidateInputs   bool
	SecureAdminPanel bool
}

var (
	projectNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
	domainRe      = regexp.MustCompile(`^(?i)[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)+$`)
	phpVersionRe  = regexp.MustCompile(`^[5-9]\.[0-9]$`)
	identifierRe  = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)
	aliasRe       = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	branchRe      = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	emailRe       = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	scpRepoRe     = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[^\s]+$`)
)

var repoSchemes = map[string]bool{"https": true, "http": true, "ssh": true, "git": true, "file": true}

func pick(answer, def string) string {
	if v := strings.TrimSpace(answer); v != "" {
		return v
	}
	return def
}

func pickBool(answer *bool, def bool) bool {
	if answer != nil {
		return *answer
	}
	return def
}

// dbIdentifier turns a project name into a MySQL-safe default identifier.
func dbIdentifier(project string) string {
	return strings.ReplaceAll(project, "-", "_")
}

// Build merges answers over defaults and validates the result. It fails on
// the first invalid field.
func Build(a Answers, d Defaults, opts Options) (Plan, error) {
	p := Plan{
		ProjectName: pick(a.ProjectName, d.ProjectName),
		Domain:      strings.ToLower(pick(a.Domain, d.Domain)),
		PHPVersion:  pick(a.PHPVersion, d.PHPVersion),
		Method:      InstallMethod(strings.ToLower(pick(a.Method, string(d.Method)))),
		RepoURL:     strings.TrimSpace(a.RepoURL),
		Branch:      pick(a.Branch, d.Branch),
		RunSeeders:  pickBool(a.RunSeeders, false),
		CertEmail:   pick(a.CertEmail, d.CertEmail),

		OverwriteSite: pickBool(a.OverwriteSite, false),
	}
	if p.Method == MethodScaffold {
		p.RepoURL, p.Branch = "", ""
	}

	if pickBool(a.DBEnabled, true) {
		p.Database = Database{
			Enabled:  true,
			Name:     pick(a.DBName, dbIdentifier(p.ProjectName)),
			User:     pick(a.DBUser, dbIdentifier(p.ProjectName)),
			Password: pick(a.DBPassword, d.DBPassword),
			Host:     pick(a.DBHost, d.DBHost),
			Port:     d.DBPort,
		}
		if a.DBPort > 0 {
			p.Database.Port = a.DBPort
		}
	} else {
		p.RunSeeders = false
	}

	if pickBool(a.AdminEnabled, false) {
		p.Admin = AdminPanel{
			Enabled:   true,
			Alias:     strings.Trim(pick(a.AdminAlias, d.AdminAlias), "/"),
			AllowList: trimAll(a.AllowList),
		}
		if pickBool(a.AdminBasicAuth, true) {
			p.Admin.BasicAuthUser = pick(a.AdminUser, d.AdminUser)
			p.Admin.BasicAuthPassword = pick(a.AdminPassword, d.AdminPassword)
		}
	}

	if err := Validate(p, opts); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks a plan in field order and returns the first problem.
// Required fields are always enforced; format checks need ValidateInputs.
func Validate(p Plan, opts Options) error {
	for _, check := range checks(p, opts) {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func checks(p Plan, opts Options) []func() error {
	strict := opts.ValidateInputs
	return []func() error{
		func() error { return required("project_name", p.ProjectName) },
		func() error { return matches(strict, "project_name", p.ProjectName, projectNameRe, "letters, digits, '-' and '_' only") },
		func() error { return required("domain", p.Domain) },
		func() error { return matches(strict, "domain", p.Domain, domainRe, "not a valid domain name") },
		func() error { return required("php_version", p.PHPVersion) },
		func() error { return matches(strict, "php_version", p.PHPVersion, phpVersionRe, "want MAJOR.MINOR, e.g. 8.3") },
		func() error {
			if p.Method != MethodScaffold && p.Method != MethodClone {
				return &ValidationError{Field: "method", Reason: fmt.Sprintf("%q is not scaffold or clone", p.Method)}
			}
			return nil
		},
		func() error {
			if p.Method == MethodClone {
				return repoURL(p.RepoURL)
			}
			return nil
		},
		func() error {
			if p.Method == MethodClone {
				if err := required("branch", p.Branch); err != nil {
					return err
				}
				return matches(strict, "branch", p.Branch, branchRe, "not a valid branch name")
			}
			return nil
		},
		func() error {
			if !p.Database.Enabled {
				return nil
			}
			if err := required("db_name", p.Database.Name); err != nil {
				return err
			}
			if err := matches(strict, "db_name", p.Database.Name, identifierRe, "letters, digits and '_' only"); err != nil {
				return err
			}
			if err := required("db_user", p.Database.User); err != nil {
				return err
			}
			if err := matches(strict, "db_user", p.Database.User, identifierRe, "letters, digits and '_' only"); err != nil {
				return err
			}
			return password(strict, "db_password", p.Database.Password)
		},
		func() error {
			if !p.Admin.Enabled {
				return nil
			}
			if err := required("admin_alias", p.Admin.Alias); err != nil {
				return err
			}
			if err := matches(strict, "admin_alias", p.Admin.Alias, aliasRe, "lowercase letters, digits, '-' and '_' only"); err != nil {
				return err
			}
			if p.Admin.BasicAuthUser != "" || p.Admin.BasicAuthPassword != "" {
				if err := required("admin_user", p.Admin.BasicAuthUser); err != nil {
					return err
				}
				if err := password(strict, "admin_password", p.Admin.BasicAuthPassword); err != nil {
					return err
				}
			}
			for _, entry := range p.Admin.AllowList {
				if err := ipv4Entry(entry); err != nil {
					return err
				}
			}
			if opts.SecureAdminPanel && !p.Admin.HasAccessControl() {
				return &ValidationError{Field: "admin_panel", Reason: "requires basic auth or an IP allow-list"}
			}
			return nil
		},
		func() error {
			if strict && p.CertEmail != "" && !emailRe.MatchString(p.CertEmail) {
				return &ValidationError{Field: "cert_email", Reason: "not a valid email address"}
			}
			return nil
		},
	}
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// repoURL accepts a URL with a known scheme or the scp-like user@host:path
// form. It is enforced even without input validation since the value
// reaches git's argument list.
func repoURL(value string) error {
	if err := required("repo_url", value); err != nil {
		return err
	}
	if strings.HasPrefix(value, "-") || strings.ContainsAny(value, " \t\r\n") {
		return &ValidationError{Field: "repo_url", Reason: "not a repository URL"}
	}
	if scpRepoRe.MatchString(value) {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || !repoSchemes[u.Scheme] || (u.Scheme != "file" && u.Host == "") {
		return &ValidationError{Field: "repo_url", Reason: "want https://, ssh://, git:// or user@host:path"}
	}
	return nil
}

func matches(strict bool, field, value string, re *regexp.Regexp, reason string) error {
	if strict && value != "" && !re.MatchString(value) {
		return &ValidationError{Field: field, Reason: reason}
	}
	return nil
}

func password(strict bool, field, value string) error {
	if err := required(field, value); err != nil {
		return err
	}
	if strict && len(value) < MinPasswordLength {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	return nil
}

// ipv4Entry accepts an IPv4 address or an IPv4 CIDR.
func ipv4Entry(entry string) error {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil || !prefix.Addr().Is4() {
			return &ValidationError{Field: "allow_list", Reason: fmt.Sprintf("%q is not an IPv4 CIDR", entry)}
		}
		return nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil || !addr.Is4() {
		return &ValidationError{Field: "allow_list", Reason: fmt.Sprintf("%q is not an IPv4 address", entry)}
	}
	return nil
}

// ValidateField checks a single answer the way Build would, for prompt-level feedback.
func ValidateField(field, value string, opts Options) error {
	switch field {
	case "project_name":
		if err := required(field, value); err != nil {
			return err
		}
		return matches(opts.ValidateInputs, field, value, projectNameRe, "letters, digits, '-' and '_' only")
	case "domain":
		if err := required(field, value); err != nil {
			return err
		}
		return matches(opts.ValidateInputs, field, strings.ToLower(value), domainRe, "not a valid domain name")
	case "repo_url":
		return repoURL(value)
	case "php_version":
		return matches(opts.ValidateInputs, field, value, phpVersionRe, "want MAJOR.MINOR, e.g. 8.3")
	case "db_name", "db_user":
		return matches(opts.ValidateInputs, field, value, identifierRe, "letters, digits and '_' only")
	case "db_password", "admin_password":
		if value == "" {
			return nil
		}
		return password(opts.ValidateInputs, field, value)
	case "admin_alias":
		return matches(opts.ValidateInputs, field, strings.Trim(value, "/"), aliasRe, "lowercase letters, digits, '-' and '_' only")
	case "allow_list":
		for _, entry := range trimAll([]string{value}) {
			if err := ipv4Entry(entry); err != nil {
				return err
			}
		}
	}
	return nil
}
