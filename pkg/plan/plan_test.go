package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefaults() Defaults {
	return Defaults{
		ProjectName:   "shop",
		Domain:        "shop.example.com",
		PHPVersion:    "8.3",
		Method:        MethodScaffold,
		Branch:        "main",
		DBHost:        "127.0.0.1",
		DBPort:        3306,
		DBPassword:    "generated-db-pass",
		AdminAlias:    "phpmyadmin",
		AdminUser:     "admin",
		AdminPassword: "generated-admin-pass",
	}
}

var strict = Options{ValidateInputs: true, SecureAdminPanel: true}

func boolPtr(b bool) *bool { return &b }

func TestBuild_EmptyAnswersUseDefaults(t *testing.T) {
	t.Parallel()

	p, err := Build(Answers{}, testDefaults(), strict)
	require.NoError(t, err)

	assert.Equal(t, "shop", p.ProjectName)
	assert.Equal(t, "shop.example.com", p.Domain)
	assert.Equal(t, MethodScaffold, p.Method)
	assert.Empty(t, p.RepoURL)
	assert.Empty(t, p.Branch)
	assert.True(t, p.Database.Enabled)
	assert.Equal(t, "shop", p.Database.Name)
	assert.Equal(t, "generated-db-pass", p.Database.Password)
	assert.False(t, p.Admin.Enabled)
	assert.Equal(t, "http://shop.example.com", p.AppURL(false))
}

func TestBuild_DerivesDatabaseIdentifiers(t *testing.T) {
	t.Parallel()

	p, err := Build(Answers{ProjectName: "my-shop"}, testDefaults(), strict)
	require.NoError(t, err)
	assert.Equal(t, "my_shop", p.Database.Name)
	assert.Equal(t, "my_shop", p.Database.User)
}

func TestBuild_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		answers Answers
		field   string
	}{
		{"malformed domain", Answers{Domain: "not a domain"}, "domain"},
		{"domain without dot", Answers{Domain: "localhost"}, "domain"},
		{"domain with trailing hyphen label", Answers{Domain: "shop-.example.com"}, "domain"},
		{"bad project name", Answers{ProjectName: "../etc"}, "project_name"},
		{"bad php version", Answers{PHPVersion: "latest"}, "php_version"},
		{"unknown method", Answers{Method: "rsync"}, "method"},
		{"clone without repo", Answers{Method: "clone"}, "repo_url"},
		{"option-like repo", Answers{Method: "clone", RepoURL: "--upload-pack=touch /tmp/x"}, "repo_url"},
		{"repo without scheme", Answers{Method: "clone", RepoURL: "github.com/acme/shop"}, "repo_url"},
		{"repo with unknown scheme", Answers{Method: "clone", RepoURL: "ext::sh -c touch% /tmp/x"}, "repo_url"},
		{"short db password", Answers{DBPassword: "short"}, "db_password"},
		{"bad db name", Answers{DBName: "shop;drop"}, "db_name"},
		{"short admin password", Answers{AdminEnabled: boolPtr(true), AdminPassword: "1234567"}, "admin_password"},
		{"bad allow-list ip", Answers{AdminEnabled: boolPtr(true), AllowList: []string{"300.1.1.1"}}, "allow_list"},
		{"ipv6 allow-list entry", Answers{AdminEnabled: boolPtr(true), AllowList: []string{"2001:db8::1"}}, "allow_list"},
		{"bad cidr", Answers{AdminEnabled: boolPtr(true), AllowList: []string{"10.0.0.0/33"}}, "allow_list"},
		{"admin without access control", Answers{AdminEnabled: boolPtr(true), AdminBasicAuth: boolPtr(false)}, "admin_panel"},
		{"bad email", Answers{CertEmail: "ops"}, "cert_email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(tt.answers, testDefaults(), strict)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestBuild_FailsFastOnFirstField(t *testing.T) {
	t.Parallel()

	_, err := Build(Answers{ProjectName: "bad name", Domain: "bad domain", DBPassword: "x"}, testDefaults(), strict)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "project_name", ve.Field)
}

func TestBuild_AllowListAcceptsAddressesAndCIDRs(t *testing.T) {
	t.Parallel()

	p, err := Build(Answers{
		AdminEnabled:   boolPtr(true),
		AdminBasicAuth: boolPtr(false),
		AllowList:      []string{"203.0.113.4, 10.0.0.0/8", " 192.168.1.0/24 "},
	}, testDefaults(), strict)
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.4", "10.0.0.0/8", "192.168.1.0/24"}, p.Admin.AllowList)
	assert.True(t, p.Admin.HasAccessControl())
	assert.False(t, p.Admin.HasBasicAuth())
}

func TestBuild_InsecureAdminAllowedWhenFlagOff(t *testing.T) {
	t.Parallel()

	p, err := Build(Answers{AdminEnabled: boolPtr(true), AdminBasicAuth: boolPtr(false)}, testDefaults(),
		Options{ValidateInputs: true, SecureAdminPanel: false})
	require.NoError(t, err)
	assert.True(t, p.Admin.Enabled)
	assert.False(t, p.Admin.HasAccessControl())
	assert.Equal(t, "https://shop.example.com/phpmyadmin", p.AdminURL(true))
}

func TestBuild_ValidateInputsOffSkipsFormatChecks(t *testing.T) {
	t.Parallel()

	loose := Options{ValidateInputs: false, SecureAdminPanel: true}
	p, err := Build(Answers{Domain: "intranet", DBPassword: "short"}, testDefaults(), loose)
	require.NoError(t, err)
	assert.Equal(t, "intranet", p.Domain)

	_, err = Build(Answers{DBPassword: ""}, Defaults{ProjectName: "shop", Domain: "x", PHPVersion: "8.3", Method: MethodScaffold}, loose)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "db_password", ve.Field)
}

func TestBuild_NoDatabaseDisablesSeeders(t *testing.T) {
	t.Parallel()

	p, err := Build(Answers{DBEnabled: boolPtr(false), RunSeeders: boolPtr(true)}, testDefaults(), strict)
	require.NoError(t, err)
	assert.False(t, p.Database.Enabled)
	assert.False(t, p.RunSeeders)
}

func TestRedactedDoesNotTouchOriginal(t *testing.T) {
	t.Parallel()

	p, err := Build(Answers{AdminEnabled: boolPtr(true), AllowList: []string{"203.0.113.4"}}, testDefaults(), strict)
	require.NoError(t, err)

	r := p.Redacted()
	assert.Equal(t, "********", r.Database.Password)
	assert.Equal(t, "********", r.Admin.BasicAuthPassword)
	assert.Equal(t, "generated-db-pass", p.Database.Password)

	r.Admin.AllowList[0] = "0.0.0.0"
	assert.Equal(t, "203.0.113.4", p.Admin.AllowList[0])
}

func TestSaveAndFileCollectorRoundTrip(t *testing.T) {
	t.Parallel()

	p, err := Build(Answers{
		Method:       "clone",
		RepoURL:      "https://github.com/acme/shop.git",
		Branch:       "release",
		AdminEnabled: boolPtr(true),
		AllowList:    []string{"203.0.113.0/24"},
	}, testDefaults(), strict)
	require.NoError(t, err)

	dir := t.TempDir()
	withSecrets := filepath.Join(dir, "plan.yaml")
	require.NoError(t, Save(withSecrets, p, true))

	got, err := FileCollector{Path: withSecrets, Options: strict}.Collect(context.Background(), Defaults{})
	require.NoError(t, err)
	assert.Equal(t, p, got)

	redactedPath := filepath.Join(dir, "redacted.yaml")
	require.NoError(t, Save(redactedPath, p, false))
	data, err := os.ReadFile(redactedPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "generated-db-pass")

	_, err = FileCollector{Path: redactedPath, Options: strict}.Collect(context.Background(), testDefaults())
	assert.True(t, IsValidationError(err))
}

func TestGeneratePassword(t *testing.T) {
	t.Parallel()

	a, err := GeneratePassword(20)
	require.NoError(t, err)
	b, err := GeneratePassword(20)
	require.NoError(t, err)
	assert.Len(t, a, 20)
	assert.NotEqual(t, a, b)
	assert.NoError(t, ValidateField("db_password", a, strict))
}

func TestValidateField_RepoURL(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{
		"https://github.com/acme/shop.git",
		"ssh://git@github.com/acme/shop.git",
		"git@github.com:acme/shop.git",
		"file:///srv/git/shop.git",
	} {
		assert.NoError(t, ValidateField("repo_url", ok, Options{}), ok)
	}

	// Enforced even when input validation is off.
	for _, bad := range []string{"", "-c", "--upload-pack=id", "shop.git", "https://"} {
		err := ValidateField("repo_url", bad, Options{})
		assert.True(t, IsValidationError(err), bad)
	}
}
