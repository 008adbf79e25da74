package installer

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"path/filepath"
	"slices"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	history "github.com/redentordev/laravel-vps/internal/state"
	"github.com/redentordev/laravel-vps/pkg/config"
	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/hostfake"
	"github.com/redentordev/laravel-vps/pkg/laravel"
	"github.com/redentordev/laravel-vps/pkg/plan"
	"github.com/redentordev/laravel-vps/pkg/ssl"
	"github.com/redentordev/laravel-vps/pkg/state"
)

const (
	osRelease = "ID=ubuntu\nID_LIKE=debian\nVERSION_ID=\"24.04\"\nVERSION_CODENAME=noble\n"
	candidate = "php8.3-fpm:\n  Installed: (none)\n  Candidate: 8.3.6-0ubuntu0.24.04.1\n"
	serverIP  = "198.51.100.7"
)

type staticCollector struct {
	answers plan.Answers
	opts    plan.Options
}

func (c staticCollector) Collect(_ context.Context, d plan.Defaults) (plan.Plan, error) {
	return plan.Build(c.answers, d, c.opts)
}

type staticFetcher string

func (f staticFetcher) Fetch(context.Context, string) (string, error) { return string(f), nil }

type recordingDB struct {
	provisioned []plan.Database
}

func (r *recordingDB) Provision(_ context.Context, db plan.Database) error {
	r.provisioned = append(r.provisioned, db)
	return nil
}

func boolPtr(b bool) *bool { return &b }

type fixture struct {
	host *hostfake.Host
	logs *observer.ObservedLogs
	out  *bytes.Buffer
	inst *Installer
}

func newFixture(t *testing.T, answers plan.Answers, dnsRecords ...string) *fixture {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Load(v)
	require.NoError(t, err)

	h := hostfake.New(t)
	h.Put(t, "/etc/os-release", osRelease)
	h.On("apt-cache policy", candidate, nil)

	core, logs := observer.New(zapcore.DebugLevel)
	out := &bytes.Buffer{}

	var addrs []netip.Addr
	for _, r := range dnsRecords {
		addrs = append(addrs, netip.MustParseAddr(r))
	}
	dns := ssl.NewDNSChecker([]string{"1.1.1.1:53"}, 0).WithLookup(func(context.Context, string, string) ([]netip.Addr, error) {
		return addrs, nil
	})

	defaults, err := PlanDefaults(cfg)
	require.NoError(t, err)

	return &fixture{
		host: h,
		logs: logs,
		out:  out,
		inst: &Installer{
			Config:    cfg,
			Host:      h,
			Collector: staticCollector{answers: answers, opts: plan.Options{ValidateInputs: true}},
			Defaults:  defaults,
			Locker:    state.NewFileLock(filepath.Join(t.TempDir(), "laravel-vps.lock")),
			Out:       formatter.NewWriter(out, false, true),
			Log:       zap.New(core),
			DNS:       dns,
			IPFetcher: staticFetcher(serverIP),
			Database:  &recordingDB{},
		},
	}
}

func TestRun_ScaffoldWithoutDatabase(t *testing.T) {
	t.Parallel()

	f := newFixture(t, plan.Answers{
		ProjectName: "shop",
		Domain:      "shop.example.com",
		Method:      "scaffold",
		DBEnabled:   boolPtr(false),
	}, "203.0.113.10")

	rep, err := f.inst.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.Succeeded())
	assert.Equal(t, ssl.StatusSkipped, rep.Certificate.Status)
	assert.Equal(t, "http://shop.example.com", rep.AppURL)
	assert.False(t, f.host.Ran("certbot --nginx"))
	assert.False(t, f.host.Ran("artisan migrate"))
	assert.True(t, f.host.Ran("composer create-project --no-interaction --prefer-dist laravel/laravel shop"))
	assert.Empty(t, f.inst.Database.(*recordingDB).provisioned)

	env := f.host.Get("/var/www/shop/.env")
	assert.Contains(t, env, "APP_URL=http://shop.example.com\n")
	assert.NotContains(t, env, "DB_DATABASE")

	site := f.host.Get("/etc/nginx/sites-available/shop")
	assert.Contains(t, site, "root /var/www/shop/public;")
	assert.Contains(t, site, "unix:/run/php/php8.3-fpm.sock")

	assert.Less(t, f.host.IndexOf("key:generate"), f.host.IndexOf("nginx -t"))
	assert.Greater(t, f.host.IndexOf("chown -R www-data:www-data /var/www/shop"), f.host.IndexOf("nginx -t"))
	assert.Contains(t, f.out.String(), "http://shop.example.com")

	runs, err := history.NewHistoryManager(f.host, "/var/lib/laravel-vps").List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusSuccess, runs[0].Status)
	assert.Equal(t, string(ssl.StatusSkipped), runs[0].Cert)
	assert.Equal(t, rep.RunID, runs[0].ID)
}

func TestRun_CloneFallsBackToDefaultBranch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, plan.Answers{
		ProjectName: "blog",
		Domain:      "blog.example.com",
		Method:      "clone",
		RepoURL:     "https://github.com/acme/blog.git",
		Branch:      "release",
		DBPassword:  "s3cret-password",
		RunSeeders:  boolPtr(true),
	}, serverIP)
	f.host.
		On("ls-remote --heads", "a1b2c3\trefs/heads/main\nd4e5f6\trefs/heads/develop\n", nil).
		On("ls-remote --symref", "ref: refs/heads/main\tHEAD\na1b2c3\tHEAD\n", nil).
		On("log -1", "a1b2c3\nInitial commit\n", nil)

	rep, err := f.inst.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, f.host.Ran("git clone --depth 1 --branch main --single-branch -- https://github.com/acme/blog.git /var/www/blog"))
	assert.False(t, f.host.Ran("--branch release"))
	assert.True(t, f.host.Ran("composer install --no-interaction --prefer-dist --no-dev --optimize-autoloader"))
	assert.Contains(t, f.out.String(), `Branch "release" not found`)
	assert.Equal(t, "a1b2c3", rep.Commit)

	db := f.inst.Database.(*recordingDB)
	require.Len(t, db.provisioned, 1)
	assert.Equal(t, "blog", db.provisioned[0].Name)
	assert.Less(t, f.host.IndexOf("artisan migrate --force"), f.host.IndexOf("artisan db:seed --force"))

	// DNS matches, so certbot runs and APP_URL moves to https.
	assert.Equal(t, ssl.StatusIssued, rep.Certificate.Status)
	assert.True(t, f.host.Ran("certbot --nginx -d blog.example.com"))
	assert.Equal(t, "https://blog.example.com", rep.AppURL)
	assert.Contains(t, f.host.Get("/var/www/blog/.env"), "APP_URL=https://blog.example.com\n")
}

func TestRun_AdminPanelWithoutAccessControl(t *testing.T) {
	t.Parallel()

	f := newFixture(t, plan.Answers{
		ProjectName:    "shop",
		Domain:         "shop.example.com",
		DBPassword:     "s3cret-password",
		AdminEnabled:   boolPtr(true),
		AdminBasicAuth: boolPtr(false),
	}, "203.0.113.10")

	rep, err := f.inst.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, rep.AdminPanel)
	assert.Equal(t, "http://shop.example.com/phpmyadmin", rep.AdminURL)
	assert.Contains(t, f.host.Get(rep.AdminPanel.SnippetPath), "/phpmyadmin")
	assert.Empty(t, rep.AdminPanel.HtpasswdPath)

	advisories := f.logs.FilterField(zap.Bool("advisory", true))
	require.Equal(t, 1, advisories.Len())
	assert.Contains(t, advisories.All()[0].Message, "no basic auth")
}

func TestRun_RollsBackWhenKeyGenerationFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, plan.Answers{
		ProjectName: "shop",
		Domain:      "shop.example.com",
		DBEnabled:   boolPtr(false),
	})
	f.host.Fail("key:generate", "Unable to set application key")

	rep, err := f.inst.Run(context.Background())
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepConfigure, se.Step)
	assert.ErrorIs(t, err, laravel.ErrKeyGeneration)

	assert.Equal(t, history.StatusRolledBack, rep.Status)
	assert.Empty(t, rep.RollbackErrors)
	assert.NoDirExists(t, f.host.Path("/var/www/shop"))
	assert.NoFileExists(t, f.host.Path("/etc/nginx/sites-available/shop"))
	assert.Contains(t, f.out.String(), `failed at step "configure"`)

	runs, err := history.NewHistoryManager(f.host, "/var/lib/laravel-vps").List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StepConfigure, runs[0].FailedStep)
}

func TestRun_RollbackReloadsNginx(t *testing.T) {
	t.Parallel()

	f := newFixture(t, plan.Answers{
		ProjectName:    "shop",
		Domain:         "shop.example.com",
		DBPassword:     "s3cret-password",
		AdminEnabled:   boolPtr(true),
		AdminBasicAuth: boolPtr(false),
	}, "203.0.113.10")
	f.host.Fail("curl -fsSL -o", "curl: (6) Could not resolve host")

	rep, err := f.inst.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepAdminPanel, FailedStep(err))
	assert.Equal(t, history.StatusRolledBack, rep.Status)
	assert.Empty(t, rep.RollbackErrors)

	assert.NoFileExists(t, f.host.Path("/etc/nginx/sites-available/shop"))
	assert.NoFileExists(t, f.host.Path("/etc/nginx/sites-enabled/shop"))
	assert.Greater(t, f.host.LastIndexOf("systemctl reload nginx"), f.host.IndexOf("curl -fsSL -o"))
	assert.Less(t,
		slices.Index(rep.RolledBack, "remove site file /etc/nginx/sites-available/shop"),
		slices.Index(rep.RolledBack, "reload nginx"))
	assert.Equal(t, "created directory /var/www/shop", rep.RolledBack[len(rep.RolledBack)-1])
}

func TestRun_DryRunChangesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, plan.Answers{
		ProjectName: "shop",
		Domain:      "shop.example.com",
		DBEnabled:   boolPtr(false),
	}, "203.0.113.10")
	var actions []string
	f.inst.Host = host.NewDryRun(f.host, func(action string) { actions = append(actions, action) })
	f.inst.Config.DryRun = true

	rep, err := f.inst.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Succeeded())

	// Queries still reach the server, changes do not.
	assert.True(t, f.host.Ran("apt-cache policy php8.3-fpm"))
	assert.False(t, f.host.Ran("apt-get install"))
	assert.False(t, f.host.Ran("composer create-project"))
	assert.False(t, f.host.Ran("systemctl reload nginx"))
	assert.NoDirExists(t, f.host.Path("/var/www/shop"))
	assert.NoFileExists(t, f.host.Path("/etc/nginx/sites-available/shop"))

	assert.Contains(t, actions, "would create directory /var/www/shop")
	assert.Contains(t, actions, "would run: systemctl reload nginx")

	runs, err := history.NewHistoryManager(f.host, "/var/lib/laravel-vps").List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_InvalidInputNeedsNoRollback(t *testing.T) {
	t.Parallel()

	f := newFixture(t, plan.Answers{ProjectName: "shop", Domain: "not a domain"})

	rep, err := f.inst.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepCollect, FailedStep(err))
	assert.True(t, plan.IsValidationError(err))
	assert.Equal(t, history.StatusFailed, rep.Status)
	assert.False(t, f.host.Ran("apt-get install"))
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, plan.Answers{ProjectName: "shop", Domain: "shop.example.com"})
	lockPath := filepath.Join(t.TempDir(), "held.lock")
	holder := state.NewFileLock(lockPath)
	_, err := holder.Acquire(context.Background(), "install")
	require.NoError(t, err)
	defer func() { _ = holder.Release(context.Background()) }()
	f.inst.Locker = state.NewFileLock(lockPath)

	_, err = f.inst.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepLock, FailedStep(err))
	assert.ErrorIs(t, err, state.ErrLocked)
	assert.False(t, f.host.Ran("apt-get update"))
}

func TestRun_PreflightFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, plan.Answers{ProjectName: "shop", Domain: "shop.example.com"})
	f.host.UID = 1000

	_, err := f.inst.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepPreflight, FailedStep(err))
}

func TestStepError(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := error(&StepError{Step: StepPublish, Err: base})
	assert.Equal(t, "publish: boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, StepPublish, FailedStep(err))
	assert.Empty(t, FailedStep(base))
}
