package nginx

import (
	"bytes"
	"context"
	"testing"

	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/hostfake"
	"github.com/redentordev/laravel-vps/pkg/plan"
	"github.com/redentordev/laravel-vps/pkg/project"
	"github.com/redentordev/laravel-vps/pkg/rollback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	available = "/etc/nginx/sites-available/shop"
	enabled   = "/etc/nginx/sites-enabled/shop"
)

var (
	shopPlan = plan.Plan{ProjectName: "shop", Domain: "shop.example.com", PHPVersion: "8.3"}
	shopDir  = project.Directory{Path: "/var/www/shop"}
)

func newPublisher(t *testing.T) (*Publisher, *hostfake.Host) {
	t.Helper()
	h := hostfake.New(t)
	return &Publisher{
		Host:           h,
		Server:         NewServer(h),
		Ledger:         rollback.New(nil),
		Out:            formatter.NewWriter(&bytes.Buffer{}, false, true),
		SitesAvailable: "/etc/nginx/sites-available",
		SitesEnabled:   "/etc/nginx/sites-enabled",
		SnippetsRoot:   "/etc/nginx/snippets/laravel-vps",
		DefaultSite:    "default",
	}, h
}

func TestSiteTemplate_Render(t *testing.T) {
	t.Parallel()

	out, err := SiteTemplate{
		ServerName:  "shop.example.com",
		Root:        "/var/www/shop/public",
		FPMSocket:   "/run/php/php8.3-fpm.sock",
		SnippetsDir: "/etc/nginx/snippets/laravel-vps/shop",
	}.Render()
	require.NoError(t, err)

	for _, want := range []string{
		"server_name shop.example.com;",
		"root /var/www/shop/public;",
		"fastcgi_pass unix:/run/php/php8.3-fpm.sock;",
		"include /etc/nginx/snippets/laravel-vps/shop/*.conf;",
		"client_max_body_size 64M;",
		"try_files $uri $uri/ /index.php?$query_string;",
	} {
		assert.Contains(t, out, want)
	}

	_, err = SiteTemplate{ServerName: "x"}.Render()
	assert.Error(t, err)
}

func TestPublish(t *testing.T) {
	t.Parallel()

	p, h := newPublisher(t)
	site, err := p.Publish(context.Background(), shopPlan, shopDir)
	require.NoError(t, err)

	assert.Equal(t, available, site.AvailablePath)
	assert.Contains(t, h.Get(available), "root /var/www/shop/public;")
	target, err := h.Readlink(context.Background(), enabled)
	require.NoError(t, err)
	assert.Equal(t, available, target)
	assert.DirExists(t, h.Path("/etc/nginx/snippets/laravel-vps/shop"))

	require.True(t, h.Ran("nginx -t"))
	assert.Less(t, h.IndexOf("nginx -t"), h.IndexOf("systemctl reload nginx"))
}

func TestPublish_RefusesExistingSite(t *testing.T) {
	t.Parallel()

	p, h := newPublisher(t)
	h.Put(t, available, "# hand written\n")

	_, err := p.Publish(context.Background(), shopPlan, shopDir)
	require.ErrorIs(t, err, ErrSiteAlreadyExists)
	assert.Equal(t, "# hand written\n", h.Get(available))
	assert.Empty(t, h.Commands())
	assert.Zero(t, p.Ledger.Len())
}

func TestPublish_OverwriteBacksUp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, h := newPublisher(t)
	h.Put(t, available, "# old\n")
	require.NoError(t, h.Symlink(ctx, available, enabled))

	pl := shopPlan
	pl.OverwriteSite = true
	site, err := p.Publish(ctx, pl, shopDir)
	require.NoError(t, err)
	assert.Equal(t, "# old\n", h.Get(site.BackupPath))
	assert.Contains(t, h.Get(available), "Managed by laravel-vps")

	p.Ledger.Rollback(ctx)
	assert.Equal(t, "# old\n", h.Get(available))
	target, err := h.Readlink(ctx, enabled)
	require.NoError(t, err)
	assert.Equal(t, available, target)
}

func TestPublish_ValidationFailureUnlinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, h := newPublisher(t)
	h.Fail("nginx -t", "nginx: [emerg] unknown directive \"fastcgi_pas\" in /etc/nginx/sites-enabled/shop:27\nnginx: configuration file /etc/nginx/nginx.conf test failed")

	_, err := p.Publish(ctx, shopPlan, shopDir)
	require.ErrorIs(t, err, ErrConfigValidationFailed)
	assert.Contains(t, err.Error(), "unknown directive")
	assert.NoFileExists(t, h.Path(enabled))
	assert.False(t, h.Ran("systemctl reload nginx"))

	p.Ledger.Rollback(ctx)
	assert.NoFileExists(t, h.Path(available))
	assert.NoDirExists(t, h.Path("/etc/nginx/snippets/laravel-vps/shop"))
}

func TestPublish_DisablesDefaultSite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, h := newPublisher(t)
	h.Put(t, "/etc/nginx/sites-available/default", "server {}\n")
	require.NoError(t, h.Symlink(ctx, "/etc/nginx/sites-available/default", "/etc/nginx/sites-enabled/default"))

	_, err := p.Publish(ctx, shopPlan, shopDir)
	require.NoError(t, err)
	_, err = h.Lstat(ctx, "/etc/nginx/sites-enabled/default")
	require.Error(t, err)

	p.Ledger.Rollback(ctx)
	target, err := h.Readlink(ctx, "/etc/nginx/sites-enabled/default")
	require.NoError(t, err)
	assert.Equal(t, "/etc/nginx/sites-available/default", target)
}

func TestPublish_RollbackReloads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, h := newPublisher(t)

	_, err := p.Publish(ctx, shopPlan, shopDir)
	require.NoError(t, err)
	published := len(h.Commands())

	assert.Empty(t, p.Ledger.Rollback(ctx))
	assert.NoFileExists(t, h.Path(available))
	assert.GreaterOrEqual(t, h.LastIndexOf("nginx -t"), published)
	assert.Greater(t, h.LastIndexOf("systemctl reload nginx"), h.LastIndexOf("nginx -t"))
}

func TestServerApply(t *testing.T) {
	t.Parallel()

	h := hostfake.New(t).Fail("nginx -t", "")
	reverted := false
	err := NewServer(h).Apply(context.Background(), func(context.Context) error { reverted = true; return nil })
	require.ErrorIs(t, err, ErrConfigValidationFailed)
	assert.True(t, reverted)
}
