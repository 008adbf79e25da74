package laravel

import (
	"context"
	"errors"
	"path"
	"strconv"

	"github.com/redentordev/laravel-vps/pkg/envfile"
	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/plan"
)

// Configurator writes .env and bootstraps the framework.
type Configurator struct {
	Host    host.Host
	Artisan *Artisan
	Out     *formatter.Output
}

// EnvPairs returns the keys managed in .env, in write order.
func EnvPairs(p plan.Plan) []envfile.Pair {
	pairs := []envfile.Pair{
		{Key: "APP_NAME", Value: p.ProjectName},
		{Key: "APP_ENV", Value: "production"},
		{Key: "APP_DEBUG", Value: "false"},
		{Key: "APP_URL", Value: p.AppURL(false)},
	}
	if p.Database.Enabled {
		pairs = append(pairs,
			envfile.Pair{Key: "DB_CONNECTION", Value: "mysql"},
			envfile.Pair{Key: "DB_HOST", Value: p.Database.Host},
			envfile.Pair{Key: "DB_PORT", Value: strconv.Itoa(p.Database.Port)},
			envfile.Pair{Key: "DB_DATABASE", Value: p.Database.Name},
			envfile.Pair{Key: "DB_USERNAME", Value: p.Database.User},
			envfile.Pair{Key: "DB_PASSWORD", Value: p.Database.Password},
		)
	}
	return pairs
}

// Configure upserts the managed keys, generates APP_KEY and caches the
// configuration. Only key generation failing is an error.
func (c *Configurator) Configure(ctx context.Context, dir string, p plan.Plan) error {
	f, err := c.load(ctx, dir)
	if err != nil {
		return err
	}

	f.Set(EnvPairs(p)...)
	if err := f.Save(ctx, c.Host); err != nil {
		return err
	}
	c.Out.Verbose("Wrote %d keys to %s", len(EnvPairs(p)), f.Path)

	if err := c.Artisan.GenerateKey(ctx, dir); err != nil {
		return err
	}

	if err := c.Artisan.CacheConfig(ctx, dir); err != nil {
		c.Out.Warning("config:cache failed, continuing without a cached config: %v", err)
	}
	return nil
}

// SetURL switches APP_URL, e.g. to https once a certificate is issued, and
// refreshes the config cache.
func (c *Configurator) SetURL(ctx context.Context, dir, url string) error {
	f, err := c.load(ctx, dir)
	if err != nil {
		return err
	}
	f.Set(envfile.Pair{Key: "APP_URL", Value: url})
	if err := f.Save(ctx, c.Host); err != nil {
		return err
	}
	return c.Artisan.CacheConfig(ctx, dir)
}

// load reads dir/.env, starting an empty file when there is none yet.
func (c *Configurator) load(ctx context.Context, dir string) (*envfile.File, error) {
	f, err := envfile.Load(ctx, c.Host, dir)
	if errors.Is(err, host.ErrNotExist) {
		return &envfile.File{Path: path.Join(dir, envfile.Name)}, nil
	}
	return f, err
}
