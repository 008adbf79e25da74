package rollback

import (
	"context"
	"errors"
	"testing"

	"github.com/redentordev/laravel-vps/pkg/hostfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRollback_ReverseOrder(t *testing.T) {
	t.Parallel()

	var order []string
	l := New(nil)
	for _, name := range []string{"a", "b", "c"} {
		name := name
		l.Record("step-"+name, "undo "+name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	assert.Empty(t, l.Rollback(context.Background()))
	assert.Equal(t, []string{"c", "b", "a"}, order)
}

func TestRollback_ContinuesPastFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core))

	ran := 0
	l.Record("materialize", "remove project", func(context.Context) error { ran++; return nil })
	l.Record("publish", "remove site", func(context.Context) error { return errors.New("permission denied") })
	l.Record("admin", "remove snippet", func(context.Context) error { panic("boom") })

	errs := l.Rollback(context.Background())
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "panic: boom")
	assert.Contains(t, errs[1].Error(), "permission denied")
	assert.Equal(t, 1, ran)
	assert.Equal(t, 2, logs.FilterMessage("rollback action failed").Len())
}

func TestRollback_RunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	l := New(nil)
	l.Record("s", "count", func(context.Context) error { calls++; return nil })
	l.Rollback(context.Background())
	l.Rollback(context.Background())
	assert.Equal(t, 1, calls)
}

func TestRollback_IgnoresCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	l := New(nil)
	l.Record("s", "check ctx", func(ctx context.Context) error { seen = ctx.Err(); return nil })
	l.Rollback(ctx)
	assert.NoError(t, seen)
}

func TestUndoHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := hostfake.New(t)
	h.Put(t, "/var/www/app/artisan", "")
	h.Put(t, "/etc/nginx/sites-available/app.bak", "old")
	h.Put(t, "/etc/nginx/sites-available/app", "new")
	h.Put(t, "/etc/nginx/sites-available/default", "")

	require.NoError(t, RemoveAll(h, "/var/www/app")(ctx))
	require.NoError(t, Restore(h, "/etc/nginx/sites-available/app.bak", "/etc/nginx/sites-available/app")(ctx))
	require.NoError(t, Relink(h, "/etc/nginx/sites-available/default", "/etc/nginx/sites-enabled/default")(ctx))
	require.NoError(t, Remove(h, "/etc/nginx/sites-enabled/missing")(ctx))

	assert.NoDirExists(t, h.Path("/var/www/app"))
	assert.Equal(t, "old", h.Get("/etc/nginx/sites-available/app"))
	target, err := h.Readlink(ctx, "/etc/nginx/sites-enabled/default")
	require.NoError(t, err)
	assert.Equal(t, "/etc/nginx/sites-available/default", target)
}
