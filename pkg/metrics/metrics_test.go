package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redentordev/laravel-vps/pkg/hostfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.ObserveStep("shop", "stack", 90*time.Second)
	r.StepFailed("shop", "seed", false)
	r.StepFailed("shop", "seed", false)
	r.StepFailed("shop", "migrate", true)
	r.Certificate("shop", "shop.example.com", false)
	r.Rollback("shop", 3, 1)
	r.Finish("shop", false, 2*time.Minute, time.Unix(1700000000, 0))

	assert.Equal(t, float64(90), testutil.ToFloat64(r.stepDuration.WithLabelValues("shop", "stack")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.stepFailures.WithLabelValues("shop", "seed", "warning")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.stepFailures.WithLabelValues("shop", "migrate", "fatal")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.runSuccess.WithLabelValues("shop")))
	assert.Equal(t, float64(120), testutil.ToFloat64(r.runDuration.WithLabelValues("shop")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.rollbackTotal.WithLabelValues("shop", "ok")))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(r.lastRun.WithLabelValues("shop")))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	h := hostfake.New(t)
	r := NewRecorder()
	r.Finish("shop", true, time.Second, time.Now())

	path := "/var/lib/node_exporter/textfile_collector/laravel_vps.prom"
	require.NoError(t, r.WriteTextfile(context.Background(), h, path))

	out := h.Get(path)
	assert.Contains(t, out, `laravel_vps_run_success{project="shop"} 1`)
	assert.Contains(t, out, "# TYPE laravel_vps_run_duration_seconds gauge")
	assert.NoFileExists(t, h.Path(path+".tmp"))

	expected := strings.NewReader(`
# HELP laravel_vps_run_success Whether the last install run succeeded (1) or not (0)
# TYPE laravel_vps_run_success gauge
laravel_vps_run_success{project="shop"} 1
`)
	assert.NoError(t, testutil.GatherAndCompare(r.Registry(), expected, "laravel_vps_run_success"))
}
