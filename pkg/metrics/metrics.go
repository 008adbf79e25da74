// Package metrics exports the outcome of an install run as a Prometheus
// textfile for node-exporter's textfile collector.
package metrics

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/redentordev/laravel-vps/pkg/host"
)

const namespace = "laravel_vps"

// Recorder collects one run's metrics in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	runDuration   *prometheus.GaugeVec
	runSuccess    *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
	stepDuration  *prometheus.GaugeVec
	stepFailures  *prometheus.CounterVec
	certIssued    *prometheus.GaugeVec
	rollbackTotal *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last install run in seconds",
		}, []string{"project"}),
		runSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "Whether the last install run succeeded (1) or not (0)",
		}, []string{"project"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_timestamp_seconds",
			Help:      "Unix time the last install run finished",
		}, []string{"project"}),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Duration of each step of the last run in seconds",
		}, []string{"project", "step"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "failures_total",
			Help:      "Steps that failed or degraded during the last run",
		}, []string{"project", "step", "severity"}),
		certIssued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "certificate_issued",
			Help:      "Whether a certificate was issued during the last run",
		}, []string{"project", "domain"}),
		rollbackTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rollback_actions",
			Help:      "Undo actions run by the last rollback, by result",
		}, []string{"project", "result"}),
	}
	r.registry.MustRegister(
		r.runDuration,
		r.runSuccess,
		r.lastRun,
		r.stepDuration,
		r.stepFailures,
		r.certIssued,
		r.rollbackTotal,
	)
	return r
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStep records how long a step took.
func (r *Recorder) ObserveStep(project, step string, d time.Duration) {
	r.stepDuration.WithLabelValues(project, step).Set(d.Seconds())
}

// StepFailed counts a fatal or degraded step.
func (r *Recorder) StepFailed(project, step string, fatal bool) {
	severity := "warning"
	if fatal {
		severity = "fatal"
	}
	r.stepFailures.WithLabelValues(project, step, severity).Inc()
}

// Certificate records whether the domain got a certificate.
func (r *Recorder) Certificate(project, domain string, issued bool) {
	r.certIssued.WithLabelValues(project, domain).Set(boolValue(issued))
}

// Rollback records how many undo actions ran and how many failed.
func (r *Recorder) Rollback(project string, total, failed int) {
	r.rollbackTotal.WithLabelValues(project, "ok").Set(float64(total - failed))
	r.rollbackTotal.WithLabelValues(project, "failed").Set(float64(failed))
}

// Finish records the run outcome.
func (r *Recorder) Finish(project string, success bool, d time.Duration, at time.Time) {
	r.runDuration.WithLabelValues(project).Set(d.Seconds())
	r.runSuccess.WithLabelValues(project).Set(boolValue(success))
	r.lastRun.WithLabelValues(project).Set(float64(at.Unix()))
}

// Render returns the metrics in the Prometheus text format.
func (r *Recorder) Render() ([]byte, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// WriteTextfile writes the metrics to path on h. The file is written next to
// its destination and renamed so the collector never reads a partial file.
func (r *Recorder) WriteTextfile(ctx context.Context, h host.Host, path string) error {
	data, err := r.Render()
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := h.WriteFile(ctx, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	if err := h.Rename(ctx, tmp, path); err != nil {
		_ = h.Remove(ctx, tmp)
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
