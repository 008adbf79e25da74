// Package telemetry wires OpenTelemetry tracing into laravel-vps.
// Tracing is a noop unless an OTLP endpoint or debug output is configured.
package telemetry

import (
	"context"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "laravel-vps"

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	initOnce       sync.Once
	enabled        bool
)

// Config holds telemetry configuration
type Config struct {
	ServiceVersion string
	// OTLPEndpoint is the collector address, e.g. localhost:4317
	OTLPEndpoint string
	// Debug prints spans to stdout
	Debug bool
}

// ConfigFromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT and LARAVEL_VPS_TRACE_DEBUG.
func ConfigFromEnv(version string) Config {
	return Config{
		ServiceVersion: version,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Debug:          os.Getenv("LARAVEL_VPS_TRACE_DEBUG") == "1",
	}
}

// Init sets up the global tracer once. Safe to call when tracing is off.
func Init(cfg Config) error {
	var err error
	initOnce.Do(func() {
		err = initTracer(cfg)
	})
	return err
}

func initTracer(cfg Config) error {
	if cfg.OTLPEndpoint == "" && !cfg.Debug {
		tracer = noop.NewTracerProvider().Tracer(serviceName)
		enabled = false
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var exporter sdktrace.SpanExporter
	if cfg.Debug {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		))
	}
	if err != nil {
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(serviceName)
	enabled = true
	return nil
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

// IsEnabled returns true if spans are exported somewhere.
func IsEnabled() bool {
	return enabled
}

// Tracer returns the global tracer, a noop one before Init.
func Tracer() trace.Tracer {
	if tracer == nil {
		return noop.NewTracerProvider().Tracer(serviceName)
	}
	return tracer
}

// StartSpan starts a new span with the given name
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// TraceCommand starts a span for a command run on a host.
func TraceCommand(ctx context.Context, host, command string) (context.Context, trace.Span) {
	return StartSpan(ctx, "host.exec",
		trace.WithAttributes(
			attribute.String("host.name", host),
			attribute.String("host.command", truncate(command, 120)),
		),
	)
}

// TraceStep starts a span for one installation step.
func TraceStep(ctx context.Context, runID, step string) (context.Context, trace.Span) {
	return StartSpan(ctx, "install."+step,
		trace.WithAttributes(
			attribute.String("install.run_id", runID),
			attribute.String("install.step", step),
		),
	)
}

// TraceHTTP starts a span for outbound HTTP requests.
func TraceHTTP(ctx context.Context, method, url string) (context.Context, trace.Span) {
	return StartSpan(ctx, "http.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", url),
		),
	)
}

// RecordError records an error on the span carried by ctx.
func RecordError(ctx context.Context, err error) {
	if span := trace.SpanFromContext(ctx); span != nil {
		span.RecordError(err)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
