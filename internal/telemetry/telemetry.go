// Package telemetry wires OpenTelemetry tracing and Prometheus-backed
// metrics for the wirelink daemon.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds telemetry configuration
type Config struct {
	Service string
	Version string

	Tracing TracingConfig
	Metrics MetricsConfig
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	Headers    map[string]string
	SampleRate float64
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool
}

// Telemetry manages OpenTelemetry providers and the Prometheus registry
// the connection manager's collectors register into.
type Telemetry struct {
	config     Config
	tracer     trace.Tracer
	meter      metric.Meter
	registry   *prometheus.Registry
	shutdown   []func(context.Context) error
	resource   *resource.Resource
	propagator propagation.TextMapPropagator
}

// New creates a new telemetry instance
func New(config Config) (*Telemetry, error) {
	t := &Telemetry{
		config:     config,
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}

	if err := t.initResource(); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if config.Tracing.Enabled {
		if err := t.initTracing(); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	} else {
		t.tracer = otel.GetTracerProvider().Tracer("wirelink")
	}

	if config.Metrics.Enabled {
		if err := t.initMetrics(); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	} else {
		t.meter = otel.GetMeterProvider().Meter("wirelink")
	}

	otel.SetTextMapPropagator(t.propagator)

	return t, nil
}

// initResource creates the OpenTelemetry resource
func (t *Telemetry) initResource() error {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(t.config.Service),
			semconv.ServiceVersion(t.config.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	t.resource = res
	return nil
}

// initTracing initializes the tracing provider
func (t *Telemetry) initTracing() error {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(30 * time.Second),
	}
	if t.config.Tracing.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(t.config.Tracing.Endpoint))
	}
	if len(t.config.Tracing.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(t.config.Tracing.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	if t.config.Tracing.SampleRate > 0 && t.config.Tracing.SampleRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(t.config.Tracing.SampleRate)
	} else {
		sampler = sdktrace.AlwaysSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(t.resource),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	t.tracer = tp.Tracer("wirelink")
	t.shutdown = append(t.shutdown, tp.Shutdown)

	return nil
}

// initMetrics builds the Prometheus registry and bridges the OTel meter
// into it. The same registry receives the connection manager's collectors.
func (t *Telemetry) initMetrics() error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(t.resource),
	)

	otel.SetMeterProvider(mp)
	t.registry = registry
	t.meter = mp.Meter("wirelink")
	t.shutdown = append(t.shutdown, mp.Shutdown)

	return nil
}

// Tracer returns the tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the meter
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Registry returns the Prometheus registry, or nil when metrics are
// disabled.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// Propagator returns the propagator
func (t *Telemetry) Propagator() propagation.TextMapPropagator {
	return t.propagator
}

// Shutdown gracefully shuts down telemetry providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
