// Package telemetry configures OpenTelemetry tracing. Without an endpoint
// the global tracer provider stays the no-op default.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config configures trace export.
type Config struct {
	// Endpoint is the OTLP/HTTP collector URL, e.g.
	// "http://localhost:4318". Without a path, /v1/traces is used. Empty
	// disables tracing.
	Endpoint string `yaml:"endpoint"`
	// Headers are sent with every export, typically for authentication.
	Headers map[string]string `yaml:"headers"`
	// SampleRatio is the fraction of root spans kept. Default: 1.
	SampleRatio *float64 `yaml:"sample_ratio"`
	// ServiceName defaults to "substackulous".
	ServiceName string `yaml:"service_name"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool { return c.Endpoint != "" }

// Validate checks the endpoint URL and the sample ratio.
func (c Config) Validate() error {
	var errs []error
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("telemetry: endpoint %q must be an http(s) URL", c.Endpoint))
		}
	}
	if c.SampleRatio != nil && (*c.SampleRatio < 0 || *c.SampleRatio > 1) {
		errs = append(errs, fmt.Errorf("telemetry: sample_ratio %v must be within [0, 1]", *c.SampleRatio))
	}
	return errors.Join(errs...)
}

func (c Config) ratio() float64 {
	if c.SampleRatio == nil {
		return 1
	}
	return *c.SampleRatio
}

// tracesURL appends the standard OTLP traces path to a bare collector URL.
func tracesURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || strings.Trim(u.Path, "/") != "" {
		return endpoint
	}
	u.Path = "/v1/traces"
	return u.String()
}

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(context.Context) error

// Setup installs the global tracer provider and propagator. The returned
// function must be called on shutdown; it is a no-op when tracing is off.
func Setup(ctx context.Context, cfg Config, version string, logger *slog.Logger) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(tracesURL(cfg.Endpoint))}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "substackulous"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.ratio()))),
	)
	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("telemetry export failed", "error", err)
	}))

	logger.Info("tracing enabled", "endpoint", cfg.Endpoint, "sample_ratio", cfg.ratio())
	return tp.Shutdown, nil
}
