// Package observability installs OpenTelemetry tracing for feedbackd.
//
// Spans come from otelgin on the HTTP surface, the GORM tracing plugin on
// the store, and manual spans in the ingest service and the worker pool.
// All of them reach the collector through the provider installed here.
package observability

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-feedback-pipeline/internal/config"
)

// Shutdown flushes pending spans and stops the exporter.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Replaced in tests.
var (
	newExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	}

	newResource = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		return resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(version),
			),
			resource.WithHost(),
			resource.WithProcessPID(),
		)
	}
)

// SetupOTel installs a batching OTLP/gRPC tracer provider and the W3C trace
// context and baggage propagators. When tracing is disabled it installs
// nothing and returns a no-op Shutdown. On error the globals are untouched.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (Shutdown, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("observability: OTEL_EXPORTER_OTLP_ENDPOINT is empty")
	}

	exp, err := newExporter(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg.ServiceName, version)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func exporterOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

// sampler honours the parent's decision and samples root spans at ratio,
// clamped to [0, 1].
func sampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}
