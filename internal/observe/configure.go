// Package observe bootstraps OpenTelemetry for the client and the mock
// server, and instruments the HTTP paths between them.
package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/smartcampus/campus-client/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the configured providers.
type ShutdownFunc func(ctx context.Context) error

// stdoutExporterWriter receives stdout exporter output. Standard output
// belongs to the command result, so exporters write to stderr.
var stdoutExporterWriter io.Writer = os.Stderr

// Configure installs the global tracer and meter providers. When telemetry
// is disabled only the otel logger is configured, and the returned shutdown
// is a no-op.
func Configure(ctx context.Context, cfg config.ObserveConfig) (ShutdownFunc, error) {
	configureOtelLogging(cfg.SDKLogLevel)

	if !cfg.Enabled {
		log.Debug().Msg("telemetry: disabled")
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource creation failed: %w", err)
	}

	var shutdowns []ShutdownFunc

	tracerProvider, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	shutdowns = append(shutdowns, tracerProvider.Shutdown)

	if cfg.MetricsEnabled {
		meterProvider, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			_ = tracerProvider.Shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(meterProvider)
		shutdowns = append(shutdowns, meterProvider.Shutdown)
	}

	log.Info().
		Str("type", cfg.Type).
		Bool("metrics", cfg.MetricsEnabled).
		Msg("telemetry: configured")

	return func(ctx context.Context) error {
		var errs []error
		for _, shutdown := range shutdowns {
			errs = append(errs, shutdown(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func newTracerProvider(ctx context.Context, cfg config.ObserveConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	switch cfg.Type {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(stdoutExporterWriter))
	default:
		return nil, fmt.Errorf("unknown telemetry type %q, expected grpc or stdout", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("trace exporter creation failed: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(time.Duration(cfg.TraceBatchTimeoutSeconds)*time.Second),
		),
	), nil
}

func newMeterProvider(ctx context.Context, cfg config.ObserveConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)

	switch cfg.Type {
	case "grpc":
		exporter, err = otlpmetricgrpc.New(ctx)
	case "stdout":
		exporter, err = stdoutmetric.New(stdoutmetric.WithWriter(stdoutExporterWriter))
	default:
		return nil, fmt.Errorf("unknown telemetry type %q, expected grpc or stdout", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("metric exporter creation failed: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(time.Duration(cfg.MetricReadIntervalSeconds)*time.Second),
		)),
	), nil
}

// configureOtelLogging routes the SDK's internal logging through zerolog at
// the configured level.
func configureOtelLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	otelLogger := log.Logger.Level(lvl).With().Str("component", "otel").Logger()
	otel.SetLogger(zerologr.New(&otelLogger))

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		otelLogger.Warn().Err(err).Msg("telemetry error")
	}))
}
