package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// metricsExportInterval is how often accumulated metrics are pushed to the
// collector.
const metricsExportInterval = 60 * time.Second

// NewMeterProvider builds the meter provider for the configured OTLP
// collector and installs it as the global provider. A nil or disabled
// configuration yields a no-op provider, so recording sites never branch
// on whether metrics are on. The caller owns Shutdown of the returned
// provider; serviceVersion is the build version reported in the resource
// attributes.
func NewMeterProvider(ctx context.Context, cfg *Config, serviceVersion string) (metric.MeterProvider, error) {
	if !metricsEnabled(cfg) {
		slog.Info("Metrics disabled, using no-op meter provider")
		return noop.NewMeterProvider(), nil
	}

	// resource.New instead of resource.Default() to avoid schema URL
	// conflicts between otel SDK versions.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.GetServiceName()),
			semconv.ServiceVersion(serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporterOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.GetEndpoint()),
	}
	if cfg.GetInsecure() {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(metricsExportInterval)),
		),
	)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized",
		"endpoint", cfg.GetEndpoint(),
		"insecure", cfg.GetInsecure(),
	)

	return mp, nil
}

// metricsEnabled reports whether the configuration asks for a real
// exporter: telemetry on globally and metrics on specifically.
func metricsEnabled(cfg *Config) bool {
	return cfg != nil && cfg.Enabled && cfg.Metrics != nil && cfg.Metrics.Enabled
}
