// Package tracing bootstraps the process-wide OpenTelemetry tracer
// provider. httpapi's request spans and startSpan helper are no-ops
// until a real provider is registered here.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls how spans are exported. PrettyPrint is only useful in
// local development; production deployments still use the stdout
// exporter today but emit compact JSON for log-pipeline ingestion.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	PrettyPrint    bool
}

// Setup installs a batching stdout-exporting TracerProvider as the
// global provider and returns a shutdown func the caller must invoke
// before process exit to flush pending spans.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	opts := []stdouttrace.Option{stdouttrace.WithoutTimestamps()}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}

	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("build stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("merge trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
