// Package tracing sets up the OpenTelemetry tracer provider.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Init configures an OTLP HTTP exporter when endpoint is set. Without one the
// global provider stays a no-op and the returned shutdown does nothing.
func Init(ctx context.Context, log *zap.Logger, serviceName, environment, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		log.Info("Tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Info("Tracing initialized", zap.String("endpoint", endpoint))
	return tp.Shutdown, nil
}

// Tracer returns the tracer used by service code
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/sanukhandev/lms-be-core")
}
