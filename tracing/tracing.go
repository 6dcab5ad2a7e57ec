/*
Package tracing wires OpenTelemetry with a Jaeger collector exporter.

PURPOSE:
  When enabled, every inbound request produces a server span (see the HTTP
  middleware in api/) and the ledger tags its operation ids onto the active
  span. When disabled, a no-op tracer keeps the call sites unconditional.

SEE ALSO:
  - api/server.go: the middleware that opens the request span
*/
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "points-engine"

// Config holds tracing configuration.
type Config struct {
	Enabled     bool
	Endpoint    string // Jaeger collector endpoint, e.g. "http://localhost:14268/api/traces"
	Environment string
}

// Init installs the global tracer provider and returns a tracer plus a
// shutdown function that flushes buffered spans.
func Init(cfg Config) (trace.Tracer, func(context.Context) error, error) {
	noShutdown := func(context.Context) error { return nil }

	if !cfg.Enabled {
		return trace.NewNoopTracerProvider().Tracer(serviceName), noShutdown, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	if err != nil {
		return nil, nil, fmt.Errorf("create jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Tracer(serviceName), tp.Shutdown, nil
}
