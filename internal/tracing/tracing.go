// Package tracing wraps OpenTelemetry span creation behind an injected
// Provider, rather than the package-level tracer globals that library
// tutorials favor — every caller here takes a *Provider explicitly so tests
// can construct an isolated one per case.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns a tracer and the propagator used to carry trace context
// across the outbound upstream call.
type Provider struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	tp         *tracesdk.TracerProvider
}

// NewProvider builds a Provider exporting spans to Jaeger. An empty
// jaegerEndpoint yields a no-op Provider (tracing disabled).
func NewProvider(serviceName, jaegerEndpoint string) (*Provider, error) {
	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)

	if jaegerEndpoint == "" {
		return &Provider{
			tracer:     otel.Tracer(serviceName),
			propagator: propagator,
		}, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
	)

	return &Provider{
		tracer:     tp.Tracer(serviceName),
		propagator: propagator,
		tp:         tp,
	}, nil
}

// StartSpan starts a new span under this provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// InjectTraceContext injects trace context into outbound HTTP headers.
func (p *Provider) InjectTraceContext(ctx context.Context, req *http.Request) {
	p.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// Shutdown flushes and stops the underlying exporter, if one was configured.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
