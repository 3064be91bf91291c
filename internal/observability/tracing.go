// Package observability installs the process-wide OpenTelemetry tracer provider.
package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracingConfig controls SetupTracing.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Writer      io.Writer
}

// SetupTracing installs a tracer provider exporting spans as JSON to cfg.Writer.
// When tracing is disabled the global no-op provider stays in place and the
// returned shutdown func does nothing.
func SetupTracing(cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []stdouttrace.Option{}
	if cfg.Writer != nil {
		opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	tp := NewTracerProvider(sdktrace.WithBatcher(exporter), cfg.ServiceName)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// NewTracerProvider builds an always-sampling provider tagged with serviceName.
func NewTracerProvider(processor sdktrace.TracerProviderOption, serviceName string) *sdktrace.TracerProvider {
	if serviceName == "" {
		serviceName = "decksync"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	)
}
