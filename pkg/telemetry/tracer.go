// Package telemetry sets up OpenTelemetry tracing for the pipeline.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys.
const (
	UserIDKey         = "repairfix.user.id"
	ConversationIDKey = "repairfix.conversation.id"
)

// Config binds OTEL_* variables. The exporter itself reads the standard
// OTEL_EXPORTER_OTLP_* variables.
type Config struct {
	Enabled     bool   `envconfig:"OTEL_ENABLED" default:"false"`
	ServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"repairfix"`
}

// Shutdown flushes and stops the exporter.
type Shutdown func(context.Context) error

// Setup installs the global tracer provider when tracing is enabled and
// returns a tracer. Disabled tracing yields the global no-op tracer.
//
// nolint:ireturn
func Setup(ctx context.Context, cfg Config) (trace.Tracer, Shutdown, error) {
	if !cfg.Enabled {
		return otel.Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}

	tp, err := newTracerProvider(ctx, cfg.ServiceName)
	if err != nil {
		return nil, nil, err
	}
	return tp.Tracer(cfg.ServiceName), tp.Shutdown, nil
}

func newTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}

// SetError marks span failed.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
}
