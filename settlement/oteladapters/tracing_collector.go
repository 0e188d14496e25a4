package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shelfmarket/purchase-settlement-go/settlement"
)

// TracingCollector implements settlement.TracingCollector using the
// OpenTelemetry tracing API, creating spans for settlement operations and
// propagating trace context automatically.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a new OpenTelemetry tracing collector.
// The tracer should come from your OpenTelemetry TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan creates a new OpenTelemetry span with the given name and attributes.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, settlement.SpanContext) {
	spanOptions := make([]trace.SpanStartOption, 0, len(attrs))
	for key, value := range attrs {
		spanOptions = append(spanOptions, trace.WithAttributes(attribute.String(key, value)))
	}

	spanCtx, span := t.tracer.Start(ctx, name, spanOptions...)

	return spanCtx, &otelSpanContext{span: span}
}

// FinishSpan completes a span with the given status and additional attributes.
func (t *TracingCollector) FinishSpan(spanCtx settlement.SpanContext, status string, attrs map[string]string) {
	otelSpan, ok := spanCtx.(*otelSpanContext)
	if !ok {
		return
	}

	for key, value := range attrs {
		otelSpan.span.SetAttributes(attribute.String(key, value))
	}

	otelSpan.SetStatus(status)
	otelSpan.span.End()
}

var _ settlement.TracingCollector = (*TracingCollector)(nil)

// otelSpanContext implements settlement.SpanContext by wrapping an OpenTelemetry span.
type otelSpanContext struct {
	span trace.Span
}

// SetStatus maps the settlement outcome vocabulary to OpenTelemetry status codes.
func (s *otelSpanContext) SetStatus(status string) {
	switch status {
	case "ok", "applied", "idempotent", "missed":
		s.span.SetStatus(codes.Ok, "")
	case "error":
		s.span.SetStatus(codes.Error, "operation failed")
	case "rejected":
		s.span.SetStatus(codes.Error, "invariant rejected the operation")
	case "conflict":
		s.span.SetStatus(codes.Error, "concurrency conflict")
	default:
		s.span.SetAttributes(attribute.String("status", status))
	}
}

// AddAttribute adds an attribute to the span.
func (s *otelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

var _ settlement.SpanContext = (*otelSpanContext)(nil)
