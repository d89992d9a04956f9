package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CallMeta identifies one governed call.
type CallMeta struct {
	Operation string // registered operation name (required)
	CallID    string // unique per call
	Endpoint  string // upstream path, if known
	Cost      int    // tokens requested
}

// SpanName returns the span name for the call: governor.call.<operation>.
func (m CallMeta) SpanName() string {
	return "governor.call." + m.Operation
}

// Tracer manages one span per governed call.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for the call.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan records the outcome and ends the span.
	EndSpan(span trace.Span, rec CallRecord, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("governor.operation", meta.Operation),
		attribute.Int("governor.cost", meta.Cost),
	}
	if meta.CallID != "" {
		attrs = append(attrs, attribute.String("governor.call_id", meta.CallID))
	}
	if meta.Endpoint != "" {
		attrs = append(attrs, attribute.String("governor.endpoint", meta.Endpoint))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, rec CallRecord, err error) {
	span.SetAttributes(
		attribute.Int("governor.attempts", rec.Attempts),
		attribute.Int("governor.tokens_left", rec.TokensLeft),
		attribute.Int64("governor.wait_ms", rec.Waited.Milliseconds()),
		attribute.Bool("governor.cached", rec.Cached),
	)
	if err != nil {
		span.SetAttributes(attribute.String("governor.error_kind", rec.ErrorKind))
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, rec CallRecord, err error) {
	span.End()
}
