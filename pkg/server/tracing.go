package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the OpenTelemetry instrumentation name used for spans.
const TracerName = "github.com/vango-dev/trialstream/pkg/server"

// The tracer uses the global OpenTelemetry tracer provider; spans are
// no-ops until the application installs one.
func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// startSpan starts a span for one persisted record.
func (s *Session) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("trialstream.session_id", s.ID))
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
