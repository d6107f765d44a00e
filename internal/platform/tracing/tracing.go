// Package tracing wraps the OpenTelemetry tracer used by the state machines.
// Without a configured SDK the global provider is a no-op.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

const instrumentation = "custodia"

// Start opens a span tagged with the caller and request id from ctx.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if caller := requestcontext.Caller(ctx); !caller.IsNil() {
		attrs = append(attrs, attribute.String("custodia.caller", caller.String()))
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		attrs = append(attrs, attribute.String("custodia.request_id", reqID))
	}
	return otel.Tracer(instrumentation).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err (if any) with its domain code and closes the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("custodia.error_code", string(dErrors.CodeOf(err))))
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
