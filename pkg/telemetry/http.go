package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartClientSpan starts a client span for an outbound API call
func StartClientSpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, "api "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)
	return ctx, span
}

// EndClientSpan records the response status (or error) and ends the span
func EndClientSpan(span trace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status >= 400:
		span.SetStatus(codes.Error, http.StatusText(status))
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHeaders writes the trace context of ctx into outbound request headers
func InjectHeaders(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
