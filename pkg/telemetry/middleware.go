package telemetry

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader carries the trace id back to the caller
const TraceIDHeader = "X-Trace-ID"

// ServerMiddleware continues the trace propagated by the caller and opens a
// server span per request. Test doubles of the EventFlow API use it to check
// that the client propagates its context.
func ServerMiddleware(tracerName string) gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)

	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Request.Method),
				semconv.HTTPRoute(route),
			),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Header(TraceIDHeader, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
			span.SetAttributes(attribute.String("error.message", c.Errors.String()))
		}
	}
}

// RemoteTraceID returns the trace id the caller propagated into ctx, or ""
func RemoteTraceID(ctx *gin.Context) string {
	sc := trace.SpanContextFromContext(
		otel.GetTextMapPropagator().Extract(ctx.Request.Context(), propagation.HeaderCarrier(ctx.Request.Header)),
	)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
