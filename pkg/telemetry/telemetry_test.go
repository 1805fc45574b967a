package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	setGlobal(&Telemetry{provider: provider, tracer: provider.Tracer("test")})
	t.Cleanup(func() { setGlobal(nil) })
	return recorder
}

func TestInit_Disabled(t *testing.T) {
	tel, err := Init(context.Background(), &Config{Enabled: false, ServiceName: "eventflow-cli"})
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer())
	t.Cleanup(func() { setGlobal(nil) })

	ctx, span := StartSpan(context.Background(), "noop")
	span.End()
	assert.Empty(t, GetTraceID(ctx))
	assert.NoError(t, Shutdown(context.Background()))
}

func TestClientSpan_RecordsStatus(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartClientSpan(context.Background(), http.MethodGet, "/events")
	assert.NotEmpty(t, GetTraceID(ctx))
	EndClientSpan(span, http.StatusForbidden, nil)

	_, span = StartClientSpan(context.Background(), http.MethodPost, "/auth/login")
	EndClientSpan(span, 0, errors.New("connection refused"))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "api GET /events", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Len(t, ended[1].Events(), 1)
}

func TestInjectHeaders(t *testing.T) {
	installRecorder(t)
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	ctx, span := StartSpan(context.Background(), "outbound")
	defer span.End()

	header := http.Header{}
	InjectHeaders(ctx, header)
	assert.NotEmpty(t, header.Get("traceparent"))
}

func TestServerMiddleware_ContinuesCallerTrace(t *testing.T) {
	installRecorder(t)
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
	gin.SetMode(gin.TestMode)

	var remote string
	r := gin.New()
	r.Use(ServerMiddleware("test-server"))
	r.GET("/events", func(c *gin.Context) {
		remote = RemoteTraceID(c)
		c.Status(http.StatusOK)
	})

	ctx, span := StartClientSpan(context.Background(), http.MethodGet, "/events")
	defer span.End()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	InjectHeaders(ctx, req.Header)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, GetTraceID(ctx), remote)
	assert.Equal(t, GetTraceID(ctx), w.Header().Get(TraceIDHeader))
}
