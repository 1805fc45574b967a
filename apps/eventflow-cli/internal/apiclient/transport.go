package apiclient

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Z4phxr/eventflow-client/pkg/logger"
	"github.com/Z4phxr/eventflow-client/pkg/telemetry"
)

const (
	// RequestIDHeader is the header name for request ID
	RequestIDHeader = "X-Request-ID"
	// IdempotencyKeyHeader is the header name for idempotency key
	IdempotencyKeyHeader = "X-Idempotency-Key"
)

// roundTripperFunc adapts a function to http.RoundTripper
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newTransport wraps base with request-id, logging and tracing, outermost first
func newTransport(base http.RoundTripper, log *logger.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return requestIDTransport(loggingTransport(log, tracingTransport(base)))
}

// requestIDTransport sets X-Request-ID when the caller did not
func requestIDTransport(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get(RequestIDHeader) == "" {
			req = req.Clone(req.Context())
			req.Header.Set(RequestIDHeader, uuid.New().String())
		}
		return next.RoundTrip(req)
	})
}

// loggingTransport logs every round trip. Headers are never logged.
func loggingTransport(log *logger.Logger, next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(req)

		fields := []zap.Field{
			zap.String("request_id", req.Header.Get(RequestIDHeader)),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("latency", time.Since(start)),
		}

		switch {
		case err != nil:
			log.Warn("Request failed", append(fields, zap.Error(err))...)
		case resp.StatusCode >= 500:
			log.Error("Server error", append(fields, zap.Int("status", resp.StatusCode))...)
		case resp.StatusCode >= 400:
			log.Warn("Client error", append(fields, zap.Int("status", resp.StatusCode))...)
		default:
			log.Debug("Request completed", append(fields, zap.Int("status", resp.StatusCode))...)
		}
		return resp, err
	})
}

// tracingTransport opens a client span and propagates its context
func tracingTransport(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		ctx, span := telemetry.StartClientSpan(req.Context(), req.Method, req.URL.Path)
		req = req.Clone(ctx)
		telemetry.InjectHeaders(ctx, req.Header)

		resp, err := next.RoundTrip(req)
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		telemetry.EndClientSpan(span, status, err)
		return resp, err
	})
}
