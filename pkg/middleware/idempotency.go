package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Z4phxr/eventflow-client/pkg/response"
)

const (
	// IdempotencyHeader carries the client-chosen key of a retryable write
	IdempotencyHeader = "X-Idempotency-Key"
	// ReplayedHeader is set on responses served from a stored result
	ReplayedHeader = "Idempotent-Replayed"

	defaultIdempotencyPrefix = "idempotency:"
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultPendingTTL        = time.Minute
)

// IdempotencyStore is the subset of the Redis API the middleware needs
type IdempotencyStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyOptions configures Idempotency
type IdempotencyOptions struct {
	Store IdempotencyStore
	// Prefix namespaces stored records (default "idempotency:")
	Prefix string
	// TTL is how long a finished response is replayed (default 24h)
	TTL time.Duration
	// PendingTTL bounds how long a crashed request blocks its key (default 1m)
	PendingTTL time.Duration
	// Scope returns the caller identity mixed into the request fingerprint,
	// so two users cannot replay each other's responses
	Scope func(c *gin.Context) string
	// Required rejects requests without a key instead of passing them through
	Required bool
}

type storedResult struct {
	Fingerprint string    `json:"fingerprint"`
	Done        bool      `json:"done"`
	Status      int       `json:"status,omitempty"`
	Body        string    `json:"body,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// Idempotency runs a keyed request at most once and replays its stored
// response to repeats carrying the same key. A repeat with a different
// request under the same key is rejected, as is one arriving while the first
// is still running. Server errors are not stored so the client may retry.
// Store failures fail open.
func Idempotency(opts IdempotencyOptions) gin.HandlerFunc {
	if opts.Prefix == "" {
		opts.Prefix = defaultIdempotencyPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultIdempotencyTTL
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = defaultPendingTTL
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			if opts.Required {
				abort(c, http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", IdempotencyHeader+" header is required")
				return
			}
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}
		scope := ""
		if opts.Scope != nil {
			scope = opts.Scope(c)
		}
		fingerprint := fingerprintRequest(c.Request, scope, body)

		ctx := c.Request.Context()
		storeKey := opts.Prefix + key

		pending, _ := json.Marshal(storedResult{Fingerprint: fingerprint, StartedAt: time.Now().UTC()})
		won, err := opts.Store.SetNX(ctx, storeKey, pending, opts.PendingTTL).Result()
		if err != nil {
			c.Next()
			return
		}
		if !won {
			replay(c, opts.Store, storeKey, fingerprint)
			return
		}

		rec := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			opts.Store.Del(context.WithoutCancel(ctx), storeKey)
			return
		}
		done, _ := json.Marshal(storedResult{
			Fingerprint: fingerprint,
			Done:        true,
			Status:      status,
			Body:        rec.body.String(),
			StartedAt:   time.Now().UTC(),
		})
		opts.Store.Set(context.WithoutCancel(ctx), storeKey, done, opts.TTL)
	}
}

func replay(c *gin.Context, store IdempotencyStore, storeKey, fingerprint string) {
	raw, err := store.Get(c.Request.Context(), storeKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SetNX and Get
		abort(c, http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed")
		return
	}
	var stored storedResult
	if err != nil || json.Unmarshal(raw, &stored) != nil {
		c.Next()
		return
	}

	switch {
	case stored.Fingerprint != fingerprint:
		abort(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with a different request")
	case !stored.Done:
		abort(c, http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed")
	default:
		c.Header(ReplayedHeader, "true")
		c.Data(stored.Status, "application/json; charset=utf-8", []byte(stored.Body))
		c.Abort()
	}
}

func fingerprintRequest(r *http.Request, scope string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, scope} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": response.ErrorData{Code: code, Message: message}})
}

// recordingWriter keeps a copy of the response body
type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
