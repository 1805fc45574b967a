package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrContextCanceled is returned when the context ends while waiting between attempts
var ErrContextCanceled = errors.New("context canceled during retry")

// Config contains retry configuration
type Config struct {
	// MaxRetries is the number of retries after the initial attempt (0 = single attempt)
	MaxRetries int
	// InitialInterval is the first backoff interval (default: 250ms)
	InitialInterval time.Duration
	// MaxInterval caps the backoff interval (default: 2s)
	MaxInterval time.Duration
	// Multiplier grows the interval after each retry (default: 2.0)
	Multiplier float64
	// JitterFactor adds ±factor random jitter to each interval (0-1)
	JitterFactor float64
	// ShouldRetry decides whether an error is worth another attempt.
	// Nil retries everything except permanent errors.
	ShouldRetry func(error) bool
}

// DefaultConfig returns the client retry configuration: 250ms, 500ms, then give up
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      2,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError wraps an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as permanent
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Result describes a finished retry run
type Result struct {
	// Err is the final error (nil on success). Permanent wrappers are removed.
	Err error
	// Attempts is the total number of attempts made, including the first
	Attempts int
}

// RetryCallback is called before each wait
type RetryCallback func(attempt int, err error, nextInterval time.Duration)

// Retrier runs operations with exponential backoff
type Retrier struct {
	config *Config
}

// New creates a Retrier, filling zero values with defaults
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}

	c := *config
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 250 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 2 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}

	return &Retrier{config: &c}
}

// Do executes the operation with retry logic
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	return r.DoWithCallback(ctx, op, nil)
}

// DoWithCallback executes the operation and reports each retry to the callback
func (r *Retrier) DoWithCallback(ctx context.Context, op Operation, callback RetryCallback) *Result {
	result := &Result{}

	for attempt := 0; ; attempt++ {
		result.Attempts = attempt + 1

		if ctx.Err() != nil {
			result.Err = ErrContextCanceled
			return result
		}

		err := op(ctx)
		if err == nil {
			result.Err = nil
			return result
		}

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			result.Err = permErr.Err
			return result
		}

		result.Err = err
		if attempt >= r.config.MaxRetries {
			return result
		}
		if r.config.ShouldRetry != nil && !r.config.ShouldRetry(err) {
			return result
		}

		interval := r.interval(attempt)
		if callback != nil {
			callback(attempt+1, err, interval)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Err = ErrContextCanceled
			return result
		case <-timer.C:
		}
	}
}

// interval calculates the backoff interval for a given attempt
func (r *Retrier) interval(attempt int) time.Duration {
	interval := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))

	if r.config.JitterFactor > 0 {
		jitter := interval * r.config.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}

	if interval > float64(r.config.MaxInterval) {
		interval = float64(r.config.MaxInterval)
	}
	if interval < 0 {
		interval = float64(r.config.InitialInterval)
	}

	return time.Duration(interval)
}

// Do is a convenience function that creates a retrier and executes the operation
func Do(ctx context.Context, config *Config, op Operation) *Result {
	return New(config).Do(ctx, op)
}
