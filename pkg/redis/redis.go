package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Z4phxr/eventflow-client/pkg/retry"
)

// Config holds the connection settings of the session store's Redis
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPrefix namespaces every key built with Client.Key
	KeyPrefix string

	// ConnectRetries is the number of extra pings before giving up
	ConnectRetries int
	// ConnectInterval is the wait between pings
	ConnectInterval time.Duration
	// OnRetry, when set, is told about every failed ping that will be retried
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns the settings for a single CLI process: a small pool
// and a short connect budget
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            6379,
		PoolSize:        4,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		KeyPrefix:       "eventflow",
		ConnectRetries:  2,
		ConnectInterval: 500 * time.Millisecond,
	}
}

// Addr returns the Redis address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client wraps redis.Client
type Client struct {
	client *redis.Client
	prefix string
}

// NewClient connects and pings until Redis answers or the retries run out
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	result := retry.New(&retry.Config{
		MaxRetries:      cfg.ConnectRetries,
		InitialInterval: cfg.ConnectInterval,
		MaxInterval:     cfg.ConnectInterval,
		Multiplier:      1,
	}).DoWithCallback(ctx, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, func(attempt int, err error, _ time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
	})
	if result.Err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s after %d attempts: %w", cfg.Addr(), result.Attempts, result.Err)
	}

	return &Client{client: client, prefix: cfg.KeyPrefix}, nil
}

// Key joins parts under the configured prefix with ":"
func (c *Client) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return c.prefix + ":" + strings.Join(parts, ":")
}

// Client returns the underlying redis.Client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Ping checks if the Redis connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
