package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

const (
	fieldToken    = "token"
	fieldID       = "id"
	fieldUsername = "username"
	fieldEmail    = "email"
	fieldRole     = "role"
)

// RedisSessionRepository implements SessionRepository as a Redis hash.
// Save replaces the hash inside one MULTI/EXEC transaction.
type RedisSessionRepository struct {
	client *redis.Client
	key    string
}

// NewRedisSessionRepository creates a repository storing the tuple under key
func NewRedisSessionRepository(client *redis.Client, key string) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, key: key}
}

// Load reads the hash. A missing key means no session.
func (r *RedisSessionRepository) Load(ctx context.Context) (*domain.StoredSession, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return &domain.StoredSession{
		Token:    fields[fieldToken],
		ID:       fields[fieldID],
		Username: fields[fieldUsername],
		Email:    fields[fieldEmail],
		Role:     domain.Role(fields[fieldRole]),
	}, nil
}

// Save replaces the hash atomically
func (r *RedisSessionRepository) Save(ctx context.Context, session *domain.StoredSession) error {
	if !session.Complete() {
		return ErrIncompleteSession
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key,
			fieldToken, session.Token,
			fieldID, session.ID,
			fieldUsername, session.Username,
			fieldEmail, session.Email,
			fieldRole, string(session.Role),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session to redis: %w", err)
	}
	return nil
}

// Clear deletes the hash
func (r *RedisSessionRepository) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session in redis: %w", err)
	}
	return nil
}
