package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/inbox/internal/metrics"
)

const displayNameTTL = 10 * time.Minute

// RedisStore handles Redis operations for replay protection and caching.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func observeRedis(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// nonceKey returns the key for nonce tracking.
func nonceKey(identityID, nonce string) string {
	return fmt.Sprintf("nonce:%s:%s", identityID, nonce)
}

// displayNameKey returns the key for a cached display name.
func displayNameKey(identityID uuid.UUID) string {
	return fmt.Sprintf("identity:%s:name", identityID)
}

// IsNonceUsed checks if a nonce has been used.
func (s *RedisStore) IsNonceUsed(ctx context.Context, identityID, nonce string) bool {
	defer observeRedis(time.Now())
	exists, _ := s.client.Exists(ctx, nonceKey(identityID, nonce)).Result()
	return exists > 0
}

// MarkNonceUsed marks a nonce as used with a TTL.
// Returns false if the nonce was already marked.
func (s *RedisStore) MarkNonceUsed(ctx context.Context, identityID, nonce string, ttl time.Duration) bool {
	defer observeRedis(time.Now())
	ok, err := s.client.SetNX(ctx, nonceKey(identityID, nonce), "1", ttl).Result()
	if err != nil {
		return false
	}
	return ok
}

// GetDisplayName returns a cached display name; ok is false on a miss.
func (s *RedisStore) GetDisplayName(ctx context.Context, identityID uuid.UUID) (name string, ok bool, err error) {
	defer observeRedis(time.Now())
	name, err = s.client.Get(ctx, displayNameKey(identityID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

// SetDisplayName caches a display name.
func (s *RedisStore) SetDisplayName(ctx context.Context, identityID uuid.UUID, name string) error {
	defer observeRedis(time.Now())
	return s.client.Set(ctx, displayNameKey(identityID), name, displayNameTTL).Err()
}
