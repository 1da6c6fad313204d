package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKeyPrefix is prepended to the cache name to form the Redis key.
	DefaultRedisKeyPrefix = "goupdate:release:"

	// DefaultRedisTTL is the default time-to-live for snapshots (7 days).
	// A snapshot only matters when the upstream is unreachable, so it is kept
	// well past the cache TTL.
	DefaultRedisTTL = 7 * 24 * time.Hour
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// KeyPrefix is prepended to the cache name (defaults to "goupdate:release:")
	KeyPrefix string

	// TTL is the time-to-live for snapshots (defaults to 7 days)
	TTL time.Duration
}

// NewRedisClient connects to Redis and verifies the connection.
// One client is shared by the snapshot stores of every product.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisStore implements SnapshotStore using Redis for distributed storage.
// This is suitable for multi-instance deployments behind a load balancer.
type RedisStore[T any] struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	owned  bool
}

// NewRedisStore creates a snapshot store for the cache called name on an
// existing client. The client is not closed by Close.
func NewRedisStore[T any](client *redis.Client, name string, cfg RedisConfig) *RedisStore[T] {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore[T]{
		client: client,
		key:    prefix + name,
		ttl:    ttl,
	}
}

// DialRedisStore connects to cfg.URL and returns a store that owns its client.
func DialRedisStore[T any](ctx context.Context, name string, cfg RedisConfig) (*RedisStore[T], error) {
	client, err := NewRedisClient(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	store := NewRedisStore[T](client, name, cfg)
	store.owned = true

	slog.Info("redis snapshot store connected", "key", store.key, "ttl", store.ttl)
	return store, nil
}

// Key returns the Redis key holding the snapshot.
func (s *RedisStore[T]) Key() string {
	return s.key
}

// Load retrieves the snapshot from Redis.
func (s *RedisStore[T]) Load(ctx context.Context) (*Snapshot[T], error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snapshot Snapshot[T]
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot from redis: %w", err)
	}

	return &snapshot, nil
}

// Save stores the snapshot in Redis.
func (s *RedisStore[T]) Save(ctx context.Context, snapshot *Snapshot[T]) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection when the store owns it.
func (s *RedisStore[T]) Close() error {
	if s.owned && s.client != nil {
		return s.client.Close()
	}
	return nil
}
