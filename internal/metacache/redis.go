package metacache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements a Redis-backed metadata cache
type RedisStore struct {
	client *redis.Client
	config Config
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Config   Config
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Config: DefaultConfig(),
	}
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewRedisStoreWithClient(client, config.Config), nil
}

// NewRedisStoreWithClient creates a store over an existing client
func NewRedisStoreWithClient(client *redis.Client, config Config) *RedisStore {
	return &RedisStore{client: client, config: config}
}

func (r *RedisStore) key(serviceRoot string) string {
	return r.config.Prefix + Key(serviceRoot)
}

// Get retrieves a document
func (r *RedisStore) Get(ctx context.Context, serviceRoot string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(serviceRoot)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss{ServiceRoot: serviceRoot}
		}
		return nil, err
	}
	return value, nil
}

// Set stores a document
func (r *RedisStore) Set(ctx context.Context, serviceRoot string, document []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0 // no expiration
	}
	return r.client.Set(ctx, r.key(serviceRoot), document, ttl).Err()
}

// Delete removes a document
func (r *RedisStore) Delete(ctx context.Context, serviceRoot string) error {
	return r.client.Del(ctx, r.key(serviceRoot)).Err()
}

// Clear removes every document under the configured prefix
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.config.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
