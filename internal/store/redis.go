package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as plain string values without TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, persistenceErr("parse url", "redis", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, persistenceErr("ping", "redis", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client, sharing its pool with
// the rate limiter and credential store.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Backend() string { return "redis" }

// Close closes the Redis connection.
func (s *RedisStore) Close() {
	s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey returns the key for a stored session.
func sessionKey(key string) string {
	return fmt.Sprintf("session:%s", key)
}

// Save stores the session blob.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	defer observe(s.Backend(), "save", time.Now())
	if err := validKey(key); err != nil {
		return err
	}

	if err := s.client.Set(ctx, sessionKey(key), data, 0).Err(); err != nil {
		return persistenceErr("save", key, err)
	}
	return nil
}

// Load retrieves the session blob.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	defer observe(s.Backend(), "load", time.Now())

	data, err := s.client.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, persistenceErr("load", key, err)
	}
	return data, nil
}

// Delete removes the session key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	defer observe(s.Backend(), "delete", time.Now())

	if err := s.client.Del(ctx, sessionKey(key)).Err(); err != nil {
		return persistenceErr("delete", key, err)
	}
	return nil
}
