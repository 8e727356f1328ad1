package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a stored key survives without being reset.
const DefaultTTL = 24 * time.Hour

// RedisStore keeps keys under credential:<client> with a TTL, so they are
// shared across server instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store over client. A non-positive ttl uses
// DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func credentialKey(clientID string) string {
	return fmt.Sprintf("credential:%s", clientID)
}

func (s *RedisStore) Get(ctx context.Context, clientID string) (string, error) {
	key, err := s.client.Get(ctx, credentialKey(clientID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoCredential
	}
	return key, err
}

func (s *RedisStore) Set(ctx context.Context, clientID, key string) error {
	return s.client.Set(ctx, credentialKey(clientID), key, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, clientID string) error {
	return s.client.Del(ctx, credentialKey(clientID)).Err()
}
