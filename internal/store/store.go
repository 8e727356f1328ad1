package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eldtechnologies/lucidflow/internal/metrics"
)

// ErrPersistence wraps every failure reported by a SessionStore backend.
var ErrPersistence = errors.New("persistence error")

// SessionStore is a keyed blob store for serialized sessions.
// MemoryStore, FileStore, SQLiteStore, PostgresStore, RedisStore and
// DynamoStore implement this interface.
type SessionStore interface {
	// Save writes data under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error
	// Load returns the data stored under key, or nil with no error when
	// the key does not exist.
	Load(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Connection management
	Ping(ctx context.Context) error
	Close()

	// Backend names the implementation for logs and metrics.
	Backend() string
}

func persistenceErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", ErrPersistence, op, key, err)
}

// observe records the latency of a backend call.
func observe(backend, op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrPersistence)
	}
	return nil
}
