package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Options selects and configures a SessionStore backend.
type Options struct {
	Backend      string // memory, file, sqlite, postgres, redis, dynamodb
	DataDir      string
	SQLitePath   string
	DatabaseURL  string
	RedisClient  *redis.Client // required for the redis backend
	DynamoTable  string
	DynamoRegion string
}

// Open creates the SessionStore named by opts.Backend.
func Open(ctx context.Context, opts Options) (SessionStore, error) {
	switch opts.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "", "file":
		return NewFileStore(opts.DataDir)
	case "sqlite":
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case "postgres":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: postgres backend requires DATABASE_URL", ErrPersistence)
		}
		if err := RunMigrations(ctx, opts.DatabaseURL); err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case "redis":
		if opts.RedisClient == nil {
			return nil, fmt.Errorf("%w: redis backend requires REDIS_URL", ErrPersistence)
		}
		return NewRedisStoreFromClient(opts.RedisClient), nil
	case "dynamodb":
		if opts.DynamoTable == "" {
			return nil, fmt.Errorf("%w: dynamodb backend requires DYNAMODB_TABLE", ErrPersistence)
		}
		return NewDynamoStore(ctx, opts.DynamoTable, opts.DynamoRegion)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", ErrPersistence, opts.Backend)
	}
}
