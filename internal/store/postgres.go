package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, persistenceErr("connect", "postgres", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, persistenceErr("ping", "postgres", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// RunMigrations creates the sessions table if it does not exist.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return persistenceErr("migrate", "postgres", err)
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			key TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return persistenceErr("migrate", "postgres", err)
	}
	return nil
}

func (s *PostgresStore) Backend() string { return "postgres" }

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save upserts the session blob.
func (s *PostgresStore) Save(ctx context.Context, key string, data []byte) error {
	defer observe(s.Backend(), "save", time.Now())
	if err := validKey(key); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (key, data)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, key, data)
	if err != nil {
		return persistenceErr("save", key, err)
	}
	return nil
}

// Load retrieves the session blob.
func (s *PostgresStore) Load(ctx context.Context, key string) ([]byte, error) {
	defer observe(s.Backend(), "load", time.Now())

	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceErr("load", key, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Delete removes the session row.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	defer observe(s.Backend(), "delete", time.Now())

	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE key = $1`, key); err != nil {
		return persistenceErr("delete", key, err)
	}
	return nil
}
