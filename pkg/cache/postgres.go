package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps idempotent responses in Postgres for deployments that
// run without redis.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const createIdempotencyTable = `
CREATE TABLE IF NOT EXISTS request_idempotency (
	key_hash   TEXT PRIMARY KEY,
	response   TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, createIdempotencyTable)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var v string
	err := s.pool.QueryRow(ctx,
		`SELECT response FROM request_idempotency WHERE key_hash = $1 AND expires_at > now()`,
		hashKey(key)).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrMiss
	}
	return v, err
}

func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO request_idempotency (key_hash, response, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key_hash) DO UPDATE SET response = EXCLUDED.response, expires_at = EXCLUDED.expires_at`,
		hashKey(key), value, time.Now().Add(ttl))
	return err
}

// CleanupExpired removes responses past their TTL.
func (s *PostgresStore) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM request_idempotency WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// hashKey keeps caller-chosen keys out of the table and bounds their length.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)
}
