package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS dashboard_sessions (
	session_key TEXT PRIMARY KEY,
	code        TEXT NOT NULL,
	version     INTEGER NOT NULL,
	saved_at    TIMESTAMPTZ NOT NULL
)`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the sessions table when it does not exist yet.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := p.pool.Exec(ctx, createSessionsTable); err != nil {
		return fmt.Errorf("create dashboard_sessions: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, clientID string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var s domain.Session
	err := p.pool.QueryRow(ctx,
		`SELECT code, version, saved_at FROM dashboard_sessions WHERE session_key = $1`,
		storageKey(clientID),
	).Scan(&s.Code, &s.Version, &s.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &s, nil
}

// Put overwrites the whole record.
func (p *PostgresStore) Put(ctx context.Context, clientID string, s domain.Session) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO dashboard_sessions (session_key, code, version, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_key) DO UPDATE SET
			code = EXCLUDED.code,
			version = EXCLUDED.version,
			saved_at = EXCLUDED.saved_at`,
		storageKey(clientID), s.Code, s.Version, s.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, clientID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := p.pool.Exec(ctx, `DELETE FROM dashboard_sessions WHERE session_key = $1`, storageKey(clientID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes records older than retention and reports how many
// went away.
func (p *PostgresStore) DeleteExpired(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := p.pool.Exec(ctx, `DELETE FROM dashboard_sessions WHERE saved_at < $1`, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

var _ Store = (*PostgresStore)(nil)
