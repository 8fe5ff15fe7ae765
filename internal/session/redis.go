package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/palms-parking/internal/domain"
	"github.com/diagnosis/palms-parking/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record as a JSON value that expires together with
// the retention window.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

func (r *RedisStore) Get(ctx context.Context, clientID string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := r.client.Get(ctx, storageKey(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		// An unreadable record counts as no record at all.
		logger.WarnContext(ctx, "Discarding unreadable session record", "client_id", clientID, "error", err)
		return nil, nil
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, clientID string, s domain.Session) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, storageKey(clientID), raw, r.retention).Err(); err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, clientID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := r.client.Del(ctx, storageKey(clientID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
