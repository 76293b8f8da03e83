package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/session-gateway/pkg/database"
)

const sessionKeyPrefix = "session:"

// redisStore implements SessionStore with one hash per session
type redisStore struct {
	redis *database.Redis
	ttl   time.Duration
}

// NewRedisStore creates a new Redis-backed session store. Every write extends the session TTL.
func NewRedisStore(redis *database.Redis, ttl time.Duration) SessionStore {
	return &redisStore{redis: redis, ttl: ttl}
}

func (s *redisStore) Get(ctx context.Context, sessionID string) (map[string]string, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	values, err := s.redis.Client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}

	return values, nil
}

func (s *redisStore) Set(ctx context.Context, sessionID string, values map[string]string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(values) == 0 {
		return nil
	}

	fields := make([]any, 0, len(values)*2)
	for field, value := range values {
		fields = append(fields, field, value)
	}

	key := s.key(sessionID)
	pipe := s.redis.Client.TxPipeline()
	pipe.HSet(ctx, key, fields...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set session %s: %w", sessionID, err)
	}

	return nil
}

func (s *redisStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.redis.Client.HDel(ctx, s.key(sessionID), keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session keys %s: %w", sessionID, err)
	}

	return nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx)
}

func (s *redisStore) key(sessionID string) string {
	return sessionKeyPrefix + sessionID
}
