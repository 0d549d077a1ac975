package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
	errx "github.com/watson-civil-chatbot/server/internal/core/error"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
)

// RedisSessionRepository stores JSON session snapshots with a sliding TTL.
type RedisSessionRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionRepository(rdb redis.Cmdable, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (r *RedisSessionRepository) Save(ctx context.Context, s *model.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		logx.Error().Err(err).Str("session_id", s.ID).Msg("failed to marshal session")
		return fmt.Errorf("marshal session: %w", err)
	}
	key := r.sessionKey(s.ID)

	// a zero TTL keeps the key forever; every save refreshes it otherwise
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisSessionRepository) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	key := r.sessionKey(sessionID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, errx.WrapRedis(err)
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return &s, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	key := r.sessionKey(sessionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
