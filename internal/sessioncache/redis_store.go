package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// RedisStore keeps views as JSON strings under config.CacheKey.AttemptSessionKey.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, attemptID uuid.UUID, view *model.SessionView, ttl time.Duration) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal session view: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, config.CacheKey.AttemptSessionKey(attemptID), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache session view: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, attemptID uuid.UUID) (*model.SessionView, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.AttemptSessionKey(attemptID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("read session view: %w", err)
	}

	var view model.SessionView
	if err := json.Unmarshal(data, &view); err != nil {
		// A corrupt entry is treated as a miss; the caller rebuilds it.
		_ = s.rdb.Del(ctx, config.CacheKey.AttemptSessionKey(attemptID)).Err()
		return nil, ErrMiss
	}
	return &view, nil
}

func (s *RedisStore) Invalidate(ctx context.Context, attemptID uuid.UUID) error {
	if err := s.rdb.Del(ctx, config.CacheKey.AttemptSessionKey(attemptID)).Err(); err != nil {
		return fmt.Errorf("invalidate session view: %w", err)
	}
	return nil
}
