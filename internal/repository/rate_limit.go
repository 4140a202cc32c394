package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"chat_rooms/pkg/logger"
)

// RateLimitRepository - счетчики с фиксированным окном в Redis.
// Используется и для HTTP rate limit, и для попыток входа в приватную комнату.
type RateLimitRepository interface {
	CheckLimit(ctx context.Context, key string, limit int) (bool, error)
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) CheckLimit(ctx context.Context, key string, limit int) (bool, error) {
	count, err := r.redis.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		r.log.Error("Failed to check rate limit", "error", err, "key", key)
		return false, err
	}

	return count < limit, nil
}

// Окно начинается с первой попытки; INCR и PEXPIRE выполняются одним скриптом
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

func (r *rateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := incrementScript.Run(ctx, r.redis, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err, "key", key)
		return 0, err
	}
	return count, nil
}

func (r *rateLimitRepository) Reset(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, key).Err(); err != nil {
		r.log.Error("Failed to reset rate limit", "error", err, "key", key)
		return err
	}
	return nil
}
