package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"chat_rooms/pkg/logger"
)

const tokenBlacklistKeyPrefix = "auth:blacklist:"

// TokenBlacklistRepository хранит jti отозванных access-токенов до их истечения
type TokenBlacklistRepository interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type tokenBlacklistRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewTokenBlacklistRepository(rdb *redis.Client, log logger.Logger) TokenBlacklistRepository {
	return &tokenBlacklistRepository{rdb: rdb, log: log}
}

func (r *tokenBlacklistRepository) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, tokenBlacklistKeyPrefix+jti, 1, ttl).Err(); err != nil {
		r.log.Error("Failed to blacklist token", "error", err)
		return err
	}
	return nil
}

func (r *tokenBlacklistRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, tokenBlacklistKeyPrefix+jti).Result()
	if err != nil {
		r.log.Error("Failed to check token blacklist", "error", err)
		return false, err
	}
	return n > 0, nil
}
