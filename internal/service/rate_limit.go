package service

import (
	"context"
	"time"

	"chat_rooms/internal/repository"
	"chat_rooms/pkg/logger"
)

type RateLimitService interface {
	// Allow проверяет лимит и учитывает текущий запрос
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error)
	CheckLimit(ctx context.Context, key string, limit int) (bool, error)
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	// Запрос учитывается сразу, проверка идет по новому значению счетчика
	count, err := s.rateLimitRepo.Increment(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	if count > int64(limit) {
		return false, 0, nil
	}
	return true, limit - int(count), nil
}

func (s *rateLimitService) CheckLimit(ctx context.Context, key string, limit int) (bool, error) {
	return s.rateLimitRepo.CheckLimit(ctx, key, limit)
}

func (s *rateLimitService) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return s.rateLimitRepo.Increment(ctx, key, window)
}

func (s *rateLimitService) Reset(ctx context.Context, key string) error {
	return s.rateLimitRepo.Reset(ctx, key)
}
