package service

import (
	"fmt"

	"chat_rooms/internal/config"
	"chat_rooms/internal/repository"
	"chat_rooms/pkg/credential"
	"chat_rooms/pkg/logger"
)

type Services struct {
	Auth       AuthService
	Account    AccountService
	RoomAccess RoomAccessService
	RateLimit  RateLimitService
	Audit      AuditService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) (*Services, error) {
	hasher, err := credential.New(
		credential.Scheme(cfg.Rooms.PasswordScheme),
		cfg.Rooms.PasswordSalt,
		credential.DefaultArgon2Params(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create room password hasher: %w", err)
	}

	rateLimit := NewRateLimitService(repos.RateLimit, log)
	audit := NewAuditService(repos.Audit, log)

	return &Services{
		Auth:      NewAuthService(repos.Account, repos.TokenBlacklist, cfg.JWT, log),
		Account:   NewAccountService(repos.Account, log),
		RateLimit: rateLimit,
		Audit:     audit,
		RoomAccess: NewRoomAccessService(RoomAccessDeps{
			Rooms:       repos.Room,
			Memberships: repos.Membership,
			Messages:    repos.Message,
			Feed:        repos.Feed,
			RateLimit:   rateLimit,
			Audit:       audit,
			Hasher:      hasher,
		}, cfg.Rooms, log),
	}, nil
}
