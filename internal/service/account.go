package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"chat_rooms/internal/domain"
	"chat_rooms/internal/repository"
	apperrors "chat_rooms/pkg/errors"
	"chat_rooms/pkg/logger"
)

const maxDisplayNameLength = 100

type AccountService interface {
	GetMe(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	UpdateMe(ctx context.Context, accountID uuid.UUID, displayName string, avatarURL *string) (*domain.Account, error)
}

type accountService struct {
	accountRepo repository.AccountRepository
	log         logger.Logger
}

func NewAccountService(accountRepo repository.AccountRepository, log logger.Logger) AccountService {
	return &accountService{
		accountRepo: accountRepo,
		log:         log,
	}
}

func (s *accountService) GetMe(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Store("load account", err)
	}
	account.PasswordHash = ""
	return account, nil
}

func (s *accountService) UpdateMe(ctx context.Context, accountID uuid.UUID, displayName string, avatarURL *string) (*domain.Account, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperrors.Invalid("display name is required")
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, apperrors.Invalid("display name is too long (max %d characters)", maxDisplayNameLength)
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Store("load account", err)
	}

	account.DisplayName = displayName
	if avatarURL != nil {
		if trimmed := strings.TrimSpace(*avatarURL); trimmed != "" {
			account.AvatarURL = &trimmed
		} else {
			account.AvatarURL = nil
		}
	}

	if err := s.accountRepo.UpdateProfile(ctx, account); err != nil {
		return nil, apperrors.Store("update account", err)
	}

	account.PasswordHash = ""
	return account, nil
}
