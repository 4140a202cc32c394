package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chat_rooms/internal/config"
	"chat_rooms/internal/domain"
	"chat_rooms/internal/repository"
	apperrors "chat_rooms/pkg/errors"
	"chat_rooms/pkg/jwt"
	"chat_rooms/pkg/logger"
)

const (
	minAccountPasswordLength = 8
	maxEmailLength           = 255
)

// AuthService - поставщик идентичности: регистрация, вход, обновление токенов, выход
type AuthService interface {
	SignUp(ctx context.Context, email, password, displayName string) (*domain.Account, error)
	SignIn(ctx context.Context, email, password string, meta SessionMeta) (*SignInResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	SignOut(ctx context.Context, claims *jwt.Claims, refreshToken string) error
	CurrentAccount(ctx context.Context, accessToken string) (*domain.Account, *jwt.Claims, error)
}

type SessionMeta struct {
	IPAddress string
	UserAgent string
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type SignInResult struct {
	Account *domain.Account `json:"account"`
	TokenPair
}

type authService struct {
	accountRepo   repository.AccountRepository
	blacklistRepo repository.TokenBlacklistRepository
	jwtCfg        config.JWTConfig
	log           logger.Logger
	bcryptCost    int
}

func NewAuthService(accountRepo repository.AccountRepository, blacklistRepo repository.TokenBlacklistRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		accountRepo:   accountRepo,
		blacklistRepo: blacklistRepo,
		jwtCfg:        jwtCfg,
		log:           log,
		bcryptCost:    bcrypt.DefaultCost,
	}
}

func (s *authService) SignUp(ctx context.Context, email, password, displayName string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)

	if email == "" {
		return nil, apperrors.Invalid("email is required")
	}
	if len(email) > maxEmailLength {
		return nil, apperrors.Invalid("email is too long")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.Invalid("invalid email format")
	}
	if len(password) < minAccountPasswordLength {
		return nil, apperrors.Invalid("password must be at least %d characters", minAccountPasswordLength)
	}
	if displayName == "" {
		return nil, apperrors.Invalid("display name is required")
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, apperrors.Invalid("display name is too long (max %d characters)", maxDisplayNameLength)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		s.log.Error("Failed to hash password", "error", err)
		return nil, apperrors.Store("hash password", err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(passwordHash),
		DisplayName:  displayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, apperrors.ErrAccountExists
		}
		return nil, apperrors.Store("create account", err)
	}

	s.log.Info("Account registered", "account_id", account.ID)

	account.PasswordHash = ""
	return account, nil
}

func (s *authService) SignIn(ctx context.Context, email, password string, meta SessionMeta) (*SignInResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.Invalid("email and password are required")
	}

	account, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Не раскрываем, существует ли аккаунт
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Store("load account", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, account, meta)
	if err != nil {
		return nil, err
	}

	account.PasswordHash = ""
	return &SignInResult{Account: account, TokenPair: *pair}, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := jwt.ValidateRefreshToken(refreshToken, s.jwtCfg.RefreshSecret)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	session, err := s.accountRepo.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, apperrors.Store("load session", err)
	}
	if session.AccountID != claims.AccountID {
		return nil, apperrors.ErrInvalidToken
	}

	account, err := s.accountRepo.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, apperrors.Store("load account", err)
	}

	if err := s.accountRepo.RevokeSession(ctx, session.ID, domain.SessionRevokedRefreshed); err != nil {
		return nil, apperrors.Store("revoke session", err)
	}

	meta := SessionMeta{}
	if session.IPAddress != nil {
		meta.IPAddress = *session.IPAddress
	}
	if session.UserAgent != nil {
		meta.UserAgent = *session.UserAgent
	}

	return s.issueTokens(ctx, account, meta)
}

func (s *authService) SignOut(ctx context.Context, claims *jwt.Claims, refreshToken string) error {
	if claims == nil {
		return apperrors.ErrUnauthenticated
	}

	if claims.ExpiresAt != nil {
		if err := s.blacklistRepo.Revoke(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
			return apperrors.Store("revoke access token", err)
		}
	}

	if refreshToken == "" {
		return nil
	}

	session, err := s.accountRepo.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperrors.Store("load session", err)
	}
	if session.AccountID != claims.AccountID {
		return nil
	}

	if err := s.accountRepo.RevokeSession(ctx, session.ID, domain.SessionRevokedLogout); err != nil {
		return apperrors.Store("revoke session", err)
	}
	return nil
}

func (s *authService) CurrentAccount(ctx context.Context, accessToken string) (*domain.Account, *jwt.Claims, error) {
	claims, err := jwt.ValidateToken(accessToken, s.jwtCfg.AccessSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, apperrors.ErrTokenExpired
		}
		return nil, nil, apperrors.ErrInvalidToken
	}

	revoked, err := s.blacklistRepo.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, apperrors.Store("check token blacklist", err)
	}
	if revoked {
		return nil, nil, apperrors.ErrInvalidToken
	}

	account, err := s.accountRepo.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.ErrInvalidToken
		}
		return nil, nil, apperrors.Store("load account", err)
	}

	account.PasswordHash = ""
	return account, claims, nil
}

func (s *authService) issueTokens(ctx context.Context, account *domain.Account, meta SessionMeta) (*TokenPair, error) {
	accessToken, err := jwt.GenerateAccessToken(account.ID, account.Email, s.jwtCfg.AccessSecret, s.jwtCfg.Issuer, s.jwtCfg.AccessTTL)
	if err != nil {
		s.log.Error("Failed to generate access token", "error", err)
		return nil, err
	}

	refreshToken, err := jwt.GenerateRefreshToken(account.ID, s.jwtCfg.RefreshSecret, s.jwtCfg.Issuer, s.jwtCfg.RefreshTTL)
	if err != nil {
		s.log.Error("Failed to generate refresh token", "error", err)
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:               uuid.New(),
		AccountID:        account.ID,
		RefreshTokenHash: hashToken(refreshToken),
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.jwtCfg.RefreshTTL),
		IPAddress:        optionalString(meta.IPAddress),
		UserAgent:        optionalString(meta.UserAgent),
	}

	if err := s.accountRepo.CreateSession(ctx, session); err != nil {
		return nil, apperrors.Store("create session", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
