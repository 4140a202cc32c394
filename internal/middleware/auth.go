package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat_rooms/internal/domain"
	"chat_rooms/internal/service"
	apperrors "chat_rooms/pkg/errors"
	"chat_rooms/pkg/jwt"
	"chat_rooms/pkg/logger"
)

const (
	ctxAccount   = "account"
	ctxAccountID = "account_id"
	ctxClaims    = "token_claims"

	// Браузерный WebSocket не умеет передавать заголовки
	accessTokenQueryParam = "access_token"
)

type AuthMiddleware struct {
	authService service.AuthService
	log         logger.Logger
}

func NewAuthMiddleware(authService service.AuthService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		log:         log,
	}
}

// RequireAuth пропускает только запросы с валидным access token
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Уже аутентифицирован через OptionalAuth
		if CurrentAccount(c) != nil {
			c.Next()
			return
		}

		token, err := bearerToken(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if token == "" {
			abortWithError(c, apperrors.ErrUnauthenticated)
			return
		}

		if !m.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuth определяет пользователя, если токен передан. Без токена запрос анонимный,
// с невалидным токеном отклоняется.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if token == "" {
			token = c.Query(accessTokenQueryParam)
		}
		if token != "" && !m.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context, token string) bool {
	account, claims, err := m.authService.CurrentAccount(c.Request.Context(), token)
	if err != nil {
		m.log.Debug("Rejected access token", "error", err, "path", c.FullPath())
		abortWithError(c, err)
		return false
	}

	c.Set(ctxAccount, account)
	c.Set(ctxAccountID, account.ID)
	c.Set(ctxClaims, claims)
	return true
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewAPIError("invalid authorization header format", 401)
	}
	return strings.TrimSpace(parts[1]), nil
}

// CurrentAccount возвращает аутентифицированный аккаунт или nil для анонимного запроса
func CurrentAccount(c *gin.Context) *domain.Account {
	if v, ok := c.Get(ctxAccount); ok {
		if account, ok := v.(*domain.Account); ok {
			return account
		}
	}
	return nil
}

func CurrentAccountID(c *gin.Context) (uuid.UUID, bool) {
	if v, ok := c.Get(ctxAccountID); ok {
		id, ok := v.(uuid.UUID)
		return id, ok
	}
	return uuid.Nil, false
}

func TokenClaims(c *gin.Context) *jwt.Claims {
	if v, ok := c.Get(ctxClaims); ok {
		if claims, ok := v.(*jwt.Claims); ok {
			return claims
		}
	}
	return nil
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
