package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat_rooms/internal/config"
	"chat_rooms/internal/service"
	apperrors "chat_rooms/pkg/errors"
	"chat_rooms/pkg/logger"
)

type Handlers struct {
	Health  *HealthHandler
	Auth    *AuthHandler
	Account *AccountHandler
	Room    *RoomHandler
	Feed    *FeedHandler
}

func NewHandlers(services *service.Services, checks map[string]HealthCheck, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(checks),
		Auth:    NewAuthHandler(services.Auth, log),
		Account: NewAccountHandler(services.Account, log),
		Room:    NewRoomHandler(services.RoomAccess, log),
		Feed:    NewFeedHandler(services.RoomAccess, cfg.CORS.AllowedOrigins, log),
	}
}

// bindJSON пишет ошибку валидации в c.Errors и возвращает false
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(apperrors.Invalid("%s", err.Error()))
		return false
	}
	return true
}

func roomIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.Invalid("invalid room id"))
		return uuid.Nil, false
	}
	return id, true
}
