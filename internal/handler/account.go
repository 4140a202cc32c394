package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat_rooms/internal/middleware"
	"chat_rooms/internal/service"
	apperrors "chat_rooms/pkg/errors"
	"chat_rooms/pkg/logger"
)

type AccountHandler struct {
	accountService service.AccountService
	log            logger.Logger
}

func NewAccountHandler(accountService service.AccountService, log logger.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		log:            log,
	}
}

type UpdateAccountRequest struct {
	DisplayName string  `json:"display_name" binding:"required"`
	AvatarURL   *string `json:"avatar_url"`
}

func (h *AccountHandler) GetMe(c *gin.Context) {
	accountID, ok := middleware.CurrentAccountID(c)
	if !ok {
		_ = c.Error(apperrors.ErrUnauthenticated)
		return
	}

	account, err := h.accountService.GetMe(c.Request.Context(), accountID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) UpdateMe(c *gin.Context) {
	accountID, ok := middleware.CurrentAccountID(c)
	if !ok {
		_ = c.Error(apperrors.ErrUnauthenticated)
		return
	}

	var req UpdateAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.accountService.UpdateMe(c.Request.Context(), accountID, req.DisplayName, req.AvatarURL)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, account)
}
