package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"chat_rooms/internal/domain"
	"chat_rooms/internal/middleware"
	"chat_rooms/internal/service"
	apperrors "chat_rooms/pkg/errors"
	"chat_rooms/pkg/logger"
)

// Вложения приходят data: URL, поэтому лимит тела заметно больше обычного
const maxMessageRequestBytes = 10 << 20

type RoomHandler struct {
	roomService service.RoomAccessService
	log         logger.Logger
}

func NewRoomHandler(roomService service.RoomAccessService, log logger.Logger) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		log:         log,
	}
}

type CreateRoomRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type JoinRoomRequest struct {
	Password string `json:"password" binding:"required"`
}

type SendMessageRequest struct {
	Body        string              `json:"body"`
	DisplayName string              `json:"display_name"`
	AvatarURL   *string             `json:"avatar_url"`
	Attachments []domain.Attachment `json:"attachments"`
}

func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.roomService.ListRooms(c.Request.Context(), middleware.CurrentAccount(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req CreateRoomRequest
	if !bindJSON(c, &req) {
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), req.Name, req.Password, middleware.CurrentAccount(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) Get(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	room, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Join(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req JoinRoomRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.roomService.JoinRoom(c.Request.Context(), roomID, req.Password, middleware.CurrentAccount(c)); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "member": true})
}

func (h *RoomHandler) Membership(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	member, err := h.roomService.IsMember(c.Request.Context(), roomID, middleware.CurrentAccount(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "member": member})
}

func (h *RoomHandler) ListMessages(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			_ = c.Error(apperrors.Invalid("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	before := c.Query("before")
	if before != "" {
		if _, err := ulid.ParseStrict(before); err != nil {
			_ = c.Error(apperrors.Invalid("before must be a message id"))
			return
		}
	}

	messages, err := h.roomService.ListMessages(c.Request.Context(), roomID, middleware.CurrentAccount(c), limit, before)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *RoomHandler) SendMessage(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxMessageRequestBytes)

	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.roomService.SendMessage(c.Request.Context(), service.SendMessageInput{
		RoomID:      roomID,
		Body:        req.Body,
		Actor:       middleware.CurrentAccount(c),
		DisplayName: req.DisplayName,
		Avatar:      req.AvatarURL,
		Attachments: req.Attachments,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *RoomHandler) ClearHistory(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	deleted, err := h.roomService.ClearHistory(c.Request.Context(), roomID, middleware.CurrentAccount(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "deleted": deleted})
}
