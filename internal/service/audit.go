package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chat_rooms/internal/domain"
	"chat_rooms/internal/repository"
	"chat_rooms/pkg/logger"
)

type AuditService interface {
	LogEvent(ctx context.Context, actorAccountID *uuid.UUID, roomID *uuid.UUID, eventType string, payload map[string]interface{})
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

// LogEvent не прерывает основную операцию: ошибка записи только логируется
func (s *auditService) LogEvent(ctx context.Context, actorAccountID *uuid.UUID, roomID *uuid.UUID, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	auditLog := &domain.AuditLog{
		EventTime:      time.Now().UTC(),
		ActorAccountID: actorAccountID,
		RoomID:         roomID,
		EventType:      eventType,
		Payload:        payload,
	}

	if err := s.auditRepo.CreateLog(ctx, auditLog); err != nil {
		s.log.Warn("Failed to write audit log", "error", err, "event_type", eventType)
	}
}
