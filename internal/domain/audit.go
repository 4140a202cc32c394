package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID             int64                  `json:"id"`
	EventTime      time.Time              `json:"event_time"`
	ActorAccountID *uuid.UUID             `json:"actor_account_id,omitempty"`
	RoomID         *uuid.UUID             `json:"room_id,omitempty"`
	EventType      string                 `json:"event_type"`
	Payload        map[string]interface{} `json:"payload"`
}

const (
	EventTypeRoomCreated    = "ROOM_CREATED"
	EventTypeRoomJoined     = "ROOM_JOINED"
	EventTypeJoinRejected   = "ROOM_JOIN_REJECTED"
	EventTypeHistoryCleared = "ROOM_HISTORY_CLEARED"
)
