package domain

import (
	"time"

	"github.com/google/uuid"
)

type RoomKind string

const (
	RoomKindPublic  RoomKind = "public"
	RoomKindPrivate RoomKind = "private"
)

// Room - комната чата. PasswordHash заполнен тогда и только тогда, когда Kind = private.
// OwnerID заполнен только для комнат, созданных аутентифицированным пользователем.
type Room struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Kind         RoomKind   `json:"kind"`
	OwnerID      *uuid.UUID `json:"owner_id,omitempty"`
	PasswordHash *string    `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (r *Room) IsPrivate() bool {
	return r.Kind == RoomKindPrivate
}

func (r *Room) IsOwnedBy(accountID uuid.UUID) bool {
	return r.OwnerID != nil && *r.OwnerID == accountID
}

// Membership - уникальна по (RoomID, AccountID)
type Membership struct {
	RoomID    uuid.UUID `json:"room_id"`
	AccountID uuid.UUID `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}
