package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message - сообщение комнаты. Создается при отправке, удаляется только
// целиком при очистке истории владельцем, никогда не редактируется.
type Message struct {
	ID           string       `json:"id"` // ULID
	RoomID       uuid.UUID    `json:"room_id"`
	AuthorID     *uuid.UUID   `json:"author_id,omitempty"`
	AuthorName   string       `json:"author_name"`
	AuthorAvatar *string      `json:"author_avatar,omitempty"`
	Body         string       `json:"body"`
	Attachments  []Attachment `json:"attachments"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Attachment - описание вложения. URL может быть data: URL.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

const AnonymousAuthorName = "Anonymous"

// FeedEvent - событие живой ленты комнаты
type FeedEvent struct {
	Type      string    `json:"type"`
	RoomID    uuid.UUID `json:"room_id"`
	Message   *Message  `json:"message,omitempty"`
	Deleted   int64     `json:"deleted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	FeedEventMessage        = "message"
	FeedEventHistoryCleared = "history_cleared"
)
