package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat_rooms/internal/domain"
	"chat_rooms/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	// ListByRoom возвращает последние limit сообщений с id меньше before
	// (пустая строка - без курсора) в хронологическом порядке
	ListByRoom(ctx context.Context, roomID uuid.UUID, limit int, before string) ([]*domain.Message, error)
	DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	attachments, err := json.Marshal(nonNilAttachments(message.Attachments))
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}

	query := `
		INSERT INTO messages (id, room_id, author_id, author_name, author_avatar, body, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.Exec(ctx, query,
		message.ID, message.RoomID, message.AuthorID, message.AuthorName, message.AuthorAvatar,
		message.Body, attachments, message.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create message", "error", err, "room_id", message.RoomID)
		return err
	}

	return nil
}

func (r *messageRepository) ListByRoom(ctx context.Context, roomID uuid.UUID, limit int, before string) ([]*domain.Message, error) {
	query := `
		SELECT id, room_id, author_id, author_name, author_avatar, body, attachments, created_at
		FROM messages
		WHERE room_id = $1 AND ($2::text = '' OR id COLLATE "C" < $2::text)
		ORDER BY id COLLATE "C" DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, roomID, before, limit)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "room_id", roomID)
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		message := &domain.Message{}
		var attachments []byte
		err := rows.Scan(
			&message.ID, &message.RoomID, &message.AuthorID, &message.AuthorName, &message.AuthorAvatar,
			&message.Body, &attachments, &message.CreatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		if err := json.Unmarshal(attachments, &message.Attachments); err != nil {
			r.log.Warn("Failed to unmarshal attachments", "error", err, "message_id", message.ID)
		}
		message.Attachments = nonNilAttachments(message.Attachments)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Разворачиваем, чтобы получить порядок от старых к новым
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) DeleteByRoom(ctx context.Context, roomID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE room_id = $1`, roomID)
	if err != nil {
		r.log.Error("Failed to delete room messages", "error", err, "room_id", roomID)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nonNilAttachments(a []domain.Attachment) []domain.Attachment {
	if a == nil {
		return []domain.Attachment{}
	}
	return a
}
