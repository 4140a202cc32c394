package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat_rooms/internal/domain"
	"chat_rooms/pkg/logger"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	// CreateWithOwner вставляет комнату и членство владельца в одной транзакции
	CreateWithOwner(ctx context.Context, room *domain.Room, owner *domain.Membership) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	GetPublicByName(ctx context.Context, name string) (*domain.Room, error)
	ListVisible(ctx context.Context, accountID *uuid.UUID) ([]*domain.Room, error)
}

type roomRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewRoomRepository(db *pgxpool.Pool, log logger.Logger) RoomRepository {
	return &roomRepository{db: db, log: log}
}

const insertRoomQuery = `
	INSERT INTO rooms (id, name, kind, owner_id, password_hash, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at, updated_at
`

const selectRoomColumns = `id, name, kind, owner_id, password_hash, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*domain.Room, error) {
	room := &domain.Room{}
	err := row.Scan(
		&room.ID, &room.Name, &room.Kind, &room.OwnerID, &room.PasswordHash,
		&room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	err := r.db.QueryRow(ctx, insertRoomQuery,
		room.ID, room.Name, room.Kind, room.OwnerID, room.PasswordHash, room.CreatedAt, room.UpdatedAt,
	).Scan(&room.CreatedAt, &room.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		r.log.Error("Failed to create room", "error", err)
		return err
	}

	return nil
}

func (r *roomRepository) CreateWithOwner(ctx context.Context, room *domain.Room, owner *domain.Membership) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertRoomQuery,
			room.ID, room.Name, room.Kind, room.OwnerID, room.PasswordHash, room.CreatedAt, room.UpdatedAt,
		).Scan(&room.CreatedAt, &room.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}

		_, err = tx.Exec(ctx, insertMembershipQuery, owner.RoomID, owner.AccountID, owner.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		return nil
	})

	if err != nil {
		r.log.Error("Failed to create room with owner", "error", err, "room_id", room.ID)
		return err
	}

	return nil
}

func (r *roomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	query := `SELECT ` + selectRoomColumns + ` FROM rooms WHERE id = $1`

	room, err := scanRoom(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Error("Failed to get room by ID", "error", err, "room_id", id)
		return nil, err
	}

	return room, nil
}

func (r *roomRepository) GetPublicByName(ctx context.Context, name string) (*domain.Room, error) {
	query := `SELECT ` + selectRoomColumns + ` FROM rooms WHERE kind = 'public' AND name = $1`

	room, err := scanRoom(r.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Error("Failed to get public room by name", "error", err, "name", name)
		return nil, err
	}

	return room, nil
}

// ListVisible - публичные комнаты и приватные, где accountID состоит.
// Для accountID == nil возвращаются только публичные.
func (r *roomRepository) ListVisible(ctx context.Context, accountID *uuid.UUID) ([]*domain.Room, error) {
	query := `
		SELECT r.id, r.name, r.kind, r.owner_id, r.password_hash, r.created_at, r.updated_at
		FROM rooms r
		WHERE r.kind = 'public'
		   OR EXISTS (SELECT 1 FROM memberships m WHERE m.room_id = r.id AND m.account_id = $1)
		ORDER BY (r.kind = 'public') DESC, r.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		r.log.Error("Failed to list rooms", "error", err)
		return nil, err
	}
	defer rows.Close()

	var rooms []*domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			r.log.Error("Failed to scan room", "error", err)
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}
