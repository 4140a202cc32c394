package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat_rooms/internal/domain"
	"chat_rooms/pkg/logger"
)

type MembershipRepository interface {
	// Create возвращает ErrAlreadyExists, если пара (room, account) уже есть
	Create(ctx context.Context, membership *domain.Membership) error
	Exists(ctx context.Context, roomID, accountID uuid.UUID) (bool, error)
}

type membershipRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMembershipRepository(db *pgxpool.Pool, log logger.Logger) MembershipRepository {
	return &membershipRepository{db: db, log: log}
}

const insertMembershipQuery = `
	INSERT INTO memberships (room_id, account_id, created_at)
	VALUES ($1, $2, $3)
`

func (r *membershipRepository) Create(ctx context.Context, membership *domain.Membership) error {
	_, err := r.db.Exec(ctx, insertMembershipQuery,
		membership.RoomID, membership.AccountID, membership.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		r.log.Error("Failed to create membership", "error", err,
			"room_id", membership.RoomID, "account_id", membership.AccountID)
		return err
	}

	return nil
}

func (r *membershipRepository) Exists(ctx context.Context, roomID, accountID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM memberships WHERE room_id = $1 AND account_id = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, roomID, accountID).Scan(&exists); err != nil {
		r.log.Error("Failed to check membership", "error", err, "room_id", roomID, "account_id", accountID)
		return false, err
	}

	return exists, nil
}
