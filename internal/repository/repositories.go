package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"chat_rooms/pkg/logger"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Код 23505 = unique_violation
const pgUniqueViolation = "23505"

type Repositories struct {
	Account        AccountRepository
	Room           RoomRepository
	Membership     MembershipRepository
	Message        MessageRepository
	Audit          AuditRepository
	RateLimit      RateLimitRepository
	TokenBlacklist TokenBlacklistRepository
	Feed           FeedRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		Account:        NewAccountRepository(db, log),
		Room:           NewRoomRepository(db, log),
		Membership:     NewMembershipRepository(db, log),
		Message:        NewMessageRepository(db, log),
		Audit:          NewAuditRepository(db, log),
		RateLimit:      NewRateLimitRepository(rdb, log),
		TokenBlacklist: NewTokenBlacklistRepository(rdb, log),
		Feed:           NewFeedRepository(rdb, log),
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
