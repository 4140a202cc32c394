package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"chat_rooms/internal/config"
	"chat_rooms/internal/domain"
	"chat_rooms/internal/metrics"
	"chat_rooms/internal/repository"
	"chat_rooms/pkg/credential"
	apperrors "chat_rooms/pkg/errors"
	"chat_rooms/pkg/logger"
)

const (
	maxRoomNameLength   = 50
	defaultMessagesPage = 50
	maxMessagesPage     = 200
)

// RoomAccessService - создание комнат, вход по паролю, членство,
// отправка сообщений и очистка истории владельцем.
//
// actor == nil означает анонимного пользователя.
type RoomAccessService interface {
	CreateRoom(ctx context.Context, name, password string, actor *domain.Account) (*domain.Room, error)
	JoinRoom(ctx context.Context, roomID uuid.UUID, password string, actor *domain.Account) error
	IsMember(ctx context.Context, roomID uuid.UUID, actor *domain.Account) (bool, error)
	ClearHistory(ctx context.Context, roomID uuid.UUID, actor *domain.Account) (int64, error)
	SendMessage(ctx context.Context, input SendMessageInput) (*domain.Message, error)
	GetRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, error)
	ListRooms(ctx context.Context, actor *domain.Account) ([]*domain.Room, error)
	ListMessages(ctx context.Context, roomID uuid.UUID, actor *domain.Account, limit int, before string) ([]*domain.Message, error)
	EnsurePublicRoom(ctx context.Context, name string) (*domain.Room, error)
	Subscribe(ctx context.Context, roomID uuid.UUID, actor *domain.Account) (*repository.FeedSubscription, error)
}

type SendMessageInput struct {
	RoomID      uuid.UUID
	Body        string
	Actor       *domain.Account
	DisplayName string
	Avatar      *string
	Attachments []domain.Attachment
}

type RoomAccessDeps struct {
	Rooms       repository.RoomRepository
	Memberships repository.MembershipRepository
	Messages    repository.MessageRepository
	Feed        repository.FeedRepository
	RateLimit   RateLimitService
	Audit       AuditService
	Hasher      credential.Hasher
}

type roomAccessService struct {
	rooms       repository.RoomRepository
	memberships repository.MembershipRepository
	messages    repository.MessageRepository
	feed        repository.FeedRepository
	rateLimit   RateLimitService
	audit       AuditService
	hasher      credential.Hasher
	cfg         config.RoomsConfig
	log         logger.Logger
	now         func() time.Time
}

func NewRoomAccessService(deps RoomAccessDeps, cfg config.RoomsConfig, log logger.Logger) RoomAccessService {
	return &roomAccessService{
		rooms:       deps.Rooms,
		memberships: deps.Memberships,
		messages:    deps.Messages,
		feed:        deps.Feed,
		rateLimit:   deps.RateLimit,
		audit:       deps.Audit,
		hasher:      deps.Hasher,
		cfg:         cfg,
		log:         log.With("component", "room_access"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *roomAccessService) CreateRoom(ctx context.Context, name, password string, actor *domain.Account) (*domain.Room, error) {
	if actor == nil {
		return nil, apperrors.ErrUnauthenticated
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Invalid("room name is required")
	}
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		return nil, apperrors.Invalid("room name is too long (max %d characters)", maxRoomNameLength)
	}
	if !credential.ValidPIN(password) {
		return nil, apperrors.Invalid("password must be exactly %d digits", credential.PINLength)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.log.Error("Failed to hash room password", "error", err)
		return nil, apperrors.Store("hash password", err)
	}

	now := s.now()
	ownerID := actor.ID
	room := &domain.Room{
		ID:           uuid.New(),
		Name:         name,
		Kind:         domain.RoomKindPrivate,
		OwnerID:      &ownerID,
		PasswordHash: &digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	owner := &domain.Membership{RoomID: room.ID, AccountID: actor.ID, CreatedAt: now}

	if err := s.rooms.CreateWithOwner(ctx, room, owner); err != nil {
		return nil, apperrors.Store("create room", err)
	}

	metrics.RoomsCreated.Inc()
	s.audit.LogEvent(ctx, &actor.ID, &room.ID, domain.EventTypeRoomCreated, map[string]interface{}{"name": name})
	s.log.Info("Private room created", "room_id", room.ID, "owner_id", actor.ID)

	return room, nil
}

func (s *roomAccessService) JoinRoom(ctx context.Context, roomID uuid.UUID, password string, actor *domain.Account) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsPrivate() {
		return apperrors.ErrWrongRoomKind
	}
	if actor == nil {
		return apperrors.ErrUnauthenticated
	}

	// Попытка учитывается атомарно до проверки пароля
	attemptsKey := joinAttemptsKey(room.ID, actor.ID)
	attempts, err := s.rateLimit.Increment(ctx, attemptsKey, s.cfg.JoinAttemptWindow)
	if err != nil {
		return apperrors.Store("record join attempt", err)
	}
	if attempts > int64(s.cfg.JoinAttemptLimit) {
		metrics.JoinAttempts.WithLabelValues(metrics.JoinOutcomeThrottled).Inc()
		metrics.RateLimitHits.WithLabelValues("room_join").Inc()
		s.log.Warn("Join attempts exhausted", "room_id", room.ID, "account_id", actor.ID)
		return apperrors.ErrTooManyAttempts
	}

	// Некорректный формат пароля отклоняется так же, как неверный пароль
	if room.PasswordHash == nil || !credential.ValidPIN(password) || !s.hasher.Verify(password, *room.PasswordHash) {
		metrics.JoinAttempts.WithLabelValues(metrics.JoinOutcomeRejected).Inc()
		s.audit.LogEvent(ctx, &actor.ID, &room.ID, domain.EventTypeJoinRejected, nil)
		return apperrors.ErrInvalidCredentials
	}

	if err := s.rateLimit.Reset(ctx, attemptsKey); err != nil {
		s.log.Warn("Failed to reset join attempts", "error", err, "room_id", room.ID)
	}

	err = s.memberships.Create(ctx, &domain.Membership{RoomID: room.ID, AccountID: actor.ID, CreatedAt: s.now()})
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		metrics.JoinAttempts.WithLabelValues(metrics.JoinOutcomeAlreadyMember).Inc()
		return nil
	case err != nil:
		return apperrors.Store("insert membership", err)
	}

	metrics.JoinAttempts.WithLabelValues(metrics.JoinOutcomeJoined).Inc()
	s.audit.LogEvent(ctx, &actor.ID, &room.ID, domain.EventTypeRoomJoined, nil)
	s.log.Info("Account joined room", "room_id", room.ID, "account_id", actor.ID)

	return nil
}

func (s *roomAccessService) IsMember(ctx context.Context, roomID uuid.UUID, actor *domain.Account) (bool, error) {
	if actor == nil {
		return false, nil
	}
	ok, err := s.memberships.Exists(ctx, roomID, actor.ID)
	if err != nil {
		return false, apperrors.Store("check membership", err)
	}
	return ok, nil
}

func (s *roomAccessService) ClearHistory(ctx context.Context, roomID uuid.UUID, actor *domain.Account) (int64, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if actor == nil {
		return 0, apperrors.ErrUnauthenticated
	}
	if !room.IsOwnedBy(actor.ID) {
		return 0, apperrors.ErrForbidden
	}

	deleted, err := s.messages.DeleteByRoom(ctx, room.ID)
	if err != nil {
		return 0, apperrors.Store("delete messages", err)
	}

	metrics.HistoryCleared.Inc()
	metrics.MessagesDeleted.Add(float64(deleted))
	s.audit.LogEvent(ctx, &actor.ID, &room.ID, domain.EventTypeHistoryCleared, map[string]interface{}{"deleted": deleted})
	s.log.Info("Room history cleared", "room_id", room.ID, "deleted", deleted)

	s.publish(ctx, &domain.FeedEvent{
		Type:      domain.FeedEventHistoryCleared,
		RoomID:    room.ID,
		Deleted:   deleted,
		Timestamp: s.now(),
	})

	return deleted, nil
}

func (s *roomAccessService) SendMessage(ctx context.Context, input SendMessageInput) (*domain.Message, error) {
	room, err := s.loadRoom(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReader(ctx, room, input.Actor); err != nil {
		return nil, err
	}

	body := strings.TrimSpace(input.Body)
	if body == "" && len(input.Attachments) == 0 {
		return nil, apperrors.Invalid("message is empty")
	}
	if utf8.RuneCountInString(body) > s.cfg.MaxMessageLength {
		return nil, apperrors.Invalid("message is too long (max %d characters)", s.cfg.MaxMessageLength)
	}
	if len(input.Attachments) > s.cfg.MaxAttachments {
		return nil, apperrors.Invalid("too many attachments (max %d)", s.cfg.MaxAttachments)
	}
	for _, a := range input.Attachments {
		if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.URL) == "" {
			return nil, apperrors.Invalid("attachment name and url are required")
		}
	}

	now := s.now()
	message := &domain.Message{
		ID:          ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		RoomID:      room.ID,
		Body:        body,
		Attachments: input.Attachments,
		CreatedAt:   now,
	}
	if message.Attachments == nil {
		message.Attachments = []domain.Attachment{}
	}

	// Имя и аватар сохраняются снимком на момент отправки
	displayName := truncateRunes(strings.TrimSpace(input.DisplayName), maxDisplayNameLength)
	avatar := input.Avatar
	if input.Actor != nil {
		actorID := input.Actor.ID
		message.AuthorID = &actorID
		if displayName == "" {
			displayName = input.Actor.DisplayName
		}
		if avatar == nil {
			avatar = input.Actor.AvatarURL
		}
	}
	if displayName == "" {
		displayName = domain.AnonymousAuthorName
	}
	message.AuthorName = displayName
	message.AuthorAvatar = avatar

	if err := s.messages.Create(ctx, message); err != nil {
		return nil, apperrors.Store("insert message", err)
	}

	metrics.MessagesSent.WithLabelValues(string(room.Kind)).Inc()
	s.publish(ctx, &domain.FeedEvent{
		Type:      domain.FeedEventMessage,
		RoomID:    room.ID,
		Message:   message,
		Timestamp: now,
	})

	return message, nil
}

func (s *roomAccessService) GetRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	return s.loadRoom(ctx, roomID)
}

func (s *roomAccessService) ListRooms(ctx context.Context, actor *domain.Account) ([]*domain.Room, error) {
	var accountID *uuid.UUID
	if actor != nil {
		accountID = &actor.ID
	}

	rooms, err := s.rooms.ListVisible(ctx, accountID)
	if err != nil {
		return nil, apperrors.Store("list rooms", err)
	}
	if rooms == nil {
		rooms = []*domain.Room{}
	}
	return rooms, nil
}

func (s *roomAccessService) ListMessages(ctx context.Context, roomID uuid.UUID, actor *domain.Account, limit int, before string) ([]*domain.Message, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReader(ctx, room, actor); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultMessagesPage
	}
	if limit > maxMessagesPage {
		limit = maxMessagesPage
	}

	messages, err := s.messages.ListByRoom(ctx, room.ID, limit, before)
	if err != nil {
		return nil, apperrors.Store("list messages", err)
	}
	return messages, nil
}

func (s *roomAccessService) EnsurePublicRoom(ctx context.Context, name string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Invalid("public room name is required")
	}

	room, err := s.rooms.GetPublicByName(ctx, name)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Store("load public room", err)
	}

	now := s.now()
	room = &domain.Room{
		ID:        uuid.New(),
		Name:      name,
		Kind:      domain.RoomKindPublic,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.rooms.Create(ctx, room)
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		// Другой инстанс успел создать комнату первым
		existing, err := s.rooms.GetPublicByName(ctx, name)
		if err != nil {
			return nil, apperrors.Store("load public room", err)
		}
		return existing, nil
	case err != nil:
		return nil, apperrors.Store("create public room", err)
	}

	s.log.Info("Public room created", "room_id", room.ID, "name", name)
	return room, nil
}

func (s *roomAccessService) Subscribe(ctx context.Context, roomID uuid.UUID, actor *domain.Account) (*repository.FeedSubscription, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReader(ctx, room, actor); err != nil {
		return nil, err
	}

	sub, err := s.feed.Subscribe(ctx, room.ID)
	if err != nil {
		return nil, apperrors.Store("subscribe to feed", err)
	}
	return sub, nil
}

func (s *roomAccessService) loadRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrRoomNotFound
		}
		return nil, apperrors.Store("load room", err)
	}
	return room, nil
}

// requireReader: публичная комната открыта всем, приватная только участникам
func (s *roomAccessService) requireReader(ctx context.Context, room *domain.Room, actor *domain.Account) error {
	if !room.IsPrivate() {
		return nil
	}
	member, err := s.IsMember(ctx, room.ID, actor)
	if err != nil {
		return err
	}
	if !member {
		return apperrors.ErrNotMember
	}
	return nil
}

func (s *roomAccessService) publish(ctx context.Context, event *domain.FeedEvent) {
	if err := s.feed.Publish(ctx, event); err != nil {
		s.log.Warn("Failed to publish feed event", "error", err, "room_id", event.RoomID, "type", event.Type)
	}
}

func joinAttemptsKey(roomID, accountID uuid.UUID) string {
	return "room:" + roomID.String() + ":join_attempts:" + accountID.String()
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
