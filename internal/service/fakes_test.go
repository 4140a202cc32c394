package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat_rooms/internal/domain"
	"chat_rooms/internal/repository"
)

type membershipKey struct {
	room    uuid.UUID
	account uuid.UUID
}

// memStore - хранилище в памяти с теми же ограничениями, что и схема:
// уникальность членства и публичного имени комнаты.
type memStore struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]*domain.Account
	sessions    map[uuid.UUID]*domain.Session
	rooms       map[uuid.UUID]*domain.Room
	memberships map[membershipKey]*domain.Membership
	messages    []*domain.Message
	audit       []*domain.AuditLog

	failCreateRoom bool
}

func newMemStore() *memStore {
	return &memStore{
		accounts:    make(map[uuid.UUID]*domain.Account),
		sessions:    make(map[uuid.UUID]*domain.Session),
		rooms:       make(map[uuid.UUID]*domain.Room),
		memberships: make(map[membershipKey]*domain.Membership),
	}
}

func (m *memStore) membershipCount(roomID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.memberships {
		if k.room == roomID {
			n++
		}
	}
	return n
}

func (m *memStore) messageCount(roomID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.RoomID == roomID {
			n++
		}
	}
	return n
}

func (m *memStore) auditEvents(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.audit {
		if a.EventType == eventType {
			n++
		}
	}
	return n
}

// rooms

type fakeRoomRepo struct{ s *memStore }

func (r *fakeRoomRepo) Create(_ context.Context, room *domain.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if room.Kind == domain.RoomKindPublic {
		for _, existing := range r.s.rooms {
			if existing.Kind == domain.RoomKindPublic && existing.Name == room.Name {
				return repository.ErrAlreadyExists
			}
		}
	}
	cp := *room
	r.s.rooms[room.ID] = &cp
	return nil
}

func (r *fakeRoomRepo) CreateWithOwner(_ context.Context, room *domain.Room, owner *domain.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failCreateRoom {
		return errStoreDown
	}
	cp := *room
	r.s.rooms[room.ID] = &cp
	m := *owner
	r.s.memberships[membershipKey{owner.RoomID, owner.AccountID}] = &m
	return nil
}

func (r *fakeRoomRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *fakeRoomRepo) GetPublicByName(_ context.Context, name string) (*domain.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, room := range r.s.rooms {
		if room.Kind == domain.RoomKindPublic && room.Name == name {
			cp := *room
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRoomRepo) ListVisible(_ context.Context, accountID *uuid.UUID) ([]*domain.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rooms []*domain.Room
	for _, room := range r.s.rooms {
		visible := room.Kind == domain.RoomKindPublic
		if !visible && accountID != nil {
			_, visible = r.s.memberships[membershipKey{room.ID, *accountID}]
		}
		if visible {
			cp := *room
			rooms = append(rooms, &cp)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Kind != rooms[j].Kind {
			return rooms[i].Kind == domain.RoomKindPublic
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// memberships

type fakeMembershipRepo struct{ s *memStore }

func (r *fakeMembershipRepo) Create(_ context.Context, m *domain.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := membershipKey{m.RoomID, m.AccountID}
	if _, ok := r.s.memberships[key]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *m
	r.s.memberships[key] = &cp
	return nil
}

func (r *fakeMembershipRepo) Exists(_ context.Context, roomID, accountID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.memberships[membershipKey{roomID, accountID}]
	return ok, nil
}

// messages

type fakeMessageRepo struct{ s *memStore }

func (r *fakeMessageRepo) Create(_ context.Context, message *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *message
	r.s.messages = append(r.s.messages, &cp)
	return nil
}

func (r *fakeMessageRepo) ListByRoom(_ context.Context, roomID uuid.UUID, limit int, before string) ([]*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Message
	for _, msg := range r.s.messages {
		if msg.RoomID != roomID {
			continue
		}
		if before != "" && msg.ID >= before {
			continue
		}
		out = append(out, msg)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeMessageRepo) DeleteByRoom(_ context.Context, roomID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.messages[:0]
	var deleted int64
	for _, msg := range r.s.messages {
		if msg.RoomID == roomID {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	r.s.messages = kept
	return deleted, nil
}

// audit

type fakeAuditRepo struct{ s *memStore }

func (r *fakeAuditRepo) CreateLog(_ context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, log)
	return nil
}

// accounts

type fakeAccountRepo struct{ s *memStore }

func (r *fakeAccountRepo) Create(_ context.Context, account *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Email == account.Email {
			return repository.ErrAlreadyExists
		}
	}
	cp := *account
	r.s.accounts[account.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range r.s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) UpdateProfile(_ context.Context, account *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[account.ID]
	if !ok {
		return repository.ErrNotFound
	}
	a.DisplayName = account.DisplayName
	a.AvatarURL = account.AvatarURL
	a.UpdatedAt = time.Now().UTC()
	account.UpdatedAt = a.UpdatedAt
	return nil
}

func (r *fakeAccountRepo) CreateSession(_ context.Context, session *domain.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *session
	r.s.sessions[session.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) GetSessionByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.RefreshTokenHash == tokenHash && sess.RevokedAt == nil && sess.ExpiresAt.After(time.Now()) {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeAccountRepo) RevokeSession(_ context.Context, sessionID uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[sessionID]; ok && sess.RevokedAt == nil {
		now := time.Now()
		sess.RevokedAt = &now
		sess.RevokedReason = &reason
	}
	return nil
}

// redis-backed stores

type fakeRateLimitRepo struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRateLimitRepo() *fakeRateLimitRepo {
	return &fakeRateLimitRepo{counts: make(map[string]int64)}
}

func (r *fakeRateLimitRepo) CheckLimit(_ context.Context, key string, limit int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key] < int64(limit), nil
}

func (r *fakeRateLimitRepo) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key], nil
}

func (r *fakeRateLimitRepo) Reset(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counts, key)
	return nil
}

type fakeBlacklistRepo struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (r *fakeBlacklistRepo) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ttl > 0 {
		r.revoked[jti] = true
	}
	return nil
}

func (r *fakeBlacklistRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[jti], nil
}

type fakeFeedRepo struct {
	mu     sync.Mutex
	events []*domain.FeedEvent
}

func (r *fakeFeedRepo) Publish(_ context.Context, event *domain.FeedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeFeedRepo) Subscribe(_ context.Context, _ uuid.UUID) (*repository.FeedSubscription, error) {
	return repository.NewFeedSubscription(make(chan *domain.FeedEvent), nil), nil
}

func (r *fakeFeedRepo) published(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
