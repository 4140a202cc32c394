package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"chat_rooms/internal/config"
	"chat_rooms/internal/domain"
	"chat_rooms/pkg/credential"
	apperrors "chat_rooms/pkg/errors"
	"chat_rooms/pkg/logger"
)

var errStoreDown = errors.New("connection refused")

type roomAccessFixture struct {
	svc   RoomAccessService
	store *memStore
	feed  *fakeFeedRepo
	limit *fakeRateLimitRepo
}

func newRoomAccessFixture(t *testing.T) *roomAccessFixture {
	t.Helper()

	hasher, err := credential.New(credential.SchemeArgon2id, "", credential.Argon2Params{
		Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatal(err)
	}

	store := newMemStore()
	feed := &fakeFeedRepo{}
	limit := newFakeRateLimitRepo()
	log := logger.NewNop()

	svc := NewRoomAccessService(RoomAccessDeps{
		Rooms:       &fakeRoomRepo{s: store},
		Memberships: &fakeMembershipRepo{s: store},
		Messages:    &fakeMessageRepo{s: store},
		Feed:        feed,
		RateLimit:   NewRateLimitService(limit, log),
		Audit:       NewAuditService(&fakeAuditRepo{s: store}, log),
		Hasher:      hasher,
	}, config.RoomsConfig{
		PublicRoomName:    "Lobby",
		MaxMessageLength:  200,
		MaxAttachments:    2,
		JoinAttemptLimit:  3,
		JoinAttemptWindow: 15 * time.Minute,
	}, log)

	return &roomAccessFixture{svc: svc, store: store, feed: feed, limit: limit}
}

func newAccount(name string) *domain.Account {
	return &domain.Account{ID: uuid.New(), Email: strings.ToLower(name) + "@example.com", DisplayName: name}
}

func (f *roomAccessFixture) send(t *testing.T, roomID uuid.UUID, actor *domain.Account, body string) {
	t.Helper()
	if _, err := f.svc.SendMessage(context.Background(), SendMessageInput{RoomID: roomID, Body: body, Actor: actor}); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
}

func TestVaultScenario(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a, b := newAccount("Alice"), newAccount("Bob")

	room, err := f.svc.CreateRoom(ctx, "Vault", "4821", a)
	if err != nil {
		t.Fatalf("Expected room to be created, got %v", err)
	}
	if room.Kind != domain.RoomKindPrivate || room.OwnerID == nil || *room.OwnerID != a.ID {
		t.Fatalf("Unexpected room %+v", room)
	}
	if room.PasswordHash == nil || *room.PasswordHash == "4821" {
		t.Fatal("Expected password to be stored as a digest")
	}

	if err := f.svc.JoinRoom(ctx, room.ID, "4821", a); err != nil {
		t.Fatalf("Expected owner join to succeed, got %v", err)
	}
	if ok, _ := f.svc.IsMember(ctx, room.ID, a); !ok {
		t.Fatal("Expected owner to be a member")
	}

	if err := f.svc.JoinRoom(ctx, room.ID, "0000", b); !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials, got %v", err)
	}

	f.send(t, room.ID, a, "hello")
	f.send(t, room.ID, a, "world")

	if _, err := f.svc.ClearHistory(ctx, room.ID, b); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("Expected ErrForbidden, got %v", err)
	}
	if n := f.store.messageCount(room.ID); n != 2 {
		t.Fatalf("Expected messages to survive forbidden clear, got %d", n)
	}

	deleted, err := f.svc.ClearHistory(ctx, room.ID, a)
	if err != nil {
		t.Fatalf("Expected owner clear to succeed, got %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted messages, got %d", deleted)
	}
	if n := f.store.messageCount(room.ID); n != 0 {
		t.Errorf("Expected empty history, got %d", n)
	}
}

func TestCreateRoomAddsCreatorMembership(t *testing.T) {
	f := newRoomAccessFixture(t)
	a := newAccount("Alice")

	room, err := f.svc.CreateRoom(context.Background(), "  Vault  ", "4821", a)
	if err != nil {
		t.Fatal(err)
	}
	if room.Name != "Vault" {
		t.Errorf("Expected trimmed name, got %q", room.Name)
	}
	if n := f.store.membershipCount(room.ID); n != 1 {
		t.Errorf("Expected creator membership, got %d memberships", n)
	}
	if n := f.store.auditEvents(domain.EventTypeRoomCreated); n != 1 {
		t.Errorf("Expected one ROOM_CREATED audit event, got %d", n)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a := newAccount("Alice")

	if _, err := f.svc.CreateRoom(ctx, "Vault", "4821", nil); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}

	cases := []struct {
		name, room, password string
	}{
		{"empty name", "   ", "4821"},
		{"long name", strings.Repeat("x", 51), "4821"},
		{"short pin", "Vault", "482"},
		{"long pin", "Vault", "48211"},
		{"letters", "Vault", "48a1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateRoom(ctx, tc.room, tc.password, a); !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if len(f.store.rooms) != 0 {
		t.Errorf("Expected no rooms to be stored, got %d", len(f.store.rooms))
	}
}

func TestCreateRoomStoreFailure(t *testing.T) {
	f := newRoomAccessFixture(t)
	f.store.failCreateRoom = true

	_, err := f.svc.CreateRoom(context.Background(), "Vault", "4821", newAccount("Alice"))

	var storeErr *apperrors.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected StoreError, got %v", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Error("Expected StoreError to wrap the underlying failure")
	}
	if len(f.store.rooms) != 0 || len(f.store.memberships) != 0 {
		t.Error("Expected nothing to be stored after a failed create")
	}
}

func TestJoinRoomIsIdempotent(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a, b := newAccount("Alice"), newAccount("Bob")

	room, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)

	for i := 0; i < 2; i++ {
		if err := f.svc.JoinRoom(ctx, room.ID, "4821", b); err != nil {
			t.Fatalf("Join %d: expected success, got %v", i+1, err)
		}
	}

	if n := f.store.membershipCount(room.ID); n != 2 {
		t.Errorf("Expected owner and one member, got %d memberships", n)
	}
	if n := f.store.auditEvents(domain.EventTypeRoomJoined); n != 1 {
		t.Errorf("Expected a single ROOM_JOINED event, got %d", n)
	}
}

func TestJoinRoomWrongPasswordLeavesMembershipUnchanged(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a, b := newAccount("Alice"), newAccount("Bob")

	room, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)

	for _, p := range []string{"0000", "", "48210", "abcd"} {
		f.limit.counts = map[string]int64{}
		if err := f.svc.JoinRoom(ctx, room.ID, p, b); !errors.Is(err, apperrors.ErrInvalidCredentials) {
			t.Errorf("Password %q: expected ErrInvalidCredentials, got %v", p, err)
		}
	}

	if ok, _ := f.svc.IsMember(ctx, room.ID, b); ok {
		t.Error("Expected rejected account not to be a member")
	}
	if n := f.store.membershipCount(room.ID); n != 1 {
		t.Errorf("Expected only the owner membership, got %d", n)
	}
}

func TestJoinRoomErrorOrder(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a := newAccount("Alice")

	if err := f.svc.JoinRoom(ctx, uuid.New(), "4821", a); !errors.Is(err, apperrors.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}

	lobby, err := f.svc.EnsurePublicRoom(ctx, "Lobby")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.svc.JoinRoom(ctx, lobby.ID, "4821", nil); !errors.Is(err, apperrors.ErrWrongRoomKind) {
		t.Errorf("Expected ErrWrongRoomKind before auth check, got %v", err)
	}

	room, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)
	if err := f.svc.JoinRoom(ctx, room.ID, "4821", nil); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
}

func TestJoinRoomThrottlesRepeatedFailures(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a, b := newAccount("Alice"), newAccount("Bob")

	room, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)

	for i := 0; i < 3; i++ {
		if err := f.svc.JoinRoom(ctx, room.ID, "0000", b); !errors.Is(err, apperrors.ErrInvalidCredentials) {
			t.Fatalf("Attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	if err := f.svc.JoinRoom(ctx, room.ID, "4821", b); !errors.Is(err, apperrors.ErrTooManyAttempts) {
		t.Fatalf("Expected ErrTooManyAttempts even with the right password, got %v", err)
	}

	// Другой пользователь не затронут
	c := newAccount("Carol")
	if err := f.svc.JoinRoom(ctx, room.ID, "4821", c); err != nil {
		t.Errorf("Expected unrelated account to join, got %v", err)
	}
}

func TestJoinRoomThrottleHoldsUnderConcurrency(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a, b := newAccount("Alice"), newAccount("Bob")

	room, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)

	const guesses = 200
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		invalid   int
		throttled int
	)
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func(pin string) {
			defer wg.Done()
			err := f.svc.JoinRoom(ctx, room.ID, pin, b)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				invalid++
			case errors.Is(err, apperrors.ErrTooManyAttempts):
				throttled++
			default:
				t.Errorf("Unexpected result for %s: %v", pin, err)
			}
		}(fmt.Sprintf("%04d", i))
	}
	wg.Wait()

	if invalid != 3 {
		t.Errorf("Expected exactly 3 verified guesses, got %d", invalid)
	}
	if throttled != guesses-3 {
		t.Errorf("Expected %d throttled guesses, got %d", guesses-3, throttled)
	}
}

func TestSuccessfulJoinResetsAttempts(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a, b := newAccount("Alice"), newAccount("Bob")

	room, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)

	_ = f.svc.JoinRoom(ctx, room.ID, "0000", b)
	_ = f.svc.JoinRoom(ctx, room.ID, "1111", b)
	if err := f.svc.JoinRoom(ctx, room.ID, "4821", b); err != nil {
		t.Fatal(err)
	}

	if n := f.limit.counts[joinAttemptsKey(room.ID, b.ID)]; n != 0 {
		t.Errorf("Expected attempts to be reset, got %d", n)
	}
}

func TestJoinRoomVerifiesLegacyDigest(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a, b := newAccount("Alice"), newAccount("Bob")

	legacy := credential.Digest("4821", credential.DefaultSalt)
	room := &domain.Room{ID: uuid.New(), Name: "Old", Kind: domain.RoomKindPrivate, OwnerID: &a.ID, PasswordHash: &legacy}
	f.store.rooms[room.ID] = room

	if err := f.svc.JoinRoom(ctx, room.ID, "4821", b); err != nil {
		t.Fatalf("Expected legacy digest to verify, got %v", err)
	}
}

func TestIsMemberWithoutActor(t *testing.T) {
	f := newRoomAccessFixture(t)

	ok, err := f.svc.IsMember(context.Background(), uuid.New(), nil)
	if err != nil || ok {
		t.Errorf("Expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestClearHistoryOnlyAffectsTargetRoom(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a := newAccount("Alice")

	vault, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)
	other, _ := f.svc.CreateRoom(ctx, "Other", "1234", a)

	f.send(t, vault.ID, a, "one")
	f.send(t, other.ID, a, "two")
	f.send(t, other.ID, a, "three")

	if _, err := f.svc.ClearHistory(ctx, vault.ID, a); err != nil {
		t.Fatal(err)
	}

	if n := f.store.messageCount(vault.ID); n != 0 {
		t.Errorf("Expected cleared room to be empty, got %d", n)
	}
	if n := f.store.messageCount(other.ID); n != 2 {
		t.Errorf("Expected other room untouched, got %d", n)
	}
	if n := f.feed.published(domain.FeedEventHistoryCleared); n != 1 {
		t.Errorf("Expected one history_cleared event, got %d", n)
	}
}

func TestClearHistoryErrors(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ClearHistory(ctx, uuid.New(), newAccount("Alice")); !errors.Is(err, apperrors.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}

	lobby, _ := f.svc.EnsurePublicRoom(ctx, "Lobby")
	if _, err := f.svc.ClearHistory(ctx, lobby.ID, nil); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
	if _, err := f.svc.ClearHistory(ctx, lobby.ID, newAccount("Alice")); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected ErrForbidden for ownerless room, got %v", err)
	}
}

func TestSendMessageToPrivateRoomRequiresMembership(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a, b := newAccount("Alice"), newAccount("Bob")

	room, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)

	for _, actor := range []*domain.Account{b, nil} {
		_, err := f.svc.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Body: "hi", Actor: actor})
		if !errors.Is(err, apperrors.ErrNotMember) {
			t.Errorf("Expected ErrNotMember, got %v", err)
		}
	}
	if n := f.store.messageCount(room.ID); n != 0 {
		t.Errorf("Expected no messages persisted, got %d", n)
	}

	if _, err := f.svc.ListMessages(ctx, room.ID, b, 0, ""); !errors.Is(err, apperrors.ErrNotMember) {
		t.Errorf("Expected ErrNotMember for listing, got %v", err)
	}
	if _, err := f.svc.Subscribe(ctx, room.ID, b); !errors.Is(err, apperrors.ErrNotMember) {
		t.Errorf("Expected ErrNotMember for subscribe, got %v", err)
	}
}

func TestAnonymousSendToPublicRoom(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()

	lobby, _ := f.svc.EnsurePublicRoom(ctx, "Lobby")

	msg, err := f.svc.SendMessage(ctx, SendMessageInput{RoomID: lobby.ID, Body: "  hi there  "})
	if err != nil {
		t.Fatalf("Expected anonymous send to succeed, got %v", err)
	}
	if msg.AuthorID != nil {
		t.Error("Expected no author id for anonymous sender")
	}
	if msg.AuthorName != domain.AnonymousAuthorName {
		t.Errorf("Expected %q, got %q", domain.AnonymousAuthorName, msg.AuthorName)
	}
	if msg.Body != "hi there" {
		t.Errorf("Expected trimmed body, got %q", msg.Body)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Error("Expected server-assigned id and timestamp")
	}
	if n := f.feed.published(domain.FeedEventMessage); n != 1 {
		t.Errorf("Expected one message event, got %d", n)
	}

	named, err := f.svc.SendMessage(ctx, SendMessageInput{RoomID: lobby.ID, Body: "x", DisplayName: "Guest 7"})
	if err != nil {
		t.Fatal(err)
	}
	if named.AuthorName != "Guest 7" {
		t.Errorf("Expected supplied display name, got %q", named.AuthorName)
	}
}

func TestSendMessageSnapshotsAuthor(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	avatar := "https://example.com/a.png"
	a := newAccount("Alice")
	a.AvatarURL = &avatar

	room, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)

	msg, err := f.svc.SendMessage(ctx, SendMessageInput{RoomID: room.ID, Body: "hi", Actor: a})
	if err != nil {
		t.Fatal(err)
	}
	if msg.AuthorID == nil || *msg.AuthorID != a.ID {
		t.Error("Expected message to be attributed to the actor")
	}
	if msg.AuthorName != "Alice" || msg.AuthorAvatar == nil || *msg.AuthorAvatar != avatar {
		t.Errorf("Expected actor profile snapshot, got %q %v", msg.AuthorName, msg.AuthorAvatar)
	}
	if msg.Attachments == nil {
		t.Error("Expected empty attachment list, got nil")
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	lobby, _ := f.svc.EnsurePublicRoom(ctx, "Lobby")

	att := domain.Attachment{Name: "a.png", MimeType: "image/png", Size: 3, URL: "data:image/png;base64,AAA"}

	cases := []struct {
		name  string
		input SendMessageInput
	}{
		{"empty", SendMessageInput{RoomID: lobby.ID, Body: "   "}},
		{"too long", SendMessageInput{RoomID: lobby.ID, Body: strings.Repeat("x", 201)}},
		{"too many attachments", SendMessageInput{RoomID: lobby.ID, Attachments: []domain.Attachment{att, att, att}}},
		{"attachment without url", SendMessageInput{RoomID: lobby.ID, Attachments: []domain.Attachment{{Name: "a.png"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.SendMessage(ctx, tc.input); !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if _, err := f.svc.SendMessage(ctx, SendMessageInput{RoomID: lobby.ID, Attachments: []domain.Attachment{att}}); err != nil {
		t.Errorf("Expected attachment-only message to be accepted, got %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, SendMessageInput{RoomID: uuid.New(), Body: "hi"}); !errors.Is(err, apperrors.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestListMessagesPaging(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	lobby, _ := f.svc.EnsurePublicRoom(ctx, "Lobby")

	for _, body := range []string{"one", "two", "three"} {
		f.send(t, lobby.ID, nil, body)
	}

	msgs, err := f.svc.ListMessages(ctx, lobby.ID, nil, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Body != "two" || msgs[1].Body != "three" {
		t.Errorf("Expected latest two oldest first, got %d messages", len(msgs))
	}
}

func TestEnsurePublicRoomIsIdempotent(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()

	first, err := f.svc.EnsurePublicRoom(ctx, "Lobby")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.EnsurePublicRoom(ctx, "Lobby")
	if err != nil {
		t.Fatal(err)
	}

	if first.ID != second.ID {
		t.Error("Expected the same public room on repeated calls")
	}
	if first.OwnerID != nil || first.PasswordHash != nil || first.Kind != domain.RoomKindPublic {
		t.Errorf("Expected ownerless public room without digest, got %+v", first)
	}
}

func TestListRoomsHidesForeignPrivateRooms(t *testing.T) {
	f := newRoomAccessFixture(t)
	ctx := context.Background()
	a, b := newAccount("Alice"), newAccount("Bob")

	lobby, _ := f.svc.EnsurePublicRoom(ctx, "Lobby")
	vault, _ := f.svc.CreateRoom(ctx, "Vault", "4821", a)

	rooms, err := f.svc.ListRooms(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].ID != lobby.ID {
		t.Errorf("Expected only the public room for a non-member, got %d rooms", len(rooms))
	}

	rooms, _ = f.svc.ListRooms(ctx, a)
	if len(rooms) != 2 || rooms[0].ID != lobby.ID || rooms[1].ID != vault.ID {
		t.Errorf("Expected public room first and then the owned room, got %d rooms", len(rooms))
	}

	rooms, _ = f.svc.ListRooms(ctx, nil)
	if len(rooms) != 1 {
		t.Errorf("Expected anonymous listing to show only public rooms, got %d", len(rooms))
	}
}
