package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chat_rooms/internal/domain"
	"chat_rooms/pkg/logger"
)

const feedChannelPattern = "chat:room:%s:feed"

// FeedRepository раздает события комнаты всем инстансам через Redis pub/sub
type FeedRepository interface {
	Publish(ctx context.Context, event *domain.FeedEvent) error
	Subscribe(ctx context.Context, roomID uuid.UUID) (*FeedSubscription, error)
}

// FeedSubscription закрывает Events после Close или отмены контекста
type FeedSubscription struct {
	Events  <-chan *domain.FeedEvent
	closeFn func() error
}

func NewFeedSubscription(events <-chan *domain.FeedEvent, closeFn func() error) *FeedSubscription {
	return &FeedSubscription{Events: events, closeFn: closeFn}
}

func (s *FeedSubscription) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

type feedRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewFeedRepository(rdb *redis.Client, log logger.Logger) FeedRepository {
	return &feedRepository{rdb: rdb, log: log}
}

func feedChannel(roomID uuid.UUID) string {
	return fmt.Sprintf(feedChannelPattern, roomID.String())
}

func (r *feedRepository) Publish(ctx context.Context, event *domain.FeedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal feed event: %w", err)
	}

	if err := r.rdb.Publish(ctx, feedChannel(event.RoomID), payload).Err(); err != nil {
		r.log.Error("Failed to publish feed event", "error", err, "room_id", event.RoomID, "type", event.Type)
		return err
	}
	return nil
}

func (r *feedRepository) Subscribe(ctx context.Context, roomID uuid.UUID) (*FeedSubscription, error) {
	pubsub := r.rdb.Subscribe(ctx, feedChannel(roomID))

	// Дожидаемся подтверждения подписки, иначе первые события могут потеряться
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		r.log.Error("Failed to subscribe to feed", "error", err, "room_id", roomID)
		return nil, err
	}

	ch := pubsub.Channel()
	events := make(chan *domain.FeedEvent, 16)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.FeedEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.log.Warn("Dropping malformed feed event", "error", err, "room_id", roomID)
					continue
				}
				select {
				case events <- &event:
				case <-ctx.Done():
					_ = pubsub.Close()
					return
				}
			}
		}
	}()

	return NewFeedSubscription(events, pubsub.Close), nil
}
