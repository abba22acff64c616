// Package notifications persists social notifications and pushes them to the
// receiver's personal realtime room.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/models"
	"social-chat-service/internal/observability"
	"social-chat-service/internal/pagination"
	"social-chat-service/internal/rabbitmq"
	"social-chat-service/internal/repositories"
	"social-chat-service/internal/service"
)

// ErrSelfNotification is returned when a user would notify themselves.
var ErrSelfNotification = errors.New("sender and receiver are the same user")

// DeliverInput is a request to notify ReceiverID about an action by SenderID.
type DeliverInput struct {
	Type       models.NotificationType `json:"type"`
	SenderID   string                  `json:"sender_id"`
	ReceiverID string                  `json:"receiver_id"`
	TweetID    string                  `json:"tweet_id,omitempty"`
}

// Bridge stores notifications and fans them out over the realtime channel.
type Bridge struct {
	repo  repositories.NotificationRepository
	rooms service.Broadcaster
	log   *logger.Logger
	now   func() time.Time
}

// NewBridge constructs a Bridge.
func NewBridge(repo repositories.NotificationRepository, rooms service.Broadcaster, log *logger.Logger) *Bridge {
	return &Bridge{repo: repo, rooms: rooms, log: log.Named("notifications"), now: func() time.Time { return time.Now().UTC() }}
}

// Deliver persists the notification and publishes getNotification to the
// receiver's personal room.
func (b *Bridge) Deliver(ctx context.Context, in DeliverInput) (models.Notification, error) {
	if !in.Type.Valid() {
		return models.Notification{}, fmt.Errorf("%w: unknown notification type %q", service.ErrValidation, in.Type)
	}
	sender, receiver := strings.TrimSpace(in.SenderID), strings.TrimSpace(in.ReceiverID)
	if sender == "" || receiver == "" {
		return models.Notification{}, fmt.Errorf("%w: sender and receiver are required", service.ErrValidation)
	}
	if sender == receiver {
		return models.Notification{}, ErrSelfNotification
	}

	n := models.Notification{
		ID:         uuid.NewString(),
		Type:       in.Type,
		SenderID:   sender,
		ReceiverID: receiver,
		CreatedAt:  b.now(),
	}
	if in.TweetID != "" {
		tweetID := in.TweetID
		n.TweetID = &tweetID
	}
	if err := b.repo.Create(ctx, n); err != nil {
		return models.Notification{}, fmt.Errorf("store notification: %w", err)
	}

	b.rooms.Publish(models.UserRoom(receiver), models.EventGetNotification, n)
	observability.IncNotificationDelivered(string(n.Type))
	return n, nil
}

// HandleDelivery decodes a broker message and delivers it. Undecodable or
// invalid messages are reported as rabbitmq.ErrMalformed.
func (b *Bridge) HandleDelivery(ctx context.Context, body []byte) error {
	var in DeliverInput
	if err := json.Unmarshal(body, &in); err != nil {
		return fmt.Errorf("%w: %v", rabbitmq.ErrMalformed, err)
	}
	_, err := b.Deliver(ctx, in)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSelfNotification):
		b.log.Debug("skipping self notification", zap.String("user_id", in.SenderID))
		return nil
	case errors.Is(err, service.ErrValidation):
		return fmt.Errorf("%w: %v", rabbitmq.ErrMalformed, err)
	default:
		return err
	}
}

// List returns a page of the receiver's notifications, newest first.
func (b *Bridge) List(ctx context.Context, receiverID string, req pagination.Request) (pagination.Page[models.NotificationWithSender], error) {
	items, total, err := b.repo.ListForReceiver(ctx, receiverID, req.Offset(), req.Limit)
	if err != nil {
		return pagination.Page[models.NotificationWithSender]{}, err
	}
	return pagination.NewPage(req, total, items), nil
}

// CountUnread counts the receiver's unread notifications.
func (b *Bridge) CountUnread(ctx context.Context, receiverID string) (int, error) {
	return b.repo.CountUnread(ctx, receiverID)
}

// MarkRead marks one of the receiver's notifications read.
func (b *Bridge) MarkRead(ctx context.Context, receiverID, id string) (models.Notification, error) {
	n, err := b.repo.MarkRead(ctx, id, receiverID)
	if errors.Is(err, repositories.ErrNotificationNotFound) {
		return models.Notification{}, fmt.Errorf("%w: notification", service.ErrNotFound)
	}
	return n, err
}
