package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/models"
	"social-chat-service/internal/pagination"
	"social-chat-service/internal/rabbitmq"
	"social-chat-service/internal/repositories"
	"social-chat-service/internal/service"
)

type memNotifications struct {
	items     []models.Notification
	createErr error
}

func (m *memNotifications) Create(_ context.Context, n models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.items = append(m.items, n)
	return nil
}

func (m *memNotifications) ListForReceiver(_ context.Context, receiverID string, offset, limit int) ([]models.NotificationWithSender, int, error) {
	var mine []models.NotificationWithSender
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].ReceiverID == receiverID {
			mine = append(mine, models.NotificationWithSender{Notification: m.items[i]})
		}
	}
	total := len(mine)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

func (m *memNotifications) CountUnread(_ context.Context, receiverID string) (int, error) {
	count := 0
	for _, n := range m.items {
		if n.ReceiverID == receiverID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *memNotifications) MarkRead(_ context.Context, id, receiverID string) (models.Notification, error) {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].ReceiverID == receiverID {
			m.items[i].Read = true
			return m.items[i], nil
		}
	}
	return models.Notification{}, repositories.ErrNotificationNotFound
}

type roomEvent struct {
	room, event string
	payload     any
}

type recordingRooms struct{ events []roomEvent }

func (r *recordingRooms) Publish(room, event string, payload any) {
	r.events = append(r.events, roomEvent{room: room, event: event, payload: payload})
}

func TestDeliverPersistsThenPublishes(t *testing.T) {
	repo := &memNotifications{}
	rooms := &recordingRooms{}
	bridge := NewBridge(repo, rooms, logger.NewNop())

	n, err := bridge.Deliver(context.Background(), DeliverInput{Type: models.NotificationLike, SenderID: "bob", ReceiverID: "alice", TweetID: "t1"})
	require.NoError(t, err)
	require.Len(t, repo.items, 1)
	assert.Equal(t, n.ID, repo.items[0].ID)
	assert.False(t, n.Read)

	require.Len(t, rooms.events, 1)
	assert.Equal(t, models.UserRoom("alice"), rooms.events[0].room)
	assert.Equal(t, models.EventGetNotification, rooms.events[0].event)
}

func TestDeliverRejectsInvalidInput(t *testing.T) {
	repo := &memNotifications{}
	rooms := &recordingRooms{}
	bridge := NewBridge(repo, rooms, logger.NewNop())
	ctx := context.Background()

	_, err := bridge.Deliver(ctx, DeliverInput{Type: "poke", SenderID: "a", ReceiverID: "b"})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = bridge.Deliver(ctx, DeliverInput{Type: models.NotificationFollow, SenderID: "a"})
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = bridge.Deliver(ctx, DeliverInput{Type: models.NotificationFollow, SenderID: "a", ReceiverID: "a"})
	assert.ErrorIs(t, err, ErrSelfNotification)

	repo.createErr = errors.New("db down")
	_, err = bridge.Deliver(ctx, DeliverInput{Type: models.NotificationFollow, SenderID: "a", ReceiverID: "b"})
	assert.Error(t, err)

	assert.Empty(t, rooms.events)
}

func TestHandleDeliveryClassifiesErrors(t *testing.T) {
	repo := &memNotifications{}
	bridge := NewBridge(repo, &recordingRooms{}, logger.NewNop())
	ctx := context.Background()

	assert.NoError(t, bridge.HandleDelivery(ctx, []byte(`{"type":"reply","sender_id":"a","receiver_id":"b"}`)))
	assert.NoError(t, bridge.HandleDelivery(ctx, []byte(`{"type":"reply","sender_id":"a","receiver_id":"a"}`)))
	assert.ErrorIs(t, bridge.HandleDelivery(ctx, []byte(`not json`)), rabbitmq.ErrMalformed)
	assert.ErrorIs(t, bridge.HandleDelivery(ctx, []byte(`{"type":"poke","sender_id":"a","receiver_id":"b"}`)), rabbitmq.ErrMalformed)

	repo.createErr = errors.New("db down")
	err := bridge.HandleDelivery(ctx, []byte(`{"type":"reply","sender_id":"a","receiver_id":"b"}`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, rabbitmq.ErrMalformed)
	assert.Len(t, repo.items, 1)
}

func TestListCountAndMarkRead(t *testing.T) {
	repo := &memNotifications{}
	bridge := NewBridge(repo, &recordingRooms{}, logger.NewNop())
	ctx := context.Background()

	var last models.Notification
	for i := 0; i < 12; i++ {
		n, err := bridge.Deliver(ctx, DeliverInput{Type: models.NotificationRetweet, SenderID: "bob", ReceiverID: "alice"})
		require.NoError(t, err)
		last = n
	}
	_, err := bridge.Deliver(ctx, DeliverInput{Type: models.NotificationRetweet, SenderID: "alice", ReceiverID: "bob"})
	require.NoError(t, err)

	page, err := bridge.List(ctx, "alice", pagination.Parse("2", "10"))
	require.NoError(t, err)
	assert.Equal(t, 12, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Data, 2)

	first, err := bridge.List(ctx, "alice", pagination.Parse("", ""))
	require.NoError(t, err)
	assert.Equal(t, last.ID, first.Data[0].ID)

	read, err := bridge.MarkRead(ctx, "alice", last.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)
	count, err := bridge.CountUnread(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 11, count)

	_, err = bridge.MarkRead(ctx, "bob", last.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
}
