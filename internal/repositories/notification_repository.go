package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"social-chat-service/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository persists notifications delivered through the bridge.
type NotificationRepository interface {
	Create(ctx context.Context, n models.Notification) error
	ListForReceiver(ctx context.Context, receiverID string, offset, limit int) ([]models.NotificationWithSender, int, error)
	CountUnread(ctx context.Context, receiverID string) (int, error)
	MarkRead(ctx context.Context, id, receiverID string) (models.Notification, error)
}

// NotificationRepo is a sqlx-backed implementation.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Create persists a notification.
func (r *NotificationRepo) Create(ctx context.Context, n models.Notification) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notifications (id, type, sender_id, receiver_id, tweet_id, read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`, n.ID, string(n.Type), n.SenderID, n.ReceiverID, n.TweetID, n.Read, n.CreatedAt)
	return err
}

type notificationSenderRow struct {
	models.Notification
	SenderUsername    sql.NullString `db:"sender_username"`
	SenderDisplayName sql.NullString `db:"sender_display_name"`
	SenderAvatar      sql.NullString `db:"sender_avatar"`
}

// ListForReceiver returns a page of notifications newest first and the total count.
func (r *NotificationRepo) ListForReceiver(ctx context.Context, receiverID string, offset, limit int) ([]models.NotificationWithSender, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications WHERE receiver_id=$1`, receiverID); err != nil {
		return nil, 0, err
	}

	var rows []notificationSenderRow
	err := r.db.SelectContext(ctx, &rows, `SELECT n.id, n.type, n.sender_id, n.receiver_id, n.tweet_id, n.read, n.created_at,
            u.username AS sender_username, u.display_name AS sender_display_name, u.avatar AS sender_avatar
        FROM notifications n
        LEFT JOIN users u ON u.id = n.sender_id
        WHERE n.receiver_id=$1
        ORDER BY n.created_at DESC
        LIMIT $2 OFFSET $3`, receiverID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.NotificationWithSender, 0, len(rows))
	for _, row := range rows {
		n := models.NotificationWithSender{Notification: row.Notification}
		if row.SenderUsername.Valid {
			n.Sender = &models.User{ID: row.SenderID, Username: row.SenderUsername.String, DisplayName: row.SenderDisplayName.String, Avatar: row.SenderAvatar.String}
		}
		out = append(out, n)
	}
	return out, total, nil
}

// CountUnread counts unread notifications for the receiver.
func (r *NotificationRepo) CountUnread(ctx context.Context, receiverID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE receiver_id=$1 AND read = FALSE`, receiverID)
	return count, err
}

// MarkRead flags a notification read when it belongs to the receiver.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, receiverID string) (models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n, `UPDATE notifications SET read = TRUE WHERE id=$1 AND receiver_id=$2
        RETURNING id, type, sender_id, receiver_id, tweet_id, read, created_at`, id, receiverID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}
