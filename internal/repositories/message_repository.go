package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) error
	Get(ctx context.Context, id string) (models.Message, error)
	AppendReadBy(ctx context.Context, id string, userID string) (models.Message, error)
	AppendRemovedBy(ctx context.Context, id string, userID string) error
	ListForUser(ctx context.Context, conversationID, userID string, offset, limit int) ([]models.MessageWithSender, int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, content, media_url, media_type, type, reply_to, tweet_id, read_by, removed_by, created_at`

type messageRow struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	SenderID       string         `db:"sender_id"`
	Content        sql.NullString `db:"content"`
	MediaURL       sql.NullString `db:"media_url"`
	MediaType      sql.NullString `db:"media_type"`
	Type           string         `db:"type"`
	ReplyTo        sql.NullString `db:"reply_to"`
	TweetID        sql.NullString `db:"tweet_id"`
	ReadBy         pq.StringArray `db:"read_by"`
	RemovedBy      pq.StringArray `db:"removed_by"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (row messageRow) toModel() models.Message {
	msg := models.Message{
		ID:             row.ID,
		ConversationID: row.ConversationID,
		SenderID:       row.SenderID,
		Type:           models.MessageType(row.Type),
		ReadBy:         []string(row.ReadBy),
		RemovedBy:      []string(row.RemovedBy),
		CreatedAt:      row.CreatedAt,
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	if msg.RemovedBy == nil {
		msg.RemovedBy = []string{}
	}
	if row.Content.Valid {
		msg.Content = &row.Content.String
	}
	if row.MediaURL.Valid {
		msg.Media = &models.Media{URL: row.MediaURL.String, Type: row.MediaType.String}
	}
	if row.ReplyTo.Valid {
		msg.ReplyTo = &row.ReplyTo.String
	}
	if row.TweetID.Valid {
		msg.TweetID = &row.TweetID.String
	}
	return msg
}

// Create stores a message.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) error {
	var mediaURL, mediaType *string
	if msg.Media != nil {
		mediaURL, mediaType = &msg.Media.URL, &msg.Media.Type
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, content, media_url, media_type, type, reply_to, tweet_id, read_by, removed_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, mediaURL, mediaType, string(msg.Type), msg.ReplyTo, msg.TweetID,
		pq.StringArray(nonNil(msg.ReadBy)), pq.StringArray(nonNil(msg.RemovedBy)), msg.CreatedAt)
	return err
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, id string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// AppendReadBy adds userID to read_by once and returns the updated message.
func (r *MessageRepo) AppendReadBy(ctx context.Context, id string, userID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `UPDATE messages
        SET read_by = CASE WHEN $2 = ANY(read_by) THEN read_by ELSE array_append(read_by, $2) END
        WHERE id=$1 RETURNING `+messageColumns, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// AppendRemovedBy hides the message for userID only.
func (r *MessageRepo) AppendRemovedBy(ctx context.Context, id string, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages
        SET removed_by = CASE WHEN $2 = ANY(removed_by) THEN removed_by ELSE array_append(removed_by, $2) END
        WHERE id=$1`, id, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

type messageSenderRow struct {
	messageRow
	SenderUsername    sql.NullString `db:"sender_username"`
	SenderDisplayName sql.NullString `db:"sender_display_name"`
	SenderAvatar      sql.NullString `db:"sender_avatar"`
}

// ListForUser returns one page of history newest first, excluding messages
// the user hid, along with the total number of visible messages.
func (r *MessageRepo) ListForUser(ctx context.Context, conversationID, userID string, offset, limit int) ([]models.MessageWithSender, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM messages WHERE conversation_id=$1 AND NOT ($2 = ANY(removed_by))`, conversationID, userID); err != nil {
		return nil, 0, err
	}

	var rows []messageSenderRow
	err := r.db.SelectContext(ctx, &rows, `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.media_url, m.media_type, m.type, m.reply_to, m.tweet_id, m.read_by, m.removed_by, m.created_at,
            u.username AS sender_username, u.display_name AS sender_display_name, u.avatar AS sender_avatar
        FROM messages m
        LEFT JOIN users u ON u.id = m.sender_id
        WHERE m.conversation_id=$1 AND NOT ($2 = ANY(m.removed_by))
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $3 OFFSET $4`, conversationID, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	msgs := make([]models.MessageWithSender, 0, len(rows))
	for _, row := range rows {
		m := models.MessageWithSender{Message: row.toModel()}
		if row.SenderUsername.Valid {
			m.Sender = &models.User{ID: row.SenderID, Username: row.SenderUsername.String, DisplayName: row.SenderDisplayName.String, Avatar: row.SenderAvatar.String}
		}
		msgs = append(msgs, m)
	}
	return msgs, total, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
