package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social-chat-service/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrDuplicateParticipantSet is returned when another conversation already
	// owns the participant key being written.
	ErrDuplicateParticipantSet = errors.New("conversation with the same participants exists")
)

// ConversationRepository abstracts conversation persistence. Writes are
// last-write-wins at the conversation level.
type ConversationRepository interface {
	FindByParticipantKey(ctx context.Context, key string) (models.Conversation, error)
	Get(ctx context.Context, id string) (models.Conversation, error)
	Create(ctx context.Context, conv models.Conversation) error
	Save(ctx context.Context, conv models.Conversation) error
	Delete(ctx context.Context, id string) error
	SetLastMessage(ctx context.Context, conversationID, messageID string) error
	ListActiveIDs(ctx context.Context, userID string) ([]string, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationWithParticipants, error)
	GetWithParticipants(ctx context.Context, id string) (models.ConversationWithParticipants, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, participant_key, is_group_chat, chat_name, chat_image, last_message_id, created_at, updated_at`

// FindByParticipantKey returns the conversation owning the normalized key.
func (r *ConversationRepo) FindByParticipantKey(ctx context.Context, key string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE participant_key=$1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return r.withParticipants(ctx, conv)
}

// Get fetches a conversation and all of its participant entries.
func (r *ConversationRepo) Get(ctx context.Context, id string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return r.withParticipants(ctx, conv)
}

func (r *ConversationRepo) withParticipants(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants, `SELECT user_id, has_left, is_pinned FROM conversation_participants
        WHERE conversation_id=$1 ORDER BY position ASC`, conv.ID)
	if err != nil {
		return models.Conversation{}, err
	}
	conv.Participants = participants
	return conv, nil
}

// Create inserts the conversation and its participants atomically.
func (r *ConversationRepo) Create(ctx context.Context, conv models.Conversation) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO conversations (id, participant_key, is_group_chat, chat_name, chat_image, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`, conv.ID, conv.ParticipantKey, conv.IsGroupChat, conv.ChatName, conv.ChatImage, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateParticipantSet
		}
		return err
	}
	if err = upsertParticipants(ctx, tx, conv); err != nil {
		return err
	}
	return tx.Commit()
}

// Save persists participants, key and group metadata. It leaves
// last_message_id alone so concurrent sends are not overwritten.
func (r *ConversationRepo) Save(ctx context.Context, conv models.Conversation) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET participant_key=$2, chat_name=$3, chat_image=$4 WHERE id=$1`,
		conv.ID, conv.ParticipantKey, conv.ChatName, conv.ChatImage)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateParticipantSet
		}
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	if err = upsertParticipants(ctx, tx, conv); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertParticipants(ctx context.Context, tx *sqlx.Tx, conv models.Conversation) error {
	for i, p := range conv.Participants {
		_, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id, position, has_left, is_pinned)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (conversation_id, user_id) DO UPDATE SET has_left = EXCLUDED.has_left, is_pinned = EXCLUDED.is_pinned`,
			conv.ID, p.UserID, i, p.HasLeft, p.IsPinned)
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the conversation; participants and messages cascade.
func (r *ConversationRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// SetLastMessage points the conversation at its newest message and bumps activity.
func (r *ConversationRepo) SetLastMessage(ctx context.Context, conversationID, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET last_message_id=$2, updated_at=NOW() WHERE id=$1`, conversationID, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ListActiveIDs returns ids of conversations where the user has not left.
func (r *ConversationRepo) ListActiveIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT conversation_id FROM conversation_participants WHERE user_id=$1 AND has_left = FALSE`, userID)
	return ids, err
}

// ListForUser returns hydrated conversations the user is active in, newest activity first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.ConversationWithParticipants, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, `SELECT c.id, c.participant_key, c.is_group_chat, c.chat_name, c.chat_image, c.last_message_id, c.created_at, c.updated_at
        FROM conversations c
        INNER JOIN conversation_participants cp ON cp.conversation_id = c.id
        WHERE cp.user_id=$1 AND cp.has_left = FALSE
        ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, convs)
}

// GetWithParticipants returns one hydrated conversation.
func (r *ConversationRepo) GetWithParticipants(ctx context.Context, id string) (models.ConversationWithParticipants, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConversationWithParticipants{}, ErrConversationNotFound
	}
	if err != nil {
		return models.ConversationWithParticipants{}, err
	}
	out, err := r.hydrate(ctx, []models.Conversation{conv})
	if err != nil {
		return models.ConversationWithParticipants{}, err
	}
	return out[0], nil
}

type participantUserRow struct {
	ConversationID string `db:"conversation_id"`
	models.Participant
	Username    sql.NullString `db:"username"`
	DisplayName sql.NullString `db:"display_name"`
	Avatar      sql.NullString `db:"avatar"`
}

func (r *ConversationRepo) hydrate(ctx context.Context, convs []models.Conversation) ([]models.ConversationWithParticipants, error) {
	result := make([]models.ConversationWithParticipants, 0, len(convs))
	if len(convs) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(convs))
	lastIDs := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
		if c.LastMessageID != nil {
			lastIDs = append(lastIDs, *c.LastMessageID)
		}
	}

	var rows []participantUserRow
	err := r.db.SelectContext(ctx, &rows, `SELECT cp.conversation_id, cp.user_id, cp.has_left, cp.is_pinned, u.username, u.display_name, u.avatar
        FROM conversation_participants cp
        LEFT JOIN users u ON u.id = cp.user_id
        WHERE cp.conversation_id = ANY($1) AND cp.has_left = FALSE
        ORDER BY cp.conversation_id, cp.position ASC`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	byConv := map[string][]models.ParticipantWithUser{}
	for _, row := range rows {
		p := models.ParticipantWithUser{Participant: row.Participant}
		if row.Username.Valid {
			p.User = &models.User{ID: row.UserID, Username: row.Username.String, DisplayName: row.DisplayName.String, Avatar: row.Avatar.String}
		}
		byConv[row.ConversationID] = append(byConv[row.ConversationID], p)
	}

	lastByID := map[string]models.Message{}
	if len(lastIDs) > 0 {
		var msgRows []messageRow
		if err := r.db.SelectContext(ctx, &msgRows, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1)`, pq.Array(lastIDs)); err != nil {
			return nil, err
		}
		for _, m := range msgRows {
			lastByID[m.ID] = m.toModel()
		}
	}

	for _, c := range convs {
		hydrated := models.ConversationWithParticipants{
			ID:           c.ID,
			Participants: byConv[c.ID],
			IsGroupChat:  c.IsGroupChat,
			ChatName:     c.ChatName,
			ChatImage:    c.ChatImage,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		}
		if hydrated.Participants == nil {
			hydrated.Participants = []models.ParticipantWithUser{}
		}
		if c.LastMessageID != nil {
			if m, ok := lastByID[*c.LastMessageID]; ok {
				hydrated.LastMessage = &m
			}
		}
		result = append(result, hydrated)
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
