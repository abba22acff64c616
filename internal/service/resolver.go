package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/models"
	"social-chat-service/internal/repositories"
)

// ConversationResolver finds or creates the single conversation owning a
// participant set.
type ConversationResolver struct {
	conversations repositories.ConversationRepository
	users         repositories.UserRepository
	log           *logger.Logger
}

// NewConversationResolver constructs a ConversationResolver.
func NewConversationResolver(conversations repositories.ConversationRepository, users repositories.UserRepository, log *logger.Logger) *ConversationResolver {
	return &ConversationResolver{conversations: conversations, users: users, log: log}
}

// CreateOrGet returns the conversation for targets plus requester, creating
// it when none exists. A requester who had left is reactivated. chatName is
// applied only when a new group conversation is created.
func (r *ConversationResolver) CreateOrGet(ctx context.Context, requesterID string, targetIDs []string, chatName string) (models.Conversation, error) {
	if len(targetIDs) == 0 {
		return models.Conversation{}, fmt.Errorf("%w: participant list is required", ErrValidation)
	}
	for _, id := range targetIDs {
		if strings.TrimSpace(id) == "" {
			return models.Conversation{}, fmt.Errorf("%w: participant ids must not be blank", ErrValidation)
		}
	}
	if err := r.ensureUsersExist(ctx, targetIDs); err != nil {
		return models.Conversation{}, err
	}

	members := models.NormalizeUserIDs(append(append([]string{}, targetIDs...), requesterID))
	key := models.ParticipantKey(members)

	conv, err := r.conversations.FindByParticipantKey(ctx, key)
	if err == nil {
		return r.rejoin(ctx, conv, requesterID)
	}
	if !errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Conversation{}, err
	}

	conv = newConversation(requesterID, targetIDs, key, chatName)
	if err := r.conversations.Create(ctx, conv); err != nil {
		if !errors.Is(err, repositories.ErrDuplicateParticipantSet) {
			return models.Conversation{}, err
		}
		// A concurrent request created it first; return the winner.
		existing, findErr := r.conversations.FindByParticipantKey(ctx, key)
		if findErr != nil {
			return models.Conversation{}, findErr
		}
		return r.rejoin(ctx, existing, requesterID)
	}
	r.log.Debug("conversation created", zap.String("conversation_id", conv.ID), zap.Int("participants", len(conv.Participants)))
	return conv, nil
}

// FindDirect returns the two-party conversation between userA and userB.
func (r *ConversationResolver) FindDirect(ctx context.Context, userA, userB string) (models.Conversation, bool, error) {
	conv, err := r.conversations.FindByParticipantKey(ctx, models.ParticipantKey([]string{userA, userB}))
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Conversation{}, false, nil
	}
	if err != nil {
		return models.Conversation{}, false, err
	}
	return conv, true, nil
}

// EnsureDirect returns one direct conversation id per target user, creating
// conversations that do not exist yet.
func (r *ConversationResolver) EnsureDirect(ctx context.Context, senderID string, userIDs []string) ([]string, error) {
	ids := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		conv, found, err := r.FindDirect(ctx, senderID, userID)
		if err != nil {
			return nil, err
		}
		if found {
			if conv, err = r.rejoin(ctx, conv, senderID); err != nil {
				return nil, err
			}
		} else {
			if conv, err = r.CreateOrGet(ctx, senderID, []string{userID}, ""); err != nil {
				return nil, err
			}
		}
		ids = append(ids, conv.ID)
	}
	return ids, nil
}

func (r *ConversationResolver) rejoin(ctx context.Context, conv models.Conversation, requesterID string) (models.Conversation, error) {
	p, ok := conv.Participant(requesterID)
	if !ok || !p.HasLeft {
		return conv, nil
	}
	p.HasLeft = false
	if err := r.conversations.Save(ctx, conv); err != nil {
		return models.Conversation{}, err
	}
	r.log.Debug("participant rejoined", zap.String("conversation_id", conv.ID), zap.String("user_id", requesterID))
	return conv, nil
}

func (r *ConversationResolver) ensureUsersExist(ctx context.Context, ids []string) error {
	wanted := models.NormalizeUserIDs(ids)
	users, err := r.users.ListByIDs(ctx, wanted)
	if err != nil {
		return err
	}
	found := make(map[string]struct{}, len(users))
	for _, u := range users {
		found[u.ID] = struct{}{}
	}
	for _, id := range wanted {
		if _, ok := found[id]; !ok {
			return fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
	}
	return nil
}

func newConversation(requesterID string, targetIDs []string, key, chatName string) models.Conversation {
	ordered := make([]string, 0, len(targetIDs)+1)
	seen := map[string]struct{}{}
	for _, id := range append([]string{requesterID}, targetIDs...) {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}

	now := time.Now().UTC()
	conv := models.Conversation{
		ID:             uuid.NewString(),
		ParticipantKey: key,
		IsGroupChat:    len(ordered) > 2,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, id := range ordered {
		conv.Participants = append(conv.Participants, models.Participant{UserID: id})
	}
	if conv.IsGroupChat {
		if name := strings.TrimSpace(chatName); name != "" {
			conv.ChatName = &name
		}
	}
	return conv
}
