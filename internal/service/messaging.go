package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/media"
	"social-chat-service/internal/models"
	"social-chat-service/internal/pagination"
	"social-chat-service/internal/repositories"
)

const (
	maxContentLength  = 1000
	maxChatNameLength = 50

	messageMediaFolder = "messages"
	chatImageFolder    = "chat-images"
)

// Broadcaster publishes realtime events to a room. Implementations are best
// effort and never report delivery failures.
type Broadcaster interface {
	Publish(room, event string, payload any)
}

// MessagingService orchestrates conversation and message operations and
// publishes the resulting events after the store writes complete.
type MessagingService struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	resolver      *ConversationResolver
	media         media.Store
	rooms         Broadcaster
	log           *logger.Logger
	now           func() time.Time
}

// NewMessagingService constructs a MessagingService.
func NewMessagingService(conversations repositories.ConversationRepository, messages repositories.MessageRepository, resolver *ConversationResolver, store media.Store, rooms Broadcaster, log *logger.Logger) *MessagingService {
	return &MessagingService{
		conversations: conversations,
		messages:      messages,
		resolver:      resolver,
		media:         store,
		rooms:         rooms,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateConversation finds or creates the conversation with targetIDs.
func (s *MessagingService) CreateConversation(ctx context.Context, requesterID string, targetIDs []string, chatName string) (models.Conversation, error) {
	conv, err := s.resolver.CreateOrGet(ctx, requesterID, targetIDs, chatName)
	if err != nil {
		return models.Conversation{}, err
	}
	conv.Participants = conv.ActiveParticipants()
	return conv, nil
}

// SendInput describes a new message. Upload, when set, is stored before the
// message is written.
type SendInput struct {
	SenderID       string
	ConversationID string
	Content        string
	Upload         *media.File
	ReplyTo        string
	Type           models.MessageType
	TweetID        string
}

// Send persists a message, moves the conversation's last message pointer and
// publishes getMessage to the conversation room.
func (s *MessagingService) Send(ctx context.Context, in SendInput) (models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if utf8.RuneCountInString(content) > maxContentLength {
		return models.Message{}, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, maxContentLength)
	}
	msgType, err := resolveType(in)
	if err != nil {
		return models.Message{}, err
	}
	if content == "" && in.Upload == nil && msgType != models.MessageTypeTweetShare {
		return models.Message{}, fmt.Errorf("%w: content or media is required", ErrValidation)
	}

	conv, err := s.getConversation(ctx, in.ConversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !conv.IsActive(in.SenderID) {
		return models.Message{}, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Type:           msgType,
		ReadBy:         []string{},
		RemovedBy:      []string{},
	}
	if content != "" {
		msg.Content = &content
	}
	if in.ReplyTo != "" {
		target, err := s.getMessage(ctx, in.ReplyTo)
		if err != nil {
			return models.Message{}, err
		}
		if target.ConversationID != conv.ID {
			return models.Message{}, fmt.Errorf("%w: reply target belongs to another conversation", ErrValidation)
		}
		msg.ReplyTo = &target.ID
	}
	if in.TweetID != "" {
		tweetID := in.TweetID
		msg.TweetID = &tweetID
	}
	if in.Upload != nil {
		stored, err := s.saveUpload(ctx, messageMediaFolder, *in.Upload)
		if err != nil {
			return models.Message{}, err
		}
		msg.Media = &models.Media{URL: stored.URL, Type: stored.Type}
	}

	msg.CreatedAt = s.now()
	if err := s.messages.Create(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	if err := s.conversations.SetLastMessage(ctx, conv.ID, msg.ID); err != nil {
		return models.Message{}, fmt.Errorf("update last message: %w", err)
	}

	s.rooms.Publish(models.ConversationRoom(conv.ID), models.EventGetMessage, msg)
	return msg, nil
}

func resolveType(in SendInput) (models.MessageType, error) {
	t := in.Type
	if t == "" {
		switch {
		case in.TweetID != "":
			t = models.MessageTypeTweetShare
		case in.ReplyTo != "":
			t = models.MessageTypeReply
		default:
			t = models.MessageTypeMessage
		}
	}
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown message type %q", ErrValidation, t)
	}
	if t == models.MessageTypeTweetShare && in.TweetID == "" {
		return "", fmt.Errorf("%w: tweet id is required for tweet shares", ErrValidation)
	}
	if t == models.MessageTypeReply && in.ReplyTo == "" {
		return "", fmt.Errorf("%w: reply target is required for replies", ErrValidation)
	}
	return t, nil
}

// SendTweetInput fans a tweet out to users and conversations.
type SendTweetInput struct {
	SenderID        string
	TweetID         string
	Content         string
	UserIDs         []string
	ConversationIDs []string
}

// SendTweet shares a tweet into every selected conversation, creating direct
// conversations with the selected users when needed. Messages that were sent
// are returned even when others failed.
func (s *MessagingService) SendTweet(ctx context.Context, in SendTweetInput) ([]models.Message, error) {
	if strings.TrimSpace(in.TweetID) == "" {
		return nil, fmt.Errorf("%w: tweet id is required", ErrValidation)
	}
	if len(in.UserIDs) == 0 && len(in.ConversationIDs) == 0 {
		return nil, fmt.Errorf("%w: select at least one user or conversation", ErrValidation)
	}

	direct, err := s.resolver.EnsureDirect(ctx, in.SenderID, models.NormalizeUserIDs(in.UserIDs))
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(direct)+len(in.ConversationIDs))
	seen := map[string]struct{}{}
	for _, id := range append(append([]string{}, in.ConversationIDs...), direct...) {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}

	sent := make([]models.Message, 0, len(targets))
	var errs []error
	for _, conversationID := range targets {
		msg, err := s.Send(ctx, SendInput{
			SenderID:       in.SenderID,
			ConversationID: conversationID,
			Content:        in.Content,
			Type:           models.MessageTypeTweetShare,
			TweetID:        in.TweetID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("conversation %s: %w", conversationID, err))
			continue
		}
		sent = append(sent, msg)
	}
	return sent, errors.Join(errs...)
}

// Read records a read receipt once and publishes readMessage to the
// conversation room. Repeated reads are no-ops.
func (s *MessagingService) Read(ctx context.Context, userID, messageID string) (models.Message, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.requireParticipant(ctx, msg.ConversationID, userID); err != nil {
		return models.Message{}, err
	}
	if msg.IsReadBy(userID) {
		return msg, nil
	}

	updated, err := s.messages.AppendReadBy(ctx, messageID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return models.Message{}, fmt.Errorf("%w: message", ErrNotFound)
		}
		return models.Message{}, err
	}
	s.rooms.Publish(models.ConversationRoom(updated.ConversationID), models.EventReadMessage, updated)
	return updated, nil
}

// Hide removes a message from userID's view only.
func (s *MessagingService) Hide(ctx context.Context, userID, messageID string) error {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, msg.ConversationID, userID); err != nil {
		return err
	}
	if msg.IsRemovedBy(userID) {
		return fmt.Errorf("%w: message already removed", ErrConflict)
	}
	if err := s.messages.AppendRemovedBy(ctx, messageID, userID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return fmt.Errorf("%w: message", ErrNotFound)
		}
		return err
	}
	return nil
}

// Leave marks userID as having left. The conversation is deleted once no
// active participant remains.
func (s *MessagingService) Leave(ctx context.Context, userID, conversationID string) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	p, ok := conv.Participant(userID)
	if !ok || p.HasLeft {
		return fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	p.HasLeft = true

	if !conv.AllLeft() {
		return s.conversations.Save(ctx, conv)
	}
	if err := s.conversations.Delete(ctx, conv.ID); err != nil && !errors.Is(err, repositories.ErrConversationNotFound) {
		return err
	}
	if conv.ChatImage != nil {
		s.deleteMedia(ctx, *conv.ChatImage)
	}
	s.log.Info("conversation deleted after last participant left", zap.String("conversation_id", conv.ID))
	return nil
}

// SetPinned sets userID's pin flag to pinned.
func (s *MessagingService) SetPinned(ctx context.Context, userID, conversationID string, pinned bool) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	p, ok := conv.Participant(userID)
	if !ok || p.HasLeft {
		return fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	if p.IsPinned == pinned {
		return nil
	}
	p.IsPinned = pinned
	return s.conversations.Save(ctx, conv)
}

// AddMembers adds users to a group conversation, reactivating entries of
// users who had left instead of duplicating them.
func (s *MessagingService) AddMembers(ctx context.Context, requesterID, conversationID string, userIDs []string) (models.Conversation, error) {
	ids := models.NormalizeUserIDs(userIDs)
	if len(ids) == 0 {
		return models.Conversation{}, fmt.Errorf("%w: user ids are required", ErrValidation)
	}

	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.IsActive(requesterID) {
		return models.Conversation{}, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	if !conv.IsGroupChat {
		return models.Conversation{}, fmt.Errorf("%w: members can only be added to group chats", ErrForbidden)
	}
	if err := s.resolver.ensureUsersExist(ctx, ids); err != nil {
		return models.Conversation{}, err
	}

	for _, id := range ids {
		if p, ok := conv.Participant(id); ok {
			p.HasLeft = false
			continue
		}
		conv.Participants = append(conv.Participants, models.Participant{UserID: id})
	}
	conv.ParticipantKey = models.ParticipantKey(conv.UserIDs())

	if err := s.conversations.Save(ctx, conv); err != nil {
		if errors.Is(err, repositories.ErrDuplicateParticipantSet) {
			return models.Conversation{}, fmt.Errorf("%w: a conversation with these participants already exists", ErrConflict)
		}
		return models.Conversation{}, err
	}
	conv.Participants = conv.ActiveParticipants()
	return conv, nil
}

// EditGroupInput carries the group fields to replace. Nil fields are kept.
type EditGroupInput struct {
	RequesterID    string
	ConversationID string
	Name           *string
	Image          *media.File
}

// EditGroup replaces the group name and image. The previous image is removed
// only after the conversation references the new one.
func (s *MessagingService) EditGroup(ctx context.Context, in EditGroupInput) (models.Conversation, error) {
	if in.Name == nil && in.Image == nil {
		return models.Conversation{}, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	var name string
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		if n := utf8.RuneCountInString(name); n == 0 || n > maxChatNameLength {
			return models.Conversation{}, fmt.Errorf("%w: chat name must be 1-%d characters", ErrValidation, maxChatNameLength)
		}
	}

	conv, err := s.getConversation(ctx, in.ConversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.IsActive(in.RequesterID) {
		return models.Conversation{}, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	if !conv.IsGroupChat {
		return models.Conversation{}, fmt.Errorf("%w: only group chats can be edited", ErrForbidden)
	}

	if in.Name != nil {
		conv.ChatName = &name
	}
	var previous *string
	var uploaded *media.Stored
	if in.Image != nil {
		stored, err := s.saveUpload(ctx, chatImageFolder, *in.Image)
		if err != nil {
			return models.Conversation{}, err
		}
		uploaded = &stored
		previous = conv.ChatImage
		conv.ChatImage = &stored.URL
	}

	if err := s.conversations.Save(ctx, conv); err != nil {
		if uploaded != nil {
			s.deleteMedia(ctx, uploaded.URL)
		}
		return models.Conversation{}, err
	}
	if previous != nil && *previous != "" {
		s.deleteMedia(ctx, *previous)
	}
	conv.Participants = conv.ActiveParticipants()
	return conv, nil
}

// ListConversations returns the hydrated conversations userID is active in.
func (s *MessagingService) ListConversations(ctx context.Context, userID string) ([]models.ConversationWithParticipants, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []models.ConversationWithParticipants{}
	}
	return convs, nil
}

// GetConversation returns one hydrated conversation userID is active in.
func (s *MessagingService) GetConversation(ctx context.Context, userID, conversationID string) (models.ConversationWithParticipants, error) {
	if err := s.requireActive(ctx, conversationID, userID); err != nil {
		return models.ConversationWithParticipants{}, err
	}
	conv, err := s.conversations.GetWithParticipants(ctx, conversationID)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return models.ConversationWithParticipants{}, fmt.Errorf("%w: conversation", ErrNotFound)
	}
	return conv, err
}

// ListMessages returns a page of history newest first, without messages
// userID hid.
func (s *MessagingService) ListMessages(ctx context.Context, userID, conversationID string, req pagination.Request) (pagination.Page[models.MessageWithSender], error) {
	if err := s.requireActive(ctx, conversationID, userID); err != nil {
		return pagination.Page[models.MessageWithSender]{}, err
	}
	msgs, total, err := s.messages.ListForUser(ctx, conversationID, userID, req.Offset(), req.Limit)
	if err != nil {
		return pagination.Page[models.MessageWithSender]{}, err
	}
	return pagination.NewPage(req, total, msgs), nil
}

func (s *MessagingService) requireActive(ctx context.Context, conversationID, userID string) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsActive(userID) {
		return fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	return nil
}

func (s *MessagingService) requireParticipant(ctx context.Context, conversationID, userID string) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if _, ok := conv.Participant(userID); !ok {
		return fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	return nil
}

func (s *MessagingService) getConversation(ctx context.Context, id string) (models.Conversation, error) {
	conv, err := s.conversations.Get(ctx, id)
	if errors.Is(err, repositories.ErrConversationNotFound) {
		return models.Conversation{}, fmt.Errorf("%w: conversation", ErrNotFound)
	}
	return conv, err
}

func (s *MessagingService) getMessage(ctx context.Context, id string) (models.Message, error) {
	msg, err := s.messages.Get(ctx, id)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, fmt.Errorf("%w: message", ErrNotFound)
	}
	return msg, err
}

func (s *MessagingService) saveUpload(ctx context.Context, folder string, f media.File) (media.Stored, error) {
	stored, err := s.media.Save(ctx, folder, f)
	if errors.Is(err, media.ErrUnsupportedType) || errors.Is(err, media.ErrTooLarge) {
		return media.Stored{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err != nil {
		return media.Stored{}, fmt.Errorf("upload media: %w", err)
	}
	return stored, nil
}

func (s *MessagingService) deleteMedia(ctx context.Context, url string) {
	if err := s.media.Delete(ctx, url); err != nil {
		s.log.Warn("failed to delete media", zap.String("url", url), zap.Error(err))
	}
}
