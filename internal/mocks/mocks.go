package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"social-chat-service/internal/models"
	"social-chat-service/internal/pagination"
	"social-chat-service/internal/service"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) CreateConversation(ctx context.Context, requesterID string, targetIDs []string, chatName string) (models.Conversation, error) {
	args := m.Called(ctx, requesterID, targetIDs, chatName)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ChatServiceMock) ListConversations(ctx context.Context, userID string) ([]models.ConversationWithParticipants, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationWithParticipants
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationWithParticipants)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) GetConversation(ctx context.Context, userID, conversationID string) (models.ConversationWithParticipants, error) {
	args := m.Called(ctx, userID, conversationID)
	var conv models.ConversationWithParticipants
	if val := args.Get(0); val != nil {
		conv = val.(models.ConversationWithParticipants)
	}
	return conv, args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, userID, conversationID string, req pagination.Request) (pagination.Page[models.MessageWithSender], error) {
	args := m.Called(ctx, userID, conversationID, req)
	var page pagination.Page[models.MessageWithSender]
	if val := args.Get(0); val != nil {
		page = val.(pagination.Page[models.MessageWithSender])
	}
	return page, args.Error(1)
}

func (m *ChatServiceMock) SetPinned(ctx context.Context, userID, conversationID string, pinned bool) error {
	args := m.Called(ctx, userID, conversationID, pinned)
	return args.Error(0)
}

func (m *ChatServiceMock) Read(ctx context.Context, userID, messageID string) (models.Message, error) {
	args := m.Called(ctx, userID, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) EditGroup(ctx context.Context, in service.EditGroupInput) (models.Conversation, error) {
	args := m.Called(ctx, in)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ChatServiceMock) AddMembers(ctx context.Context, requesterID, conversationID string, userIDs []string) (models.Conversation, error) {
	args := m.Called(ctx, requesterID, conversationID, userIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ChatServiceMock) Send(ctx context.Context, in service.SendInput) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) SendTweet(ctx context.Context, in service.SendTweetInput) ([]models.Message, error) {
	args := m.Called(ctx, in)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) Hide(ctx context.Context, userID, messageID string) error {
	args := m.Called(ctx, userID, messageID)
	return args.Error(0)
}

func (m *ChatServiceMock) Leave(ctx context.Context, userID, conversationID string) error {
	args := m.Called(ctx, userID, conversationID)
	return args.Error(0)
}

type NotificationServiceMock struct {
	mock.Mock
}

func (m *NotificationServiceMock) List(ctx context.Context, receiverID string, req pagination.Request) (pagination.Page[models.NotificationWithSender], error) {
	args := m.Called(ctx, receiverID, req)
	var page pagination.Page[models.NotificationWithSender]
	if val := args.Get(0); val != nil {
		page = val.(pagination.Page[models.NotificationWithSender])
	}
	return page, args.Error(1)
}

func (m *NotificationServiceMock) CountUnread(ctx context.Context, receiverID string) (int, error) {
	args := m.Called(ctx, receiverID)
	return args.Int(0), args.Error(1)
}

func (m *NotificationServiceMock) MarkRead(ctx context.Context, receiverID, id string) (models.Notification, error) {
	args := m.Called(ctx, receiverID, id)
	var n models.Notification
	if val := args.Get(0); val != nil {
		n = val.(models.Notification)
	}
	return n, args.Error(1)
}
