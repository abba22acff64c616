package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/media"
	"social-chat-service/internal/middleware"
	"social-chat-service/internal/models"
	"social-chat-service/internal/pagination"
	"social-chat-service/internal/service"
	"social-chat-service/internal/telemetry"
)

// ChatService is the messaging surface the chat endpoints call.
type ChatService interface {
	CreateConversation(ctx context.Context, requesterID string, targetIDs []string, chatName string) (models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.ConversationWithParticipants, error)
	GetConversation(ctx context.Context, userID, conversationID string) (models.ConversationWithParticipants, error)
	ListMessages(ctx context.Context, userID, conversationID string, req pagination.Request) (pagination.Page[models.MessageWithSender], error)
	SetPinned(ctx context.Context, userID, conversationID string, pinned bool) error
	Read(ctx context.Context, userID, messageID string) (models.Message, error)
	EditGroup(ctx context.Context, in service.EditGroupInput) (models.Conversation, error)
	AddMembers(ctx context.Context, requesterID, conversationID string, userIDs []string) (models.Conversation, error)
	Send(ctx context.Context, in service.SendInput) (models.Message, error)
	SendTweet(ctx context.Context, in service.SendTweetInput) ([]models.Message, error)
	Hide(ctx context.Context, userID, messageID string) error
	Leave(ctx context.Context, userID, conversationID string) error
}

// ChatHandler manages the /chat endpoints.
type ChatHandler struct {
	chats ChatService
	audit *telemetry.AuditEmitter
	log   *logger.Logger
}

// NewChatHandler builds a ChatHandler. audit may be nil.
func NewChatHandler(chats ChatService, audit *telemetry.AuditEmitter, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, audit: audit, log: log}
}

// Register mounts the chat routes on group.
func (h *ChatHandler) Register(group gin.IRouter) {
	group.GET("/get-chats", h.ListChats)
	group.GET("/get-chat/:id", h.GetChat)
	group.GET("/get-chat-messages/:id", h.GetChatMessages)
	group.PUT("/pin-conversation/:id", h.PinConversation)
	group.PUT("/unpin-conversation/:id", h.UnpinConversation)
	group.PUT("/read-message/:id", h.ReadMessage)
	group.PUT("/edit-group", h.EditGroup)
	group.PUT("/add-user-to-group/:id", h.AddUsersToGroup)
	group.POST("/send-message", h.SendMessage)
	group.POST("/send-tweet", h.SendTweet)
	group.DELETE("/delete-message/:id", h.DeleteMessage)
	group.DELETE("/delete-conversation/:id", h.DeleteConversation)
	group.POST("/create-conversation", h.CreateConversation)
}

// ListChats returns the caller's active conversations.
func (h *ChatHandler) ListChats(c *gin.Context) {
	convs, err := h.chats.ListConversations(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	conv, err := h.chats.GetConversation(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// GetChatMessages returns one page of history, newest first.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	req := pagination.Parse(c.Query("page"), c.Query("limit"))
	page, err := h.chats.ListMessages(c.Request.Context(), middleware.UserID(c), c.Param("id"), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ChatHandler) PinConversation(c *gin.Context) {
	h.setPinned(c, true, "Conversation pinned")
}

func (h *ChatHandler) UnpinConversation(c *gin.Context) {
	h.setPinned(c, false, "Conversation unpinned")
}

func (h *ChatHandler) setPinned(c *gin.Context, pinned bool, message string) {
	if err := h.chats.SetPinned(c.Request.Context(), middleware.UserID(c), c.Param("id"), pinned); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (h *ChatHandler) ReadMessage(c *gin.Context) {
	msg, err := h.chats.Read(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type editGroupRequest struct {
	ChatID   string  `json:"chatId" form:"chatId"`
	ChatName *string `json:"chatName" form:"chatName"`
}

// EditGroup accepts JSON or multipart with an optional chatImage file.
func (h *ChatHandler) EditGroup(c *gin.Context) {
	var req editGroupRequest
	in := service.EditGroupInput{RequesterID: middleware.UserID(c)}

	if isMultipart(c) {
		req.ChatID = c.PostForm("chatId")
		if name, ok := c.GetPostForm("chatName"); ok {
			req.ChatName = &name
		}
		file, closeFile, err := formFile(c, "chatImage")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer closeFile()
		in.Image = file
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.ChatID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatId is required"})
		return
	}
	in.ConversationID = req.ChatID
	in.Name = req.ChatName

	conv, err := h.chats.EditGroup(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	audit(c, h.audit, "group.edit", "group updated", map[string]string{"conversation_id": conv.ID})
	c.JSON(http.StatusOK, conv)
}

type userIDsRequest struct {
	UserIDs []string `json:"userIds" binding:"required"`
}

func (h *ChatHandler) AddUsersToGroup(c *gin.Context) {
	var req userIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.chats.AddMembers(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.UserIDs)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	audit(c, h.audit, "group.add_members", "members added", map[string]string{
		"conversation_id": conv.ID,
		"user_ids":        strings.Join(req.UserIDs, ","),
	})
	c.JSON(http.StatusOK, conv)
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId" form:"conversationId"`
	Content        string `json:"content" form:"content"`
	ReplyTo        string `json:"replyTo" form:"replyTo"`
	Type           string `json:"type" form:"type"`
	TweetID        string `json:"tweetId" form:"tweetId"`
}

// SendMessage accepts JSON or multipart with an optional media file.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	in := service.SendInput{SenderID: middleware.UserID(c)}

	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		file, closeFile, err := formFile(c, "media")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer closeFile()
		in.Upload = file
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.ConversationID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
		return
	}
	in.ConversationID = req.ConversationID
	in.Content = req.Content
	in.ReplyTo = req.ReplyTo
	in.Type = models.MessageType(req.Type)
	in.TweetID = req.TweetID

	msg, err := h.chats.Send(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type sendTweetRequest struct {
	TweetID         string   `json:"tweetId" binding:"required"`
	Content         string   `json:"content"`
	UserIDs         []string `json:"userIds"`
	ConversationIDs []string `json:"conversationIds"`
}

// SendTweet reports partial failures with 207 and the messages that went out.
func (h *ChatHandler) SendTweet(c *gin.Context) {
	var req sendTweetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sent, err := h.chats.SendTweet(c.Request.Context(), service.SendTweetInput{
		SenderID:        middleware.UserID(c),
		TweetID:         req.TweetID,
		Content:         req.Content,
		UserIDs:         req.UserIDs,
		ConversationIDs: req.ConversationIDs,
	})
	if err != nil && len(sent) == 0 {
		writeError(c, h.log, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusMultiStatus, gin.H{"messages": sent, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": sent})
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	if err := h.chats.Hide(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

// DeleteConversation removes the caller from the conversation.
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.chats.Leave(c.Request.Context(), middleware.UserID(c), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	audit(c, h.audit, "conversation.leave", "conversation left", map[string]string{"conversation_id": id})
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
}

type createConversationRequest struct {
	UserIDs  []string `json:"userIds" binding:"required"`
	ChatName string   `json:"chatName"`
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.chats.CreateConversation(c.Request.Context(), middleware.UserID(c), req.UserIDs, req.ChatName)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEMultipartPOSTForm
}

// formFile opens an optional upload. A missing field yields a nil file.
func formFile(c *gin.Context, field string) (*media.File, func(), error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, fmt.Errorf("invalid %s upload: %w", field, err)
	}
	f, err := header.Open()
	if err != nil {
		return nil, func() {}, fmt.Errorf("open %s upload: %w", field, err)
	}
	return &media.File{Name: header.Filename, Reader: f}, closer(f), nil
}

func closer(f multipart.File) func() {
	return func() { _ = f.Close() }
}
