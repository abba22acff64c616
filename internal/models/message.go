package models

import "time"

// MessageType discriminates plain messages, replies and shared tweets.
type MessageType string

const (
	MessageTypeMessage    MessageType = "message"
	MessageTypeReply      MessageType = "reply"
	MessageTypeTweetShare MessageType = "tweet-share"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeMessage, MessageTypeReply, MessageTypeTweetShare:
		return true
	}
	return false
}

// Media is an attachment stored by the media collaborator.
type Media struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Message is a chat message. Only ReadBy and RemovedBy change after creation,
// and both only grow.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        *string     `json:"content,omitempty"`
	Media          *Media      `json:"media,omitempty"`
	Type           MessageType `json:"type"`
	ReplyTo        *string     `json:"reply_to,omitempty"`
	TweetID        *string     `json:"tweet_id,omitempty"`
	ReadBy         []string    `json:"read_by"`
	RemovedBy      []string    `json:"removed_by"`
	CreatedAt      time.Time   `json:"created_at"`
}

// IsReadBy reports whether userID already has a read receipt.
func (m *Message) IsReadBy(userID string) bool {
	return contains(m.ReadBy, userID)
}

// IsRemovedBy reports whether userID hid the message from their view.
func (m *Message) IsRemovedBy(userID string) bool {
	return contains(m.RemovedBy, userID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// MessageWithSender is a message hydrated with its sender profile.
type MessageWithSender struct {
	Message
	Sender *User `json:"sender,omitempty"`
}
