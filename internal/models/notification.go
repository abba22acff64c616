package models

import "time"

// NotificationType enumerates the social events delivered to a user.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationRetweet NotificationType = "retweet"
	NotificationReply   NotificationType = "reply"
	NotificationFollow  NotificationType = "follow"
	NotificationQuote   NotificationType = "quote"
	NotificationTweet   NotificationType = "tweet"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationRetweet, NotificationReply, NotificationFollow, NotificationQuote, NotificationTweet:
		return true
	}
	return false
}

// Notification is a non-chat event addressed to a single receiver.
type Notification struct {
	ID         string           `db:"id" json:"id"`
	Type       NotificationType `db:"type" json:"type"`
	SenderID   string           `db:"sender_id" json:"sender_id"`
	ReceiverID string           `db:"receiver_id" json:"receiver_id"`
	TweetID    *string          `db:"tweet_id" json:"tweet_id,omitempty"`
	Read       bool             `db:"read" json:"read"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// NotificationWithSender is a notification hydrated with its sender profile.
type NotificationWithSender struct {
	Notification
	Sender *User `json:"sender,omitempty"`
}
