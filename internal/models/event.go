package models

// Realtime event names sent from server to client.
const (
	EventGetMessage      = "getMessage"
	EventReadMessage     = "readMessage"
	EventGetNotification = "getNotification"
)

// RealtimeEvent is the envelope written to websocket clients.
type RealtimeEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// UserRoom is the personal room of a user.
func UserRoom(userID string) string {
	return "user:" + userID
}

// ConversationRoom is the room of a conversation.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}
