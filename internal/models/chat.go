package models

import (
	"sort"
	"strings"
	"time"
)

// Participant is one user's membership entry in a conversation. Entries are
// never removed; leaving flips HasLeft so the user can rejoin with history.
type Participant struct {
	UserID   string `db:"user_id" json:"user_id"`
	HasLeft  bool   `db:"has_left" json:"has_left"`
	IsPinned bool   `db:"is_pinned" json:"is_pinned"`
}

// Conversation groups participants and their shared messages.
type Conversation struct {
	ID             string        `db:"id" json:"id"`
	ParticipantKey string        `db:"participant_key" json:"-"`
	Participants   []Participant `db:"-" json:"participants"`
	IsGroupChat    bool          `db:"is_group_chat" json:"is_group_chat"`
	ChatName       *string       `db:"chat_name" json:"chat_name,omitempty"`
	ChatImage      *string       `db:"chat_image" json:"chat_image,omitempty"`
	LastMessageID  *string       `db:"last_message_id" json:"last_message_id,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Participant returns the entry for userID, including entries that have left.
func (c *Conversation) Participant(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// IsActive reports whether userID is a participant that has not left.
func (c *Conversation) IsActive(userID string) bool {
	p, ok := c.Participant(userID)
	return ok && !p.HasLeft
}

// ActiveParticipants is the participant view exposed to clients.
func (c *Conversation) ActiveParticipants() []Participant {
	active := make([]Participant, 0, len(c.Participants))
	for _, p := range c.Participants {
		if !p.HasLeft {
			active = append(active, p)
		}
	}
	return active
}

// AllLeft reports whether no active participant remains.
func (c *Conversation) AllLeft() bool {
	for _, p := range c.Participants {
		if !p.HasLeft {
			return false
		}
	}
	return true
}

// UserIDs lists every participant id in insertion order.
func (c *Conversation) UserIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// ParticipantKey normalizes a participant identity set: deduplicated, sorted
// and comma joined. Two conversations never share a key.
func ParticipantKey(userIDs []string) string {
	return strings.Join(NormalizeUserIDs(userIDs), ",")
}

// NormalizeUserIDs deduplicates and sorts ids, dropping blanks.
func NormalizeUserIDs(userIDs []string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ParticipantWithUser is a participant entry hydrated with the user profile.
type ParticipantWithUser struct {
	Participant
	User *User `json:"user,omitempty"`
}

// ConversationWithParticipants is the hydrated conversation returned to clients.
// Participants only contains active entries.
type ConversationWithParticipants struct {
	ID           string                `json:"id"`
	Participants []ParticipantWithUser `json:"participants"`
	IsGroupChat  bool                  `json:"is_group_chat"`
	ChatName     *string               `json:"chat_name,omitempty"`
	ChatImage    *string               `json:"chat_image,omitempty"`
	LastMessage  *Message              `json:"last_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}
