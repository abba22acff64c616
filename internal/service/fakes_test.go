package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"social-chat-service/internal/media"
	"social-chat-service/internal/models"
	"social-chat-service/internal/repositories"
)

type memStore struct {
	mu            sync.Mutex
	users         map[string]models.User
	conversations map[string]models.Conversation
	messages      map[string]models.Message
	order         []string
	seq           int
	saves         int
	beforeCreate  func()
}

func newMemStore(userIDs ...string) *memStore {
	s := &memStore{
		users:         map[string]models.User{},
		conversations: map[string]models.Conversation{},
		messages:      map[string]models.Message{},
	}
	for _, id := range userIDs {
		s.users[id] = models.User{ID: id, Username: id}
	}
	return s
}

func cloneConv(c models.Conversation) models.Conversation {
	c.Participants = append([]models.Participant(nil), c.Participants...)
	return c
}

func cloneMsg(m models.Message) models.Message {
	m.ReadBy = append([]string{}, m.ReadBy...)
	m.RemovedBy = append([]string{}, m.RemovedBy...)
	return m
}

func (s *memStore) ListByIDs(_ context.Context, ids []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) FindByParticipantKey(_ context.Context, key string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ParticipantKey == key {
			return cloneConv(c), nil
		}
	}
	return models.Conversation{}, repositories.ErrConversationNotFound
}

func (s *memStore) Get(_ context.Context, id string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	return cloneConv(c), nil
}

func (s *memStore) keyTaken(key, except string) bool {
	for id, c := range s.conversations {
		if id != except && c.ParticipantKey == key {
			return true
		}
	}
	return false
}

func (s *memStore) Create(_ context.Context, conv models.Conversation) error {
	if hook := s.beforeCreate; hook != nil {
		s.beforeCreate = nil
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyTaken(conv.ParticipantKey, "") {
		return repositories.ErrDuplicateParticipantSet
	}
	s.conversations[conv.ID] = cloneConv(conv)
	return nil
}

func (s *memStore) Save(_ context.Context, conv models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.conversations[conv.ID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	if s.keyTaken(conv.ParticipantKey, conv.ID) {
		return repositories.ErrDuplicateParticipantSet
	}
	conv.LastMessageID = existing.LastMessageID
	s.conversations[conv.ID] = cloneConv(conv)
	s.saves++
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return repositories.ErrConversationNotFound
	}
	delete(s.conversations, id)
	return nil
}

func (s *memStore) SetLastMessage(_ context.Context, conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return repositories.ErrConversationNotFound
	}
	c.LastMessageID = &messageID
	s.conversations[conversationID] = c
	return nil
}

func (s *memStore) ListActiveIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, c := range s.conversations {
		if c.IsActive(userID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) hydrate(c models.Conversation) models.ConversationWithParticipants {
	out := models.ConversationWithParticipants{
		ID:          c.ID,
		IsGroupChat: c.IsGroupChat,
		ChatName:    c.ChatName,
		ChatImage:   c.ChatImage,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	for _, p := range c.ActiveParticipants() {
		u := s.users[p.UserID]
		out.Participants = append(out.Participants, models.ParticipantWithUser{Participant: p, User: &u})
	}
	if c.LastMessageID != nil {
		if m, ok := s.messages[*c.LastMessageID]; ok {
			out.LastMessage = &m
		}
	}
	return out
}

func (s *memStore) ListForUser(_ context.Context, userID string) ([]models.ConversationWithParticipants, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConversationWithParticipants
	for _, c := range s.conversations {
		if c.IsActive(userID) {
			out = append(out, s.hydrate(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetWithParticipants(_ context.Context, id string) (models.ConversationWithParticipants, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return models.ConversationWithParticipants{}, repositories.ErrConversationNotFound
	}
	return s.hydrate(c), nil
}

// messageRepo shares memStore state but exposes the MessageRepository method set.
type messageRepo struct{ *memStore }

func (r messageRepo) Create(_ context.Context, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ID] = cloneMsg(msg)
	r.order = append(r.order, msg.ID)
	return nil
}

func (r messageRepo) Get(_ context.Context, id string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return cloneMsg(m), nil
}

func (r messageRepo) AppendReadBy(_ context.Context, id, userID string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	if !m.IsReadBy(userID) {
		m.ReadBy = append(m.ReadBy, userID)
	}
	r.messages[id] = m
	return cloneMsg(m), nil
}

func (r messageRepo) AppendRemovedBy(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	if !m.IsRemovedBy(userID) {
		m.RemovedBy = append(m.RemovedBy, userID)
	}
	r.messages[id] = m
	return nil
}

func (r messageRepo) ListForUser(_ context.Context, conversationID, userID string, offset, limit int) ([]models.MessageWithSender, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var visible []models.MessageWithSender
	for i := len(r.order) - 1; i >= 0; i-- {
		m := r.messages[r.order[i]]
		if m.ConversationID != conversationID || m.IsRemovedBy(userID) {
			continue
		}
		u := r.users[m.SenderID]
		visible = append(visible, models.MessageWithSender{Message: m, Sender: &u})
	}
	total := len(visible)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return visible[offset:end], total, nil
}

type published struct {
	Room    string
	Event   string
	Payload any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBroadcaster) Publish(room, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{Room: room, Event: event, Payload: payload})
}

func (b *recordingBroadcaster) all() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.events...)
}

type fakeMedia struct {
	mu      sync.Mutex
	saved   []string
	deleted []string
	saveErr error
}

func (m *fakeMedia) Save(_ context.Context, folder string, f media.File) (media.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return media.Stored{}, m.saveErr
	}
	url := fmt.Sprintf("http://media.test/%s/%d-%s", folder, len(m.saved), f.Name)
	m.saved = append(m.saved, url)
	return media.Stored{URL: url, Type: "image/png"}, nil
}

func (m *fakeMedia) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	return nil
}
