package ws

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/models"
	"social-chat-service/internal/repositories"
)

// Inbound event names.
const (
	EventConnect           = "connect"
	EventDisconnect        = "disconnect"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
)

const lookupTimeout = 5 * time.Second

// Inbound is one connection lifecycle or room request. Payload is the *Client
// for connect and the conversation id for join and leave requests.
type Inbound struct {
	Event   string
	Payload any
	ConnID  string
}

// MembershipStore answers which conversations a user is active in.
type MembershipStore interface {
	ListActiveIDs(ctx context.Context, userID string) ([]string, error)
	Get(ctx context.Context, id string) (models.Conversation, error)
}

// Dispatcher serializes every connection event through one goroutine and is
// the only writer of room membership.
type Dispatcher struct {
	hub     *Hub
	store   MembershipStore
	inbound chan Inbound
	done    chan struct{}
	clients map[string]*Client
	log     *logger.Logger
}

// NewDispatcher creates a dispatcher with an inbound queue of size buffer.
func NewDispatcher(hub *Hub, store MembershipStore, buffer int, log *logger.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		hub:     hub,
		store:   store,
		inbound: make(chan Inbound, buffer),
		done:    make(chan struct{}),
		clients: make(map[string]*Client),
		log:     log.Named("dispatcher"),
	}
}

// Submit queues ev for the dispatcher. Events submitted after Run returned
// are discarded.
func (d *Dispatcher) Submit(ev Inbound) {
	select {
	case d.inbound <- ev:
	case <-d.done:
	}
}

// Run consumes inbound events until ctx is cancelled, then closes every
// remaining connection.
func (d *Dispatcher) Run(ctx context.Context) {
	defer func() {
		close(d.done)
		d.closeAll()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.inbound:
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Inbound) {
	switch ev.Event {
	case EventConnect:
		c, ok := ev.Payload.(*Client)
		if !ok {
			d.log.Error("connect without client", zap.String("conn_id", ev.ConnID))
			return
		}
		d.connect(ctx, c)
	case EventDisconnect:
		d.disconnect(ev.ConnID)
	case EventJoinConversation:
		d.joinConversation(ctx, ev.ConnID, payloadString(ev.Payload))
	case EventLeaveConversation:
		d.leaveConversation(ev.ConnID, payloadString(ev.Payload))
	default:
		d.log.Debug("ignoring inbound event", zap.String("event", ev.Event), zap.String("conn_id", ev.ConnID))
	}
}

func (d *Dispatcher) connect(ctx context.Context, c *Client) {
	d.clients[c.ID()] = c
	d.hub.Join(models.UserRoom(c.UserID()), c)

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	ids, err := d.store.ListActiveIDs(lookupCtx, c.UserID())
	if err != nil {
		d.log.Error("load conversations for connection", zap.String("user_id", c.UserID()), zap.Error(err))
		return
	}
	for _, id := range ids {
		d.hub.Join(models.ConversationRoom(id), c)
	}
	d.log.Debug("client connected", zap.String("conn_id", c.ID()), zap.String("user_id", c.UserID()), zap.Int("conversations", len(ids)))
}

func (d *Dispatcher) disconnect(connID string) {
	c, ok := d.clients[connID]
	if !ok {
		return
	}
	delete(d.clients, connID)
	d.hub.LeaveAll(c)
	c.close()
}

func (d *Dispatcher) joinConversation(ctx context.Context, connID, conversationID string) {
	c, ok := d.clients[connID]
	if !ok || conversationID == "" {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	conv, err := d.store.Get(lookupCtx, conversationID)
	if err != nil {
		if !errors.Is(err, repositories.ErrConversationNotFound) {
			d.log.Error("load conversation for join", zap.String("conversation_id", conversationID), zap.Error(err))
		}
		return
	}
	if !conv.IsActive(c.UserID()) {
		d.log.Warn("join rejected, not an active participant",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", c.UserID()),
		)
		return
	}
	d.hub.Join(models.ConversationRoom(conversationID), c)
}

func (d *Dispatcher) leaveConversation(connID, conversationID string) {
	c, ok := d.clients[connID]
	if !ok || conversationID == "" {
		return
	}
	d.hub.Leave(models.ConversationRoom(conversationID), c)
}

func (d *Dispatcher) closeAll() {
	for id, c := range d.clients {
		d.hub.LeaveAll(c)
		c.close()
		delete(d.clients, id)
	}
}

func payloadString(p any) string {
	s, _ := p.(string)
	return s
}
