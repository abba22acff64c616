package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/models"
	"social-chat-service/internal/observability"
)

// Hub is the room registry. It maps room ids to the clients joined to them
// and fans events out without ever blocking on a slow client.
type Hub struct {
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
	mu     sync.RWMutex
	log    *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
		log:    log.Named("hub"),
	}
}

// Join adds c to room. Joining twice is a no-op.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[string]struct{})
	}
	h.joined[c][room] = struct{}{}
}

// Leave removes c from room.
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, c)
}

// LeaveAll removes c from every room it joined.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.joined[c] {
		h.leaveLocked(room, c)
	}
	delete(h.joined, c)
}

func (h *Hub) leaveLocked(room string, c *Client) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, room)
	}
}

// Publish queues {event, payload} to every client in room. Clients whose
// buffer is full miss the event. Publishing to an empty room is a no-op.
func (h *Hub) Publish(room, event string, payload any) {
	body, err := json.Marshal(models.RealtimeEvent{Event: event, Payload: payload})
	if err != nil {
		h.log.Error("encode realtime event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[room]
	delivered, dropped := 0, 0
	for c := range members {
		if c.enqueue(body) {
			delivered++
			continue
		}
		dropped++
		h.log.Warn("client buffer full, dropping event",
			zap.String("room", room),
			zap.String("event", event),
			zap.String("conn_id", c.ID()),
		)
	}
	observability.ObserveRealtime(event, delivered, dropped)
}

// Members reports how many clients are in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms lists the rooms c has joined.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.joined[c]))
	for room := range h.joined[c] {
		rooms = append(rooms, room)
	}
	return rooms
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Clients int            `json:"clients"`
	Rooms   int            `json:"rooms"`
	Members map[string]int `json:"members"`
}

// Stats counts joined clients and room sizes.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Stats{Clients: len(h.joined), Rooms: len(h.rooms), Members: make(map[string]int, len(h.rooms))}
	for room, members := range h.rooms {
		s.Members[room] = len(members)
	}
	return s
}
