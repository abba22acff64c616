package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection. All writes go through send so that a
// single goroutine owns the socket writer.
type Client struct {
	info      ConnInfo
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo, buffer int) *Client {
	if buffer <= 0 {
		buffer = 32
	}
	return &Client{info: info, conn: conn, send: make(chan []byte, buffer)}
}

// ID is the connection id.
func (c *Client) ID() string { return c.info.ConnID }

// UserID is the authenticated user owning the connection.
func (c *Client) UserID() string { return c.info.UserID }

func (c *Client) enqueue(body []byte) bool {
	select {
	case c.send <- body:
		return true
	default:
		return false
	}
}

// close stops the write pump. Callers must have removed c from the hub first.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

type clientFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// readPump forwards room requests to the dispatcher and reports the reason the
// connection ended.
func (c *Client) readPump(submit func(Inbound)) (reason string, abnormal bool) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			abnormal = websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			return err.Error(), abnormal
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Event {
		case EventJoinConversation, EventLeaveConversation:
			submit(Inbound{Event: frame.Event, ConnID: c.ID(), Payload: conversationIDFrom(frame.Payload)})
		}
	}
}

func (c *Client) writePump(log *logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case body, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				log.Warn("websocket write error", zap.String("conn_id", c.ID()), zap.Error(err))
				observability.PublishWSEvent(context.Background(), "ws_error", c.info.identity(), err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
