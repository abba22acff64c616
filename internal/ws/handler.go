package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/observability"
)

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Handler upgrades authenticated requests and hands the connection to the
// dispatcher.
type Handler struct {
	dispatcher *Dispatcher
	verifier   TokenVerifier
	upgrader   websocket.Upgrader
	sendBuffer int
	log        *logger.Logger
}

// NewHandler constructs a Handler.
func NewHandler(dispatcher *Dispatcher, verifier TokenVerifier, sendBuffer int, log *logger.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		verifier:   verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendBuffer: sendBuffer,
		log:        log.Named("ws"),
	}
}

// Handle authenticates the handshake, upgrades the connection and starts its
// pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("social-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := tokenFromRequest(c.Request)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.verifier.Verify(token)
	if err != nil || userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info, h.sendBuffer)
	h.dispatcher.Submit(Inbound{Event: EventConnect, Payload: client, ConnID: info.ConnID})

	observability.IncWSActive()
	observability.PublishWSEvent(ctx, "ws_connect", info.identity(), "")

	connCtx := context.WithoutCancel(ctx)
	go client.writePump(h.log)
	go func() {
		reason, abnormal := client.readPump(h.dispatcher.Submit)
		h.dispatcher.Submit(Inbound{Event: EventDisconnect, ConnID: info.ConnID})
		observability.DecWSActive()
		if abnormal {
			observability.PublishWSEvent(connCtx, "ws_error", info.identity(), reason)
		}
		observability.PublishWSEvent(connCtx, "ws_disconnect", info.identity(), reason)
	}()
}
