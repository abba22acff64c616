package handlers

import (
	"github.com/gin-gonic/gin"

	"social-chat-service/internal/middleware"
	"social-chat-service/internal/observability"
	"social-chat-service/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := observability.RequestID(c.Request.Context()); id != "" {
		return id
	}
	return c.GetHeader("X-Request-Id")
}

func audit(c *gin.Context, emitter *telemetry.AuditEmitter, action, text string, fields map[string]string) {
	if emitter == nil {
		return
	}
	emitter.Emit(c.Request.Context(), telemetry.AuditEvent{
		Level:     "INFO",
		Action:    action,
		Text:      text,
		RequestID: requestIDFromContext(c),
		UserID:    middleware.UserID(c),
		Fields:    fields,
	})
}
