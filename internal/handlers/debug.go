package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-chat-service/internal/telemetry"
	"social-chat-service/internal/ws"
)

// RoomStats exposes the realtime registry snapshot.
type RoomStats interface {
	Stats() ws.Stats
}

// DebugDeps are the collaborators the debug routes inspect. Any may be zero.
type DebugDeps struct {
	Audit         *telemetry.AuditEmitter
	Rooms         RoomStats
	PublisherMode string
}

// RegisterDebugRoutes wires debug-only endpoints when enabled.
func RegisterDebugRoutes(router gin.IRouter, deps DebugDeps, enabled bool) {
	if !enabled {
		return
	}
	debug := router.Group("/debug")

	debug.GET("/audit-test", func(c *gin.Context) {
		if deps.Audit == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		audit(c, deps.Audit, "debug.audit_test", "audit test", nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	debug.GET("/realtime", func(c *gin.Context) {
		if deps.Rooms == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime registry not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"publisher": deps.PublisherMode,
			"hub":       deps.Rooms.Stats(),
		})
	})
}
