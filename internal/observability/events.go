package observability

import (
	"context"
	"time"
)

const wsRoutingKey = "ws_events.realtime"

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// Publisher is the broker surface lifecycle events go through.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

// ConnIdentity describes who holds a websocket connection.
type ConnIdentity struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// PublishWSEvent counts a websocket lifecycle event and publishes it to the
// broker.
func PublishWSEvent(ctx context.Context, event string, id ConnIdentity, reason string) {
	IncWSEvent(event)
	duration := int64(0)
	if !id.ConnectedAt.IsZero() && event != "ws_connect" {
		duration = time.Since(id.ConnectedAt).Milliseconds()
	}
	_ = PublishEvent(ctx, wsRoutingKey, EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     id.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   id.UserID,
				"device_id": id.DeviceID,
				"ip":        id.IP,
			},
		},
	}, BuildHeaders(id.RequestID, id.TraceID))
}
