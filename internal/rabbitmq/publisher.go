package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"social-chat-service/internal/logger"
)

// Publisher publishes JSON events to the topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// NewPublisher connects to the broker. When the url is empty or the broker is
// unreachable it returns a publisher that only logs, so the service still boots.
func NewPublisher(amqpURL, exchange string, log *logger.Logger) Publisher {
	log = log.Named("publisher")
	if amqpURL == "" {
		return newNoop("empty amqp url", log)
	}
	s, err := dial(amqpURL, exchange)
	if err != nil {
		return newNoop(err.Error(), log)
	}
	log.Info("rabbitmq connected", zap.String("exchange", exchange))
	return &amqpPublisher{session: s, log: log, now: time.Now}
}

type amqpPublisher struct {
	*session
	log *logger.Logger
	now func() time.Time
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Headers:      toTable(headers),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		p.log.Warn("rabbitmq publish failed", zap.String("routing_key", routingKey), zap.Error(err))
		return err
	}
	return nil
}

func (p *amqpPublisher) Close() error { return p.session.close() }

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	table := make(amqp.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}
	return table
}

type noopPublisher struct {
	reason string
	log    *logger.Logger
}

func newNoop(reason string, log *logger.Logger) noopPublisher {
	log.Warn("rabbitmq disabled, events are dropped", zap.String("reason", reason))
	return noopPublisher{reason: reason, log: log}
}

func (p noopPublisher) Publish(_ context.Context, routingKey string, _ any, headers map[string]string) error {
	p.log.Debug("rabbitmq noop publish", zap.String("routing_key", routingKey), zap.String("request_id", headers["x-request-id"]))
	return nil
}

func (noopPublisher) Close() error { return nil }

// PublisherMode is "amqp", "noop" or "unknown".
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why p fell back to noop, or is empty.
func PublisherNoopReason(p Publisher) string {
	if n, ok := p.(noopPublisher); ok {
		return n.reason
	}
	return ""
}
