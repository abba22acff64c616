package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"social-chat-service/internal/logger"
)

// ErrMalformed marks a delivery that can never be processed. Such deliveries
// are rejected without requeue.
var ErrMalformed = errors.New("malformed delivery")

const prefetch = 16

// HandlerFunc processes one delivery body.
type HandlerFunc func(ctx context.Context, body []byte) error

// Acknowledger is the subset of amqp.Delivery the consumer settles with.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Consumer reads a durable queue bound to the topic exchange.
type Consumer struct {
	*session
	queue      string
	routingKey string
	log        *logger.Logger
}

// NewConsumer declares queue, binds it to routingKey on exchange and returns a
// consumer ready to Run.
func NewConsumer(amqpURL, exchange, queue, routingKey string, log *logger.Logger) (*Consumer, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	s, err := dial(amqpURL, exchange,
		func(ch *amqp.Channel) error {
			if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare queue %s: %w", queue, err)
			}
			return nil
		},
		func(ch *amqp.Channel) error {
			if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
				return fmt.Errorf("bind queue %s: %w", queue, err)
			}
			return nil
		},
		func(ch *amqp.Channel) error { return ch.Qos(prefetch, 0, false) },
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{session: s, queue: queue, routingKey: routingKey, log: log.Named("consumer")}, nil
}

// Run consumes until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.Info("consuming", zap.String("queue", c.queue), zap.String("routing_key", c.routingKey))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			Settle(ctx, c.log, &d, d.Body, handle)
		}
	}
}

// Settle runs handle for body and acknowledges the delivery: ack on success,
// reject malformed input, requeue anything else.
func Settle(ctx context.Context, log *logger.Logger, ack Acknowledger, body []byte, handle HandlerFunc) {
	err := handle(ctx, body)
	switch {
	case err == nil:
		_ = ack.Ack(false)
	case errors.Is(err, ErrMalformed):
		log.Warn("dropping malformed delivery", zap.Error(err))
		_ = ack.Nack(false, false)
	default:
		log.Error("delivery failed, requeueing", zap.Error(err))
		_ = ack.Nack(false, true)
	}
}

func (c *Consumer) Close() error { return c.session.close() }
