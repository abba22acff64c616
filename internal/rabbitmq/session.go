package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKind = "topic"

// session is one connection and channel with the durable exchange declared.
type session struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// dial connects and declares exchange. Each step in setup runs against the
// channel; the first failure tears the session down.
func dial(amqpURL, exchange string, setup ...func(*amqp.Channel) error) (*session, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	s := &session{conn: conn, ch: ch, exchange: exchange}

	steps := append([]func(*amqp.Channel) error{declareExchange(exchange)}, setup...)
	for _, step := range steps {
		if err := step(ch); err != nil {
			_ = s.close()
			return nil, err
		}
	}
	return s, nil
}

func declareExchange(name string) func(*amqp.Channel) error {
	return func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(name, exchangeKind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
		return nil
	}
}

func (s *session) close() error {
	if s == nil {
		return nil
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
