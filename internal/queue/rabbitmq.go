package queue

import (
	"context"
	"fmt"

	"github.com/baharkarakas/ledgerq/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Rabbit is a durable RabbitMQ-backed queue. Messages are persistent and
// fetched one at a time with manual acks, matching the sequential intake
// loop.
type Rabbit struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queueName string
}

func NewRabbit(url, queueName string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	// Declare the work queue and its dead-letter sibling up front so
	// publishes from either process never race the declaration.
	for _, name := range []string{queueName, DeadLetterName(queueName)} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare %s: %w", name, err)
		}
	}
	return &Rabbit{conn: conn, ch: ch, queueName: queueName}, nil
}

func (r *Rabbit) Publish(ctx context.Context, body []byte) error {
	return r.PublishTo(ctx, r.queueName, body)
}

func (r *Rabbit) PublishTo(ctx context.Context, queueName string, body []byte) error {
	err := r.ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	metrics.QueuePublished.WithLabelValues(queueName).Inc()
	return nil
}

func (r *Rabbit) Get(_ context.Context) (Message, error) {
	d, ok, err := r.ch.Get(r.queueName, false)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	if !ok {
		return nil, ErrEmpty
	}
	return &rabbitMessage{d: d}, nil
}

func (r *Rabbit) Close() error {
	if err := r.ch.Close(); err != nil {
		r.conn.Close()
		return err
	}
	return r.conn.Close()
}

type rabbitMessage struct{ d amqp.Delivery }

func (m *rabbitMessage) Body() []byte           { return m.d.Body }
func (m *rabbitMessage) Ack() error             { return m.d.Ack(false) }
func (m *rabbitMessage) Nack(requeue bool) error { return m.d.Nack(false, requeue) }
