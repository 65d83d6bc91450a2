package queue

import (
	"context"
	"errors"
)

// ErrEmpty is returned by Get when no message is waiting. The intake loop
// treats it as a signal to back off, not an error.
var ErrEmpty = errors.New("queue empty")

// Message is one at-least-once delivery. Exactly one of Ack/Nack must be
// called; Nack with requeue puts the message back in circulation.
type Message interface {
	Body() []byte
	Ack() error
	Nack(requeue bool) error
}

// Queue is a durable broker surface: publish, non-blocking consume, manual
// acknowledgement. Implementations: RabbitMQ for real deployments, Memory
// for tests.
type Queue interface {
	Publish(ctx context.Context, body []byte) error
	PublishTo(ctx context.Context, queueName string, body []byte) error
	Get(ctx context.Context) (Message, error)
	Close() error
}

// DeadLetterName is the terminal destination for envelopes that exhausted
// their retry budget.
func DeadLetterName(queueName string) string { return queueName + ".dead" }
