package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned for operations on a closed queue.
var ErrClosed = errors.New("queue: closed")

// Memory is an in-process Queue with the same deliver/ack/nack contract as
// the broker. Nack with requeue returns the message to the head so a
// contended message stays in circulation, matching broker redelivery.
// Publish and Get fail with ErrClosed once the queue is closed.
type Memory struct {
	mu     sync.Mutex
	queues map[string][][]byte
	name   string
	closed bool
}

func NewMemory(name string) *Memory {
	return &Memory{queues: map[string][][]byte{name: nil}, name: name}
}

func (q *Memory) Publish(_ context.Context, body []byte) error {
	return q.publishTo(q.name, body, false)
}

func (q *Memory) PublishTo(_ context.Context, queueName string, body []byte) error {
	return q.publishTo(queueName, body, false)
}

func (q *Memory) publishTo(queueName string, body []byte, front bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if front {
		q.queues[queueName] = append([][]byte{body}, q.queues[queueName]...)
	} else {
		q.queues[queueName] = append(q.queues[queueName], body)
	}
	return nil
}

func (q *Memory) Get(_ context.Context) (Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	pending := q.queues[q.name]
	if len(pending) == 0 {
		return nil, ErrEmpty
	}
	body := pending[0]
	q.queues[q.name] = pending[1:]
	return &memoryMessage{q: q, body: body}, nil
}

func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Len reports the depth of a named queue. Test helper.
func (q *Memory) Len(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[queueName])
}

// Peek copies the bodies waiting on a named queue without consuming them.
// Test helper.
func (q *Memory) Peek(queueName string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.queues[queueName]))
	for i, b := range q.queues[queueName] {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

type memoryMessage struct {
	q    *Memory
	body []byte
	done bool
}

func (m *memoryMessage) Body() []byte { return m.body }

func (m *memoryMessage) Ack() error {
	m.done = true
	return nil
}

func (m *memoryMessage) Nack(requeue bool) error {
	m.done = true
	if requeue {
		return m.q.publishTo(m.q.name, m.body, true)
	}
	return nil
}
