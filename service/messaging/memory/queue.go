package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/viant/agentpay/service/messaging"
)

// Config for memory queue implementation
type Config struct {
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{QueueBuffer: 100}
}

// Message is a delivered payload.
type Message[T any] struct {
	payload T
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Queue implements a bounded in-memory messaging.Queue. Messages are delivered
// at most once; there is no redelivery.
type Queue[T any] struct {
	messages chan *Message[T]
	closed   chan struct{}
	once     sync.Once
	dropped  atomic.Int64
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		closed:   make(chan struct{}),
	}
}

// Publish adds a new item to the queue, waiting for room.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if q.isClosed() {
		return messaging.ErrQueueClosed
	}
	select {
	case q.messages <- &Message[T]{payload: *t}:
		return nil
	case <-q.closed:
		return messaging.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish adds a new item without blocking.
func (q *Queue[T]) TryPublish(t *T) error {
	if q.isClosed() {
		return messaging.ErrQueueClosed
	}
	select {
	case q.messages <- &Message[T]{payload: *t}:
		return nil
	default:
		q.dropped.Add(1)
		return messaging.ErrQueueFull
	}
}

// Consume retrieves a single item from the queue. Once the queue is closed
// and drained it returns ErrQueueClosed.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	default:
	}
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-q.closed:
		select {
		case msg := <-q.messages:
			return msg, nil
		default:
			return nil, messaging.ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the queue.
func (q *Queue[T]) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// Dropped returns how many messages TryPublish refused.
func (q *Queue[T]) Dropped() int64 {
	return q.dropped.Load()
}

func (q *Queue[T]) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
