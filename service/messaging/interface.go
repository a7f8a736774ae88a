package messaging

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by TryPublish when the queue cannot accept a message.
var ErrQueueFull = errors.New("messaging: queue full")

// ErrQueueClosed is returned once a queue has been closed.
var ErrQueueClosed = errors.New("messaging: queue closed")

// Queue represents an abstract message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue, blocking while it is full
	Publish(ctx context.Context, t *T) error

	// TryPublish adds a message without blocking; it fails with ErrQueueFull
	TryPublish(t *T) error

	// Consume retrieves a single message from the queue
	Consume(ctx context.Context) (Message[T], error)

	// Close stops accepting messages; pending messages can still be consumed
	Close() error
}

// Message represents a message retrieved from a queue. Delivery is at most
// once: a consumed message is never redelivered, so there is nothing to
// acknowledge.
type Message[T any] interface {
	// T returns the payload of this message
	T() *T
}
