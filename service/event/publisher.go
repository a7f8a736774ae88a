package event

import "context"

// Publisher fans lifecycle events out to observers. Publish is fire-and-forget:
// a failed delivery to one observer never affects others or the caller.
type Publisher interface {
	Publish(ctx context.Context, event *Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event *Event)

// Publish calls fn.
func (fn PublisherFunc) Publish(ctx context.Context, event *Event) { fn(ctx, event) }

type nop struct{}

func (nop) Publish(context.Context, *Event) {}

// Nop returns a publisher discarding every event.
func Nop() Publisher { return nop{} }
