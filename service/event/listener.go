package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/viant/agentpay/service/messaging"
)

// Handler consumes events delivered to one subscriber.
type Handler func(*Event)

// listener drains one subscriber queue.
type listener struct {
	name    string
	queue   messaging.Queue[Event]
	handler Handler
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

func (l *listener) start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go func() {
		defer close(l.done)
		for {
			msg, err := l.queue.Consume(ctx)
			if err != nil {
				if errors.Is(err, messaging.ErrQueueClosed) || ctx.Err() != nil {
					return
				}
				l.logger.Warn("event consume failed", "subscriber", l.name, "error", err)
				continue
			}
			l.deliver(msg.T())
		}
	}()
}

func (l *listener) deliver(e *Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event handler panicked", "subscriber", l.name, "event", e.Type, "panic", fmt.Sprint(r))
		}
	}()
	l.handler(e)
}

// stop closes the queue and waits for pending deliveries.
func (l *listener) stop() {
	_ = l.queue.Close()
	<-l.done
	l.cancel()
}
