package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/viant/agentpay/internal/idgen"
	"github.com/viant/agentpay/service/messaging/memory"
)

// Service is an in-process Publisher. Every subscriber owns a bounded queue
// drained by its own goroutine; when a subscriber falls behind its events are
// dropped (at-most-once) without slowing the publisher or other subscribers.
type Service struct {
	mux         sync.RWMutex
	listeners   map[string]*listener
	queueConfig memory.Config
	logger      *slog.Logger
	ctx         context.Context
}

// New creates an event service
func New(opts ...Option) *Service {
	ret := &Service{
		listeners:   make(map[string]*listener),
		queueConfig: memory.DefaultConfig(),
		logger:      slog.Default(),
		ctx:         context.Background(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Subscribe registers handler and returns a function removing it. The name is
// informative only.
func (s *Service) Subscribe(name string, handler Handler) (unsubscribe func()) {
	l := &listener{
		name:    name,
		queue:   memory.NewQueue[Event](s.queueConfig),
		handler: handler,
		logger:  s.logger,
		done:    make(chan struct{}),
	}
	id := idgen.New()
	s.mux.Lock()
	s.listeners[id] = l
	s.mux.Unlock()
	l.start(s.ctx)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mux.Lock()
			delete(s.listeners, id)
			s.mux.Unlock()
			l.stop()
		})
	}
}

// Publish enqueues the event for every subscriber without blocking.
func (s *Service) Publish(_ context.Context, e *Event) {
	if e == nil {
		return
	}
	s.mux.RLock()
	defer s.mux.RUnlock()
	for _, l := range s.listeners {
		if err := l.queue.TryPublish(e); err != nil {
			s.logger.Warn("event dropped", "subscriber", l.name, "event", e.Type, "error", err)
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (s *Service) Subscribers() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return len(s.listeners)
}

// Close removes every subscriber after delivering queued events.
func (s *Service) Close() {
	s.mux.Lock()
	listeners := s.listeners
	s.listeners = make(map[string]*listener)
	s.mux.Unlock()
	for _, l := range listeners {
		l.stop()
	}
}

var _ Publisher = (*Service)(nil)
