// Package agent holds the process wide agent configuration.
package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/internal/idgen"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/service/event"
)

// DefaultID identifies the single agent served by the process.
const DefaultID = "default"

// Store keeps an immutable configuration record. Readers get a lock-free
// snapshot; writers are serialised and swap in a whole new record.
type Store struct {
	current   atomic.Pointer[model.AgentConfig]
	mux       sync.Mutex
	publisher event.Publisher
}

// Option configures the store.
type Option func(s *Store)

// WithPublisher publishes config_updated after every update
func WithPublisher(publisher event.Publisher) Option {
	return func(s *Store) { s.publisher = publisher }
}

// New creates a store seeded with initial.
func New(initial *model.AgentConfig, opts ...Option) (*Store, error) {
	if initial == nil {
		return nil, fmt.Errorf("initial agent configuration was nil")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	cfg := initial.Clone()
	if cfg.ID == "" {
		cfg.ID = DefaultID
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = clock.Now()
	}
	ret := &Store{publisher: event.Nop()}
	for _, opt := range opts {
		opt(ret)
	}
	ret.current.Store(cfg)
	return ret, nil
}

// Snapshot returns the current record. Callers must not mutate it.
func (s *Store) Snapshot() *model.AgentConfig {
	return s.current.Load()
}

// Update applies patch to a copy of the current record and publishes it.
func (s *Store) Update(ctx context.Context, patch *model.ConfigPatch) (*model.AgentConfig, error) {
	s.mux.Lock()
	next := s.current.Load().Clone()
	patch.Apply(next)
	if err := next.Validate(); err != nil {
		s.mux.Unlock()
		return nil, err
	}
	next.Version++
	next.UpdatedAt = clock.Now()
	s.current.Store(next)
	s.mux.Unlock()

	s.publisher.Publish(ctx, &event.Event{
		ID:        idgen.New(),
		Type:      event.ConfigUpdated,
		CreatedAt: next.UpdatedAt,
		Config:    next.Clone(),
	})
	return next.Clone(), nil
}
