// Package idempotency rejects repeated submissions carrying the same
// client supplied idempotency key.
package idempotency

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/viant/agentpay/model"
)

// DefaultTTL is how long a key is remembered.
const DefaultTTL = 24 * time.Hour

// Guard remembers idempotency keys for a TTL.
type Guard struct {
	keys *cache.Cache
}

// New creates a guard; ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{keys: cache.New(ttl, 2*ttl)}
}

// Claim reserves key, failing with *model.DuplicateError when it was already
// claimed within the TTL. The returned release gives the key back, for a
// submission that never created its transaction. Empty keys are never
// deduplicated.
func (g *Guard) Claim(_ context.Context, key string) (release func(), err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return func() {}, nil
	}
	if err := g.keys.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return nil, &model.DuplicateError{Key: key}
	}
	return func() { g.Forget(key) }, nil
}

// Forget releases key so that it can be submitted again.
func (g *Guard) Forget(key string) {
	g.keys.Delete(strings.TrimSpace(key))
}

// Len returns the number of remembered keys.
func (g *Guard) Len() int {
	return g.keys.ItemCount()
}
