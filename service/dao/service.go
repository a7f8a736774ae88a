package dao

import (
	"context"
)

// Service is a keyed record arena. Implementations must hand out copies so
// that callers never share mutable state with the store.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}

// Record is implemented by entities kept in the stores.
type Record interface {
	RecordID() string
	State() string
}
