package dao

import "errors"

var (
	// ErrNotFound is returned by Load and Delete when no record carries the key.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID is returned when a record or lookup key is empty.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned when Save receives a nil pointer.
	ErrNilEntity = errors.New("dao: nil entity")
)
