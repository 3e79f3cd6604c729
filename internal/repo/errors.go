package repo

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an optimistic-concurrency write observed
	// a stale updated_at token.
	ErrConflict = errors.New("conflict")

	// ErrDuplicateKey is returned when an insert violates a uniqueness
	// constraint, e.g. a second idempotency record for the same key tuple.
	ErrDuplicateKey = errors.New("duplicate key")
)
