package store

import "errors"

var (
	// ErrNotFound is returned when no item exists at the requested key.
	ErrNotFound = errors.New("bloggy: item not found")

	// ErrDuplicateKey is returned when a create finds an item already stored at the primary key.
	ErrDuplicateKey = errors.New("bloggy: item already exists")

	// ErrConcurrentUpdate is returned when the stored version differs from the expected one.
	ErrConcurrentUpdate = errors.New("bloggy: item was modified concurrently")

	// ErrMalformedRecord is returned when a stored item does not match the expected shape.
	ErrMalformedRecord = errors.New("bloggy: malformed record")

	// ErrTooManyItems is returned when a write would exceed the transaction item limit.
	ErrTooManyItems = errors.New("bloggy: too many items in one transaction")

	// ErrUnprocessedItems is returned when a batch delete still has unprocessed items after all retries.
	ErrUnprocessedItems = errors.New("bloggy: batch items left unprocessed")
)
