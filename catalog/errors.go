package catalog

import "errors"

// Sentinel errors for catalog operations
var (
	// ErrNotFound indicates the referenced account or product does not exist
	ErrNotFound = errors.New("account or product not found")

	// ErrInvalidReference indicates an upsert referenced an unknown account
	ErrInvalidReference = errors.New("referenced account does not exist")

	// ErrConflictingState indicates an operation is illegal in the current
	// download state, e.g. removing a product while its download is in flight
	ErrConflictingState = errors.New("operation conflicts with current download state")
)
