package domain

import "errors"

var (
	// ErrInvalidPageRequest reports a page request that sets both or neither of
	// first/last, or a non-positive limit.
	ErrInvalidPageRequest = errors.New("first or last must be set, not both, and each must be > 0")
	// ErrInvalidCursor reports a malformed cursor token.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrStoreUnavailable wraps connection or operation failures of the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound reports a lookup that matched no record.
	ErrNotFound = errors.New("not found")
	// ErrClassifierFailure wraps enrichment service failures. It never leaves the pipeline.
	ErrClassifierFailure = errors.New("classifier failure")
	// ErrQueueFull is returned when the enrichment queue cannot accept a task.
	ErrQueueFull = errors.New("enrichment queue full")
)
