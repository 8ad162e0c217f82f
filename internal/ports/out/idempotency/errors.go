package idempotency

import "errors"

var (
	// ErrNotFound indicates no record exists for the key.
	ErrNotFound = errors.New("idempotency key not found")

	// ErrConflict indicates another execution currently holds the record's lock, or has
	// advanced the record past the caller's snapshot. Callers should retry later.
	ErrConflict = errors.New("idempotency key is locked by another request")

	// ErrKeyReuseMismatch indicates the key was first used by a different request.
	ErrKeyReuseMismatch = errors.New("idempotency key reused with a different request")
)
