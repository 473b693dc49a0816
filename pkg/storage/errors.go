package storage

import "errors"

var (
	// ErrTraceNotFound is returned when no trace was persisted for a transaction.
	ErrTraceNotFound = errors.New("trace not found")

	// ErrInvalidHash is returned for anything that is not a 32 byte hex hash.
	ErrInvalidHash = errors.New("invalid transaction hash")
)
