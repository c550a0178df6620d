package session

import "errors"

var (
	// ErrInvalidPartition indicates an empty partition key.
	ErrInvalidPartition = errors.New("invalid partition key")
	// ErrClosed indicates the manager has been shut down.
	ErrClosed = errors.New("session manager closed")
)
