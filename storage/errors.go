package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when no proposal is stored under a key.
	ErrNotFound = errors.New("proposal not found")

	// ErrInvalidKey is returned when a location cannot be used as a KV key.
	ErrInvalidKey = errors.New("invalid index key")
)
