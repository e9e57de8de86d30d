package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("key not found")

	// ErrClosed is returned by a backend after Close.
	ErrClosed = errors.New("backend closed")
)
