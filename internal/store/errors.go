package store

import "errors"

// Domain-specific errors for reading persistence.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrWriteFailed wraps any failure to persist a reading.
	ErrWriteFailed = errors.New("store: write failed")

	// ErrQueryFailed wraps any failure to read readings back.
	ErrQueryFailed = errors.New("store: query failed")

	// ErrConnectionFailed is returned when the backend cannot be reached at startup.
	ErrConnectionFailed = errors.New("store: connection failed")

	// ErrUnknownBackend is returned for an unsupported store.backend value.
	ErrUnknownBackend = errors.New("store: unknown backend")
)
