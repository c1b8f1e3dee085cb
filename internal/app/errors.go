package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrInvalidInput marks requests the service refuses before touching storage.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotStarted is returned by operations that need the worker pool.
	ErrNotStarted = errors.New("service not started")
	// ErrInFlight is returned for a retry whose first attempt has not been stored yet.
	// It wraps repository.ErrConflict at the call site so clients may retry.
	ErrInFlight = errors.New("submission still in flight")
)
