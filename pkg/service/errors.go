package service

import "errors"

// Predefined errors for the service package.
var (
	// ErrInvalidInput indicates a missing required identifier at the service
	// boundary. The only business condition that surfaces as an error.
	ErrInvalidInput = errors.New("missing required evaluation input")

	// ErrStoreUnavailable wraps rule store failures on the flag listing path.
	ErrStoreUnavailable = errors.New("rule store unavailable")
)
