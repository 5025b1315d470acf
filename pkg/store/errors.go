package store

import "errors"

// Predefined errors for the store package.
var (
	// ErrFlagNotFound indicates no flag exists for the application and key.
	ErrFlagNotFound = errors.New("flag not found")

	// ErrAppNotFound indicates no application matches the given credential.
	ErrAppNotFound = errors.New("application not found")

	// ErrQueryFailed wraps backend query failures.
	ErrQueryFailed = errors.New("rule store query failed")
)
