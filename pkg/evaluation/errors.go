package evaluation

import "errors"

// Predefined errors for the evaluation package.
var (
	// ErrInvalidConditions indicates a conditions payload that could not be
	// parsed into a typed condition map.
	ErrInvalidConditions = errors.New("invalid rule conditions payload")

	// ErrInvalidRule indicates a rule that violates a structural invariant
	// (unknown type, percentage rule without a target percentage, ...).
	ErrInvalidRule = errors.New("invalid rule parameters")

	// ErrInvalidFlag indicates flag parameters that violate an invariant.
	ErrInvalidFlag = errors.New("invalid flag parameters")
)
