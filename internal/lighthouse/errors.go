package lighthouse

import "errors"

var (
	// ErrMalformedOperation is returned when the operation has no operation
	// definition or no field selection to route by.
	ErrMalformedOperation = errors.New("lighthouse: malformed operation")

	// ErrChannel wraps failures reported by the channel client.
	ErrChannel = errors.New("lighthouse: channel client failure")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("lighthouse: invalid configuration")
)
