package rate

import "errors"

var (
	// ErrStoreUnavailable wraps any failure talking to the counter store.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	// ErrInvalidPolicy reports a policy with non-positive limits.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)
