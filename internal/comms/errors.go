package comms

import "errors"

// ErrorCategory drives retry and alert policy for a failed attempt.
type ErrorCategory string

const (
	CategoryTransient    ErrorCategory = "transient"
	CategoryRateLimit    ErrorCategory = "rate_limit"
	CategoryPermanent    ErrorCategory = "permanent"
	CategoryInvalidInput ErrorCategory = "invalid_input"
	CategoryAuthFailure  ErrorCategory = "auth_failure"
)

// Retryable reports whether failures of this category are retried with backoff.
func (c ErrorCategory) Retryable() bool {
	return c == CategoryTransient || c == CategoryRateLimit
}

var (
	ErrInvalidRequest  = errors.New("comms: invalid request")
	ErrPayloadMismatch = errors.New("comms: payload does not match message type")
)
