package constant

import "time"

// Gateway Retry Configuration
const (
	// DefaultMaxRetries is the total number of attempts for a remote call,
	// including the first one. Only transient failures are retried.
	DefaultMaxRetries = 3

	// DefaultBackoffBase is the delay before the first retry attempt.
	DefaultBackoffBase = 500 * time.Millisecond

	// DefaultBackoffFactor is the multiplier applied to the backoff on each
	// successive retry.
	DefaultBackoffFactor = 2.0

	// DefaultBackoffCap is the upper bound for the backoff delay.
	DefaultBackoffCap = 10 * time.Second

	// RetryJitterMax is the maximum random jitter added to backoff to prevent
	// thundering herd.
	RetryJitterMax = 250 * time.Millisecond
)
