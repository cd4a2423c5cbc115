package constant

import "time"

// Circuit Breaker Configuration
const (
	// DefaultBreakerFailureThreshold is the number of consecutive qualifying
	// failures that opens a circuit for an operation class.
	DefaultBreakerFailureThreshold = 5

	// DefaultBreakerRecoveryWindow is how long an open circuit rejects calls
	// before a half-open trial is allowed through.
	DefaultBreakerRecoveryWindow = 60 * time.Second

	// CircuitBreakerMaxRequests is the number of trial requests allowed while
	// a circuit is half-open.
	CircuitBreakerMaxRequests = 1
)

// Circuit breaker state names as reported on the health surface.
const (
	CircuitBreakerStateClosed   = "closed"
	CircuitBreakerStateOpen     = "open"
	CircuitBreakerStateHalfOpen = "half_open"
)
