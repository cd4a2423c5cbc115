package constant

import "time"

// Connection Pool Configuration
const (
	// DefaultMaxConnections bounds the number of in-flight gateway calls.
	DefaultMaxConnections = 20

	// DefaultAcquireTimeout is how long a call waits for a free pool slot
	// before failing with a pool exhaustion error.
	DefaultAcquireTimeout = 5 * time.Second

	// PoolWarnUtilization is the utilization ratio that triggers a one-time
	// warning per threshold crossing. Requests are still admitted above it.
	PoolWarnUtilization = 0.8
)
