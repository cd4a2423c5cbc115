package constant

import "time"

// Per-operation-class base timeouts. The effective timeout is the base
// multiplied by the per-schema multiplier configured in Settings.
const (
	DefaultSimpleTimeout  = 10 * time.Second
	DefaultComplexTimeout = 30 * time.Second
	DefaultBatchTimeout   = 30 * time.Second
	DefaultVectorTimeout  = 60 * time.Second
)

// DefaultSlowCallThreshold is the elapsed time above which a call is logged
// as slow regardless of its outcome.
const DefaultSlowCallThreshold = 2 * time.Second
