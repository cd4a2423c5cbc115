package dbgateway

import "time"

// HealthSnapshot is a point-in-time view of the client's state. It is a
// snapshot, not a stream: callers poll it.
type HealthSnapshot struct {
	TotalOperations     int64                     `json:"totalOperations"`
	FailedOperations    int64                     `json:"failedOperations"`
	ErrorRate           float64                   `json:"errorRate"`
	PoolActive          int64                     `json:"poolActive"`
	PoolMax             int64                     `json:"poolMax"`
	PoolUtilization     float64                   `json:"poolUtilization"`
	PoolExhaustions     int64                     `json:"poolExhaustions"`
	OpenCircuits        int                       `json:"openCircuits"`
	CircuitStates       map[OperationClass]string `json:"circuitStates"`
	RestrictedAvailable bool                      `json:"restrictedAvailable"`
	ElevatedAvailable   bool                      `json:"elevatedAvailable"`
	Timestamp           time.Time                 `json:"timestamp"`
}

// Health returns the current snapshot.
func (c *Client) Health() HealthSnapshot {
	total := c.totalOps.Load()
	failed := c.failedOps.Load()

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	return HealthSnapshot{
		TotalOperations:     total,
		FailedOperations:    failed,
		ErrorRate:           errorRate,
		PoolActive:          c.limiter.Active(),
		PoolMax:             c.limiter.Max(),
		PoolUtilization:     c.limiter.Utilization(),
		PoolExhaustions:     c.limiter.Exhaustions(),
		OpenCircuits:        c.breakers.OpenCount(),
		CircuitStates:       c.breakers.States(),
		RestrictedAvailable: c.restricted != nil,
		ElevatedAvailable:   c.elevated != nil,
		Timestamp:           time.Now().UTC(),
	}
}
