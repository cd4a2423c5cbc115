package dbgateway

import (
	"context"
	"errors"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/constant"
)

// Action is one remote gateway call, executed under the deadline and identity
// the execution engine selects.
type Action func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error)

// Outcome labels recorded on the operations metric.
const (
	outcomeSuccess          = "success"
	outcomeCircuitOpen      = "circuit_open"
	outcomePoolExhausted    = "pool_exhausted"
	outcomeNoClient         = "no_client"
	outcomeTimeout          = "timeout"
	outcomeCanceled         = "canceled"
	outcomeNonTransient     = "non_transient"
	outcomeRetriesExhausted = "retries_exhausted"
)

// Execute wraps a remote call with the full resilience stack: timeout
// selection, circuit breaking, connection limiting, identity routing, retry
// with backoff and jitter, and metrics/log emission. Every exit path releases
// the connection slot and records the outcome before the error surfaces.
func (c *Client) Execute(ctx context.Context, class OperationClass, schema string, admin bool, action Action) (*QueryResult, error) {
	start := time.Now()
	timeout := c.settings.TimeoutFor(class, schema)

	retries := 0
	outcome := outcomeSuccess

	defer func() {
		elapsed := time.Since(start)

		c.totalOps.Add(1)
		if outcome != outcomeSuccess {
			c.failedOps.Add(1)
		}

		c.telemetry.recordOperation(ctx, class, outcome, elapsed, retries)

		switch {
		case elapsed > c.settings.SlowCallThreshold:
			c.logger.Warnw("slow gateway call",
				"class", class, "schema", schema, "outcome", outcome,
				"elapsed", elapsed, "retries", retries, "admin", admin,
			)
		case outcome != outcomeSuccess:
			c.logger.Errorw("gateway call failed",
				"class", class, "schema", schema, "outcome", outcome,
				"elapsed", elapsed, "retries", retries, "admin", admin,
			)
		default:
			c.logger.Debugw("gateway call",
				"class", class, "schema", schema,
				"elapsed", elapsed, "retries", retries,
			)
		}
	}()

	// Fast-fail while the circuit is open: no network call, no pool slot.
	if state := c.breakers.State(class); state == constant.CircuitBreakerStateOpen {
		outcome = outcomeCircuitOpen
		return nil, &CircuitOpenError{Operation: class, State: state}
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		var exhausted *PoolExhaustedError
		if errors.As(err, &exhausted) {
			outcome = outcomePoolExhausted
			c.telemetry.recordExhaustion(ctx)
		} else {
			outcome = outcomeCanceled
		}

		return nil, err
	}
	defer c.limiter.Release()

	handle, err := c.handleFor(admin)
	if err != nil {
		outcome = outcomeNoClient
		return nil, err
	}

	var lastErr error

	for attempt := 1; attempt <= c.retry.maxAttempts; attempt++ {
		settle, err := c.breakers.Allow(class)
		if err != nil {
			outcome = outcomeCircuitOpen
			return nil, err
		}

		result, err := c.runAttempt(ctx, class, timeout, handle, action)
		if err == nil {
			settle(true)
			return result, nil
		}

		// Caller cancellation: abandon promptly, never retry. Every granted
		// Allow must be settled, and an abandoned attempt settles as a
		// qualifying failure: the attempt produced no evidence the gateway is
		// healthy.
		if errors.Is(err, context.Canceled) {
			settle(false)
			outcome = outcomeCanceled

			return nil, err
		}

		// Timeouts qualify as systemic failures but are a give-up condition:
		// retrying would compound load on an already slow dependency.
		var timedOut *OperationTimeoutError
		if errors.As(err, &timedOut) {
			settle(false)
			outcome = outcomeTimeout

			return nil, err
		}

		if !isTransient(err) {
			// Data and programming errors never advance the breaker; the
			// gateway answered, it just refused the request.
			settle(true)
			outcome = outcomeNonTransient

			return nil, err
		}

		settle(false)

		lastErr = err

		if attempt == c.retry.maxAttempts {
			break
		}

		retries++

		delay := c.retry.delay(attempt)
		c.logger.Warnw("transient gateway failure, retrying",
			"class", class, "schema", schema,
			"attempt", attempt, "max_attempts", c.retry.maxAttempts,
			"backoff", delay, "error", err,
		)

		if err := sleepContext(ctx, delay); err != nil {
			outcome = outcomeCanceled
			return nil, err
		}
	}

	outcome = outcomeRetriesExhausted

	return nil, lastErr
}

// runAttempt executes one attempt under its own deadline, mapping a deadline
// hit onto OperationTimeoutError while keeping caller cancellation distinct.
func (c *Client) runAttempt(ctx context.Context, class OperationClass, timeout time.Duration, handle *ConnectionHandle, action Action) (*QueryResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := action(attemptCtx, handle)
	if err == nil {
		return result, nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		// The parent context being canceled takes precedence over the
		// attempt deadline.
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, context.Canceled
		}

		return nil, &OperationTimeoutError{Operation: class, Timeout: timeout}
	}

	return nil, err
}
