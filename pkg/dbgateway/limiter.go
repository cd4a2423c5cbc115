package dbgateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/constant"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ConnectionLimiter bounds the number of in-flight gateway calls. Acquire
// blocks cooperatively until a slot frees up or the acquire timeout elapses.
// Every successful Acquire must be paired with exactly one Release on every
// exit path; a leaked slot permanently shrinks capacity.
type ConnectionLimiter struct {
	sem            *semaphore.Weighted
	max            int64
	acquireTimeout time.Duration
	logger         *zap.SugaredLogger

	active      atomic.Int64
	exhaustions atomic.Int64

	// warned latches the high-utilization warning so it fires once per
	// threshold crossing rather than on every call above it.
	warned atomic.Bool
}

// NewConnectionLimiter creates a limiter admitting up to max concurrent calls.
func NewConnectionLimiter(max int, acquireTimeout time.Duration, logger *zap.SugaredLogger) *ConnectionLimiter {
	return &ConnectionLimiter{
		sem:            semaphore.NewWeighted(int64(max)),
		max:            int64(max),
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

// Acquire claims a connection slot, waiting up to the acquire timeout. It
// returns PoolExhaustedError when no slot frees up in time, or the context's
// error when the caller cancels while waiting.
func (l *ConnectionLimiter) Acquire(ctx context.Context) error {
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, l.acquireTimeout)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.exhaustions.Add(1)
		l.logger.Errorw("connection pool exhausted",
			"active", l.active.Load(),
			"max", l.max,
			"waited", time.Since(start),
		)

		return &PoolExhaustedError{Active: l.active.Load(), Max: l.max, Waited: time.Since(start)}
	}

	active := l.active.Add(1)
	if float64(active) >= constant.PoolWarnUtilization*float64(l.max) {
		if l.warned.CompareAndSwap(false, true) {
			l.logger.Warnw("connection pool utilization high",
				"active", active,
				"max", l.max,
				"utilization", float64(active)/float64(l.max),
			)
		}
	}

	return nil
}

// Release returns a slot to the pool. It must be called exactly once per
// successful Acquire.
func (l *ConnectionLimiter) Release() {
	active := l.active.Add(-1)

	if float64(active) < constant.PoolWarnUtilization*float64(l.max) {
		l.warned.CompareAndSwap(true, false)
	}

	l.sem.Release(1)
}

// Active returns the number of currently held slots.
func (l *ConnectionLimiter) Active() int64 {
	return l.active.Load()
}

// Max returns the pool capacity.
func (l *ConnectionLimiter) Max() int64 {
	return l.max
}

// Utilization returns the fraction of slots currently held, in [0, 1].
func (l *ConnectionLimiter) Utilization() float64 {
	return float64(l.active.Load()) / float64(l.max)
}

// Exhaustions returns how many acquires failed because the pool was full.
func (l *ConnectionLimiter) Exhaustions() int64 {
	return l.exhaustions.Load()
}
