package dbgateway

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/constant"
)

// retryPolicy decides how long to wait before re-attempting a transient
// failure. Delays grow exponentially, are capped, and carry full jitter so
// concurrent callers do not retry in lockstep.
type retryPolicy struct {
	maxAttempts int
	base        time.Duration
	factor      float64
	cap         time.Duration
}

func newRetryPolicy(s *Settings) retryPolicy {
	return retryPolicy{
		maxAttempts: s.MaxRetries,
		base:        s.BackoffBase,
		factor:      s.BackoffFactor,
		cap:         s.BackoffCap,
	}
}

// delay returns the wait before retry number attempt (1 for the first retry).
// The deterministic part is base * factor^(attempt-1) capped at cap; a random
// jitter in [0, RetryJitterMax] is added on top.
func (p retryPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(p.base) * math.Pow(p.factor, float64(attempt-1)))
	if d <= 0 || d > p.cap {
		d = p.cap
	}

	return d + fullJitter(constant.RetryJitterMax)
}

// fullJitter returns a random duration in [0, max]. Uses crypto/rand for an
// unbiased distribution; falls back to max/2 if the source fails.
func fullJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return max / 2
	}

	return time.Duration(n.Int64())
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
