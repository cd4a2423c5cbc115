package dbgateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/constant"

	"github.com/stretchr/testify/assert"
)

func TestExecuteSuccess(t *testing.T) {
	var calls atomic.Int32

	transport := &stubTransport{
		doFunc: func(ctx context.Context, handle *ConnectionHandle, req *Request) (*QueryResult, error) {
			calls.Add(1)
			return &QueryResult{Data: []map[string]any{{"id": "1"}}}, nil
		},
	}

	client := newTestClient(t, testSettings(), transport)

	result, err := client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		return transport.Do(ctx, handle, &Request{})
	})

	assert.NoError(t, err)
	assert.Len(t, result.Data, 1)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(0), client.limiter.Active())
}

func TestExecuteRetriesTransientUpToMaxAttempts(t *testing.T) {
	settings := testSettings()
	settings.MaxRetries = 3

	var calls atomic.Int32

	client := newTestClient(t, settings, nil)

	_, err := client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		calls.Add(1)
		return nil, &RemoteError{StatusCode: 503, Message: "service unavailable", Transient: true}
	})

	var remote *RemoteError
	assert.ErrorAs(t, err, &remote)

	// MaxRetries is the total attempt budget, first attempt included.
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(0), client.limiter.Active())
}

func TestExecuteRecoversMidRetry(t *testing.T) {
	settings := testSettings()
	settings.MaxRetries = 3

	var calls atomic.Int32

	client := newTestClient(t, settings, nil)

	result, err := client.Execute(context.Background(), OperationComplex, "graph", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		if calls.Add(1) < 3 {
			return nil, &RemoteError{StatusCode: 502, Message: "bad gateway", Transient: true}
		}

		return &QueryResult{Data: []map[string]any{{"ok": true}}}, nil
	})

	assert.NoError(t, err)
	assert.Len(t, result.Data, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteNonTransientNotRetried(t *testing.T) {
	settings := testSettings()
	settings.MaxRetries = 3
	settings.BreakerFailureThreshold = 2

	var calls atomic.Int32

	client := newTestClient(t, settings, nil)

	for i := 0; i < 5; i++ {
		_, err := client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
			calls.Add(1)
			return nil, &RemoteError{StatusCode: 409, Message: "duplicate key value violates unique constraint", Transient: false}
		})

		var remote *RemoteError
		assert.ErrorAs(t, err, &remote)
		assert.False(t, remote.Transient)
	}

	// One attempt per call, and the breaker never advanced.
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, constant.CircuitBreakerStateClosed, client.breakers.State(OperationSimple))
}

func TestExecuteTimeoutNotRetried(t *testing.T) {
	settings := testSettings()
	settings.MaxRetries = 3
	settings.SimpleTimeout = 20 * time.Millisecond

	var calls atomic.Int32

	client := newTestClient(t, settings, nil)

	_, err := client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		calls.Add(1)
		<-ctx.Done()

		return nil, ctx.Err()
	})

	var timedOut *OperationTimeoutError
	assert.ErrorAs(t, err, &timedOut)
	assert.Equal(t, OperationSimple, timedOut.Operation)
	assert.Equal(t, 20*time.Millisecond, timedOut.Timeout)

	// Give-up condition: exactly one attempt.
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(0), client.limiter.Active())
}

func TestExecuteCallerCancellation(t *testing.T) {
	client := newTestClient(t, testSettings(), nil)

	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := client.Execute(ctx, OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		calls.Add(1)
		<-ctx.Done()

		return nil, ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteCancellationCountsTowardBreaker(t *testing.T) {
	settings := testSettings()
	settings.BreakerFailureThreshold = 2
	settings.BreakerRecoveryWindow = time.Minute

	client := newTestClient(t, settings, nil)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())

		_, err := client.Execute(ctx, OperationComplex, "graph", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
			cancel()
			<-ctx.Done()

			return nil, ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
	}

	// Abandoned attempts settle as qualifying failures.
	assert.Equal(t, constant.CircuitBreakerStateOpen, client.breakers.State(OperationComplex))
}

func TestExecuteCircuitOpenFastFail(t *testing.T) {
	settings := testSettings()
	settings.MaxRetries = 1
	settings.BreakerFailureThreshold = 2
	settings.BreakerRecoveryWindow = time.Minute

	client := newTestClient(t, settings, nil)

	transientFailure := func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		return nil, &RemoteError{StatusCode: 500, Message: "internal error", Transient: true}
	}

	for i := 0; i < 2; i++ {
		_, err := client.Execute(context.Background(), OperationBatch, "graph", false, transientFailure)
		assert.Error(t, err)
	}

	assert.Equal(t, constant.CircuitBreakerStateOpen, client.breakers.State(OperationBatch))

	// The open circuit rejects before the action runs.
	var calls atomic.Int32

	_, err := client.Execute(context.Background(), OperationBatch, "graph", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		calls.Add(1)
		return &QueryResult{}, nil
	})

	var open *CircuitOpenError
	assert.ErrorAs(t, err, &open)
	assert.Equal(t, OperationBatch, open.Operation)
	assert.Equal(t, int32(0), calls.Load())

	// Other classes are unaffected.
	_, err = client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		return &QueryResult{}, nil
	})
	assert.NoError(t, err)
}

func TestExecuteIdentityRouting(t *testing.T) {
	client := newTestClient(t, testSettings(), nil)

	seen := make(chan string, 2)
	action := func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		seen <- handle.Identity()
		return &QueryResult{}, nil
	}

	_, err := client.Execute(context.Background(), OperationSimple, "client", false, action)
	assert.NoError(t, err)
	assert.Equal(t, IdentityRestricted, <-seen)

	_, err = client.Execute(context.Background(), OperationSimple, "client", true, action)
	assert.NoError(t, err)
	assert.Equal(t, IdentityElevated, <-seen)
}

func TestExecuteNoElevatedFallback(t *testing.T) {
	client := newTestClient(t, testSettings(), nil)
	client.elevated = nil

	var calls atomic.Int32

	_, err := client.Execute(context.Background(), OperationSimple, "client", true, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		calls.Add(1)
		return &QueryResult{}, nil
	})

	// Elevated requested but unavailable: error out, never use restricted.
	var noClient *NoClientAvailableError
	assert.ErrorAs(t, err, &noClient)
	assert.Equal(t, IdentityElevated, noClient.Identity)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, int64(0), client.limiter.Active())
}

func TestExecuteNoRestrictedFallbackToElevated(t *testing.T) {
	client := newTestClient(t, testSettings(), nil)
	client.restricted = nil

	var calls atomic.Int32

	_, err := client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		calls.Add(1)
		return &QueryResult{}, nil
	})

	// Restricted unavailable: fail, even though the elevated handle is healthy.
	var noClient *NoClientAvailableError
	assert.ErrorAs(t, err, &noClient)
	assert.Equal(t, IdentityRestricted, noClient.Identity)
	assert.Equal(t, int32(0), calls.Load())
}

func TestExecutePoolExhaustion(t *testing.T) {
	settings := testSettings()
	settings.MaxConnections = 1
	settings.AcquireTimeout = 20 * time.Millisecond

	client := newTestClient(t, settings, nil)

	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
			close(started)
			<-release

			return &QueryResult{}, nil
		})
	}()

	<-started

	_, err := client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		return &QueryResult{}, nil
	})

	var exhausted *PoolExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Equal(t, int64(1), exhausted.Max)

	close(release)
}
