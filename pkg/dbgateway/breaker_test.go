package dbgateway

import (
	"testing"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/constant"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCircuitBreakerManagerGetOrCreate(t *testing.T) {
	s := testSettings()
	cbm := NewCircuitBreakerManager(&s, zap.NewNop().Sugar(), nil)

	// Same class returns the same breaker instance.
	b1 := cbm.getOrCreate(OperationSimple)
	b2 := cbm.getOrCreate(OperationSimple)
	assert.Same(t, b1, b2)

	// Another class gets its own breaker.
	b3 := cbm.getOrCreate(OperationBatch)
	assert.NotSame(t, b1, b3)
}

func TestCircuitBreakerTripsAtExactThreshold(t *testing.T) {
	s := testSettings()
	s.BreakerFailureThreshold = 3

	cbm := NewCircuitBreakerManager(&s, zap.NewNop().Sugar(), nil)

	// Failures below the threshold leave the circuit closed.
	for i := 0; i < 2; i++ {
		settle, err := cbm.Allow(OperationSimple)
		assert.NoError(t, err)
		settle(false)
	}

	assert.Equal(t, constant.CircuitBreakerStateClosed, cbm.State(OperationSimple))

	// The third consecutive failure opens it.
	settle, err := cbm.Allow(OperationSimple)
	assert.NoError(t, err)
	settle(false)

	assert.Equal(t, constant.CircuitBreakerStateOpen, cbm.State(OperationSimple))

	// While open, Allow rejects without granting a settle callback.
	settle, err = cbm.Allow(OperationSimple)
	assert.Nil(t, settle)

	var open *CircuitOpenError
	assert.ErrorAs(t, err, &open)
	assert.Equal(t, OperationSimple, open.Operation)
}

func TestCircuitBreakerSuccessResetsFailureStreak(t *testing.T) {
	s := testSettings()
	s.BreakerFailureThreshold = 3

	cbm := NewCircuitBreakerManager(&s, zap.NewNop().Sugar(), nil)

	for i := 0; i < 10; i++ {
		settle, err := cbm.Allow(OperationComplex)
		assert.NoError(t, err)

		// Two failures, then a success, never three in a row.
		settle(i%3 != 2)
	}

	assert.Equal(t, constant.CircuitBreakerStateClosed, cbm.State(OperationComplex))
}

func TestCircuitBreakerIsolatedPerOperationClass(t *testing.T) {
	s := testSettings()
	s.BreakerFailureThreshold = 2

	cbm := NewCircuitBreakerManager(&s, zap.NewNop().Sugar(), nil)

	for i := 0; i < 2; i++ {
		settle, err := cbm.Allow(OperationBatch)
		assert.NoError(t, err)
		settle(false)
	}

	assert.Equal(t, constant.CircuitBreakerStateOpen, cbm.State(OperationBatch))
	assert.Equal(t, constant.CircuitBreakerStateClosed, cbm.State(OperationSimple))
	assert.Equal(t, 1, cbm.OpenCount())

	// Simple calls still go through while batch is open.
	settle, err := cbm.Allow(OperationSimple)
	assert.NoError(t, err)
	settle(true)
}

func TestCircuitBreakerRecovery(t *testing.T) {
	s := testSettings()
	s.BreakerFailureThreshold = 1
	s.BreakerRecoveryWindow = 20 * time.Millisecond

	var transitions []string

	cbm := NewCircuitBreakerManager(&s, zap.NewNop().Sugar(), func(class OperationClass, from, to gobreaker.State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	settle, err := cbm.Allow(OperationVector)
	assert.NoError(t, err)
	settle(false)

	assert.Equal(t, constant.CircuitBreakerStateOpen, cbm.State(OperationVector))

	// After the recovery window the breaker admits one trial call.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, constant.CircuitBreakerStateHalfOpen, cbm.State(OperationVector))

	settle, err = cbm.Allow(OperationVector)
	assert.NoError(t, err)
	settle(true)

	assert.Equal(t, constant.CircuitBreakerStateClosed, cbm.State(OperationVector))
	assert.Contains(t, transitions, "closed->open")
	assert.Contains(t, transitions, "half-open->closed")
}
