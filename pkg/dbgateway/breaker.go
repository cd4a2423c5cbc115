package dbgateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/brianjwalters/graphrag-service/pkg/constant"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CircuitBreakerManager tracks one circuit breaker per operation class, so a
// failing batch path does not block simple reads. State is owned by the
// client instance that created the manager; it is never process-wide.
type CircuitBreakerManager struct {
	breakers map[OperationClass]*gobreaker.TwoStepCircuitBreaker
	mu       sync.RWMutex

	settings *Settings
	logger   *zap.SugaredLogger

	// onTransition is invoked on every state change, after logging. Used to
	// emit transition metrics.
	onTransition func(class OperationClass, from, to gobreaker.State)
}

// NewCircuitBreakerManager creates a manager configured from Settings.
func NewCircuitBreakerManager(settings *Settings, logger *zap.SugaredLogger, onTransition func(class OperationClass, from, to gobreaker.State)) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers:     make(map[OperationClass]*gobreaker.TwoStepCircuitBreaker),
		settings:     settings,
		logger:       logger,
		onTransition: onTransition,
	}
}

// getOrCreate returns the breaker for an operation class, creating it lazily.
func (cbm *CircuitBreakerManager) getOrCreate(class OperationClass) *gobreaker.TwoStepCircuitBreaker {
	cbm.mu.RLock()
	breaker, exists := cbm.breakers[class]
	cbm.mu.RUnlock()

	if exists {
		return breaker
	}

	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists = cbm.breakers[class]; exists {
		return breaker
	}

	threshold := cbm.settings.BreakerFailureThreshold

	breakerSettings := gobreaker.Settings{
		Name:        fmt.Sprintf("gateway-%s", class),
		MaxRequests: constant.CircuitBreakerMaxRequests,
		Timeout:     cbm.settings.BreakerRecoveryWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cbm.logger.Warnf("Circuit Breaker [%s] state changed: %s -> %s", name, from.String(), to.String())

			switch to {
			case gobreaker.StateOpen:
				cbm.logger.Errorf("Circuit Breaker [%s] OPENED - gateway calls will fast-fail", name)
			case gobreaker.StateHalfOpen:
				cbm.logger.Infof("Circuit Breaker [%s] HALF-OPEN - testing gateway recovery", name)
			case gobreaker.StateClosed:
				cbm.logger.Infof("Circuit Breaker [%s] CLOSED - gateway is healthy", name)
			}

			if cbm.onTransition != nil {
				cbm.onTransition(class, from, to)
			}
		},
	}

	breaker = gobreaker.NewTwoStepCircuitBreaker(breakerSettings)
	cbm.breakers[class] = breaker

	return breaker
}

// Allow asks the breaker whether a call for this operation class may proceed.
// On success it returns a settle callback that must be invoked exactly once
// with the attempt outcome: settle(false) counts a qualifying failure toward
// opening the circuit, settle(true) records success and closes a half-open
// circuit. When the circuit is open (or a half-open trial is already in
// flight) it returns CircuitOpenError and no network call must be made.
func (cbm *CircuitBreakerManager) Allow(class OperationClass) (settle func(success bool), err error) {
	breaker := cbm.getOrCreate(class)

	done, err := breaker.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &CircuitOpenError{Operation: class, State: cbm.State(class)}
		}

		return nil, err
	}

	return done, nil
}

// State returns the breaker state for an operation class as a health-surface
// string. Classes that never executed report closed.
func (cbm *CircuitBreakerManager) State(class OperationClass) string {
	cbm.mu.RLock()
	breaker, exists := cbm.breakers[class]
	cbm.mu.RUnlock()

	if !exists {
		return constant.CircuitBreakerStateClosed
	}

	switch breaker.State() {
	case gobreaker.StateOpen:
		return constant.CircuitBreakerStateOpen
	case gobreaker.StateHalfOpen:
		return constant.CircuitBreakerStateHalfOpen
	default:
		return constant.CircuitBreakerStateClosed
	}
}

// States returns the state of every operation class.
func (cbm *CircuitBreakerManager) States() map[OperationClass]string {
	states := make(map[OperationClass]string, len(OperationClasses))
	for _, class := range OperationClasses {
		states[class] = cbm.State(class)
	}

	return states
}

// OpenCount returns how many operation classes currently have an open circuit.
func (cbm *CircuitBreakerManager) OpenCount() int {
	open := 0

	for _, class := range OperationClasses {
		if cbm.State(class) == constant.CircuitBreakerStateOpen {
			open++
		}
	}

	return open
}
