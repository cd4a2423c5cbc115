package dbgateway

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/brianjwalters/graphrag-service/pkg/dbgateway"

// telemetry bundles the client's metric instruments. All attributes are free
// of credential values and row-level data.
type telemetry struct {
	operations         metric.Int64Counter
	latency            metric.Float64Histogram
	retries            metric.Int64Counter
	breakerTransitions metric.Int64Counter
	poolExhaustions    metric.Int64Counter
}

func newTelemetry(meter metric.Meter, limiter *ConnectionLimiter) (*telemetry, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}

	operations, err := meter.Int64Counter("dbgateway.operations",
		metric.WithDescription("Gateway operations by class and outcome"))
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("dbgateway.operation.duration",
		metric.WithDescription("Gateway operation latency by class"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("dbgateway.retries",
		metric.WithDescription("Retry attempts by operation class"))
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("dbgateway.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"))
	if err != nil {
		return nil, err
	}

	exhaustions, err := meter.Int64Counter("dbgateway.pool.exhaustions",
		metric.WithDescription("Acquires that failed because the pool was full"))
	if err != nil {
		return nil, err
	}

	utilization, err := meter.Float64ObservableGauge("dbgateway.pool.utilization",
		metric.WithDescription("Fraction of connection slots in use"))
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(utilization, limiter.Utilization())
		return nil
	}, utilization)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		operations:         operations,
		latency:            latency,
		retries:            retries,
		breakerTransitions: transitions,
		poolExhaustions:    exhaustions,
	}, nil
}

func (t *telemetry) recordOperation(ctx context.Context, class OperationClass, outcome string, elapsed time.Duration, retries int) {
	attrs := metric.WithAttributes(
		attribute.String("operation.class", string(class)),
		attribute.String("outcome", outcome),
	)

	t.operations.Add(ctx, 1, attrs)
	t.latency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("operation.class", string(class)),
	))

	if retries > 0 {
		t.retries.Add(ctx, int64(retries), metric.WithAttributes(
			attribute.String("operation.class", string(class)),
		))
	}
}

func (t *telemetry) recordTransition(class OperationClass, from, to gobreaker.State) {
	t.breakerTransitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation.class", string(class)),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (t *telemetry) recordExhaustion(ctx context.Context) {
	t.poolExhaustions.Add(ctx, 1)
}
