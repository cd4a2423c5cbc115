package dbgateway

import (
	"context"
	"sync/atomic"

	libPkg "github.com/brianjwalters/graphrag-service/pkg"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Client is a resilient, schema-aware access layer in front of the remote
// database gateway. It owns two long-lived identity handles, a circuit
// breaker per operation class, and a bounded connection pool. All of that
// state is scoped to the instance; two clients never share breakers or
// counters.
type Client struct {
	settings  Settings
	logger    *zap.SugaredLogger
	transport Transport

	restricted *ConnectionHandle
	elevated   *ConnectionHandle

	breakers  *CircuitBreakerManager
	limiter   *ConnectionLimiter
	telemetry *telemetry
	retry     retryPolicy

	meterOverride metric.Meter

	totalOps  atomic.Int64
	failedOps atomic.Int64
}

// Option customizes client construction.
type Option func(*Client)

// WithTransport replaces the default REST transport.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMeter sets the meter used for the client's metric instruments. The
// global provider is used when unset.
func WithMeter(meter metric.Meter) Option {
	return func(c *Client) { c.meterOverride = meter }
}

// NewClient validates settings, establishes both identity handles and
// verifies each against the gateway. Construction fails loudly if either
// identity cannot be established: there is no degraded or mock fallback.
func NewClient(ctx context.Context, settings Settings, opts ...Option) (*Client, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		settings: settings,
		logger:   zap.NewNop().Sugar(),
		retry:    newRetryPolicy(&settings),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		c.transport = newRESTTransport()
	}

	c.restricted = &ConnectionHandle{
		identity:   IdentityRestricted,
		endpoint:   settings.Endpoint,
		credential: settings.RestrictedCredential,
	}
	c.elevated = &ConnectionHandle{
		identity:   IdentityElevated,
		endpoint:   settings.Endpoint,
		credential: settings.ElevatedCredential,
	}

	c.limiter = NewConnectionLimiter(settings.MaxConnections, settings.AcquireTimeout, c.logger)

	tel, err := newTelemetry(c.meterOverride, c.limiter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize gateway metrics")
	}

	c.telemetry = tel

	c.breakers = NewCircuitBreakerManager(&c.settings, c.logger, func(class OperationClass, from, to gobreaker.State) {
		tel.recordTransition(class, from, to)
	})

	if err := c.transport.Ping(ctx, c.restricted); err != nil {
		return nil, errors.Wrap(err, "failed to establish restricted identity")
	}

	if err := c.transport.Ping(ctx, c.elevated); err != nil {
		return nil, errors.Wrap(err, "failed to establish elevated identity")
	}

	c.logger.Infow("gateway client ready",
		"endpoint", settings.Endpoint,
		"restricted_credential", libPkg.RedactCredential(settings.RestrictedCredential),
		"elevated_credential", libPkg.RedactCredential(settings.ElevatedCredential),
		"max_connections", settings.MaxConnections,
		"environment", settings.Environment,
	)

	return c, nil
}

// handleFor selects the identity for a call: elevated only when explicitly
// requested, restricted otherwise. There is never a silent fallback between
// tiers.
func (c *Client) handleFor(admin bool) (*ConnectionHandle, error) {
	if admin {
		if c.elevated == nil {
			return nil, &NoClientAvailableError{Identity: IdentityElevated}
		}

		return c.elevated, nil
	}

	if c.restricted == nil {
		return nil, &NoClientAvailableError{Identity: IdentityRestricted}
	}

	return c.restricted, nil
}

// Settings returns a copy of the client configuration. The multiplier map is
// copied too, so callers cannot reach the client's live timeout config.
func (c *Client) Settings() Settings {
	s := c.settings

	multipliers := make(map[string]float64, len(s.SchemaTimeoutMultipliers))
	for schema, m := range s.SchemaTimeoutMultipliers {
		multipliers[schema] = m
	}

	s.SchemaTimeoutMultipliers = multipliers

	return s
}

// Close releases idle transport resources. In-flight calls are unaffected.
func (c *Client) Close() {
	if rt, ok := c.transport.(*restTransport); ok {
		rt.httpClient.CloseIdleConnections()
	}
}
