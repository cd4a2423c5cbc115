package dbgateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidatesSettings(t *testing.T) {
	settings := testSettings()
	settings.Endpoint = ""

	client, err := NewClient(context.Background(), settings, WithTransport(&stubTransport{}))

	assert.Nil(t, client)

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewClientVerifiesBothIdentities(t *testing.T) {
	var pinged []string

	transport := &stubTransport{
		pingFunc: func(ctx context.Context, handle *ConnectionHandle) error {
			pinged = append(pinged, handle.Identity())
			return nil
		},
	}

	client, err := NewClient(context.Background(), testSettings(), WithTransport(transport))

	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, []string{IdentityRestricted, IdentityElevated}, pinged)
}

func TestNewClientFailsWhenRestrictedIdentityRejected(t *testing.T) {
	transport := &stubTransport{
		pingFunc: func(ctx context.Context, handle *ConnectionHandle) error {
			if handle.Identity() == IdentityRestricted {
				return errors.New("status 401")
			}

			return nil
		},
	}

	client, err := NewClient(context.Background(), testSettings(), WithTransport(transport))

	// Construction fails loudly; there is no degraded single-identity mode.
	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restricted identity")
}

func TestNewClientFailsWhenElevatedIdentityRejected(t *testing.T) {
	transport := &stubTransport{
		pingFunc: func(ctx context.Context, handle *ConnectionHandle) error {
			if handle.Identity() == IdentityElevated {
				return errors.New("status 401")
			}

			return nil
		},
	}

	client, err := NewClient(context.Background(), testSettings(), WithTransport(transport))

	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elevated identity")
}

func TestClientSettingsReturnsCopy(t *testing.T) {
	settings := testSettings()
	settings.SchemaTimeoutMultipliers = map[string]float64{"graph": 1.5}
	settings.BatchTimeout = 30 * time.Second

	client := newTestClient(t, settings, nil)

	s := client.Settings()
	s.MaxConnections = 1

	assert.NotEqual(t, s.MaxConnections, client.Settings().MaxConnections)

	// Mutating the returned multiplier map must not change live timeouts.
	s.SchemaTimeoutMultipliers["graph"] = 100.0
	delete(s.SchemaTimeoutMultipliers, "graph")

	live := client.Settings()
	assert.Equal(t, 1.5, live.SchemaTimeoutMultipliers["graph"])

	_, err := client.Execute(context.Background(), OperationBatch, "graph", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.InDelta(t, 45*time.Second, time.Until(deadline), float64(time.Second))

		return &QueryResult{}, nil
	})
	require.NoError(t, err)
}

func TestClientHealth(t *testing.T) {
	client := newTestClient(t, testSettings(), nil)

	_, err := client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		return &QueryResult{}, nil
	})
	require.NoError(t, err)

	_, err = client.Execute(context.Background(), OperationSimple, "client", false, func(ctx context.Context, handle *ConnectionHandle) (*QueryResult, error) {
		return nil, &RemoteError{StatusCode: 404, Message: "relation not found", Transient: false}
	})
	require.Error(t, err)

	health := client.Health()

	assert.Equal(t, int64(2), health.TotalOperations)
	assert.Equal(t, int64(1), health.FailedOperations)
	assert.Equal(t, 0.5, health.ErrorRate)
	assert.Equal(t, int64(0), health.PoolActive)
	assert.Equal(t, int64(client.Settings().MaxConnections), health.PoolMax)
	assert.Equal(t, 0, health.OpenCircuits)
	assert.True(t, health.RestrictedAvailable)
	assert.True(t, health.ElevatedAvailable)
	assert.Len(t, health.CircuitStates, len(OperationClasses))
	assert.False(t, health.Timestamp.IsZero())
}
