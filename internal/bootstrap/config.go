package bootstrap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg"
	"github.com/brianjwalters/graphrag-service/pkg/dbgateway"
)

// Config holds the application's configurable parameters read from
// environment variables.
type Config struct {
	EnvName     string `env:"ENV_NAME" default:"development"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	ServerPort  string `env:"SERVER_PORT" default:"8080"`
	ServiceName string `env:"SERVICE_NAME" default:"graphrag-service"`

	// Gateway connection envs
	GatewayEndpoint      string `env:"DB_GATEWAY_ENDPOINT"`
	RestrictedCredential string `env:"DB_RESTRICTED_CREDENTIAL"`
	ElevatedCredential   string `env:"DB_ELEVATED_CREDENTIAL"`

	// Per-operation-class timeout envs
	SimpleTimeout  time.Duration `env:"DB_TIMEOUT_SIMPLE" default:"10s"`
	ComplexTimeout time.Duration `env:"DB_TIMEOUT_COMPLEX" default:"30s"`
	BatchTimeout   time.Duration `env:"DB_TIMEOUT_BATCH" default:"30s"`
	VectorTimeout  time.Duration `env:"DB_TIMEOUT_VECTOR" default:"60s"`

	// SchemaMultipliers scales timeouts per schema, e.g. "graph=1.5,vector=2.0".
	SchemaMultipliers string `env:"DB_SCHEMA_TIMEOUT_MULTIPLIERS"`

	// Pool and retry envs
	MaxConnections int           `env:"DB_MAX_CONNECTIONS" default:"20"`
	AcquireTimeout time.Duration `env:"DB_ACQUIRE_TIMEOUT" default:"5s"`
	MaxRetries     int           `env:"DB_MAX_RETRIES" default:"3"`
	BackoffBase    time.Duration `env:"DB_BACKOFF_BASE" default:"500ms"`
	BackoffFactor  float64       `env:"DB_BACKOFF_FACTOR" default:"2.0"`
	BackoffCap     time.Duration `env:"DB_BACKOFF_CAP" default:"10s"`

	// Circuit breaker envs
	BreakerFailureThreshold int           `env:"DB_BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerRecoveryWindow   time.Duration `env:"DB_BREAKER_RECOVERY_WINDOW" default:"60s"`

	SlowCallThreshold time.Duration `env:"DB_SLOW_CALL_THRESHOLD" default:"2s"`
}

// LoadConfig reads the environment into a Config.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := pkg.SetConfigFromEnvVars(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GatewaySettings converts the flat env surface into validated client
// settings. Validation itself happens inside dbgateway.NewClient.
func (c *Config) GatewaySettings() (dbgateway.Settings, error) {
	multipliers, err := parseSchemaMultipliers(c.SchemaMultipliers)
	if err != nil {
		return dbgateway.Settings{}, err
	}

	// Checked before the uint32 conversion: a negative value would wrap to a
	// huge threshold and disable the breaker.
	if c.BreakerFailureThreshold <= 0 {
		return dbgateway.Settings{}, fmt.Errorf("breaker failure threshold must be positive, got %d", c.BreakerFailureThreshold)
	}

	settings := dbgateway.DefaultSettings()
	settings.Endpoint = c.GatewayEndpoint
	settings.RestrictedCredential = c.RestrictedCredential
	settings.ElevatedCredential = c.ElevatedCredential
	settings.SimpleTimeout = c.SimpleTimeout
	settings.ComplexTimeout = c.ComplexTimeout
	settings.BatchTimeout = c.BatchTimeout
	settings.VectorTimeout = c.VectorTimeout
	settings.SchemaTimeoutMultipliers = multipliers
	settings.MaxConnections = c.MaxConnections
	settings.AcquireTimeout = c.AcquireTimeout
	settings.MaxRetries = c.MaxRetries
	settings.BackoffBase = c.BackoffBase
	settings.BackoffFactor = c.BackoffFactor
	settings.BackoffCap = c.BackoffCap
	settings.BreakerFailureThreshold = uint32(c.BreakerFailureThreshold)
	settings.BreakerRecoveryWindow = c.BreakerRecoveryWindow
	settings.SlowCallThreshold = c.SlowCallThreshold
	settings.ServiceName = c.ServiceName
	settings.Environment = c.EnvName

	return settings, nil
}

// parseSchemaMultipliers parses "schema=multiplier" pairs separated by commas.
func parseSchemaMultipliers(raw string) (map[string]float64, error) {
	multipliers := map[string]float64{}

	if strings.TrimSpace(raw) == "" {
		return multipliers, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return nil, fmt.Errorf("malformed schema multiplier entry %q", pair)
		}

		m, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed schema multiplier for %q: %w", name, err)
		}

		multipliers[strings.ToLower(strings.TrimSpace(name))] = m
	}

	return multipliers, nil
}
