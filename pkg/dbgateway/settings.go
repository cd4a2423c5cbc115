package dbgateway

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/constant"

	"github.com/go-playground/validator/v10"
)

// credentialShape is the token format accepted by the gateway: an opaque
// JWT-like string. Rejecting obviously malformed credentials at construction
// time beats a confusing 401 on the first call.
var credentialShape = regexp.MustCompile(`^[A-Za-z0-9._~-]{20,}$`)

// Settings is the immutable configuration for a gateway client. It is
// created once at process start and validated eagerly; a client is never
// constructed from invalid settings.
type Settings struct {
	// Endpoint is the base URL of the REST gateway, without a trailing slash.
	Endpoint string `validate:"required,url"`

	// RestrictedCredential is the least-privilege token. It is the default
	// identity for every call.
	RestrictedCredential string `validate:"required"`

	// ElevatedCredential bypasses row-level restrictions. Used only for calls
	// that explicitly request the elevated identity.
	ElevatedCredential string `validate:"required"`

	// Per-operation-class base timeouts.
	SimpleTimeout  time.Duration `validate:"gt=0"`
	ComplexTimeout time.Duration `validate:"gt=0"`
	BatchTimeout   time.Duration `validate:"gt=0"`
	VectorTimeout  time.Duration `validate:"gt=0"`

	// SchemaTimeoutMultipliers scales the base timeout per schema. Unknown
	// schemas use 1.0. Every configured multiplier must be >= 1.0.
	SchemaTimeoutMultipliers map[string]float64

	// MaxConnections bounds the number of in-flight gateway calls.
	MaxConnections int `validate:"gt=0"`

	// AcquireTimeout is how long a call waits for a free connection slot.
	AcquireTimeout time.Duration `validate:"gt=0"`

	// MaxRetries is the total number of attempts per call, including the
	// first one.
	MaxRetries int `validate:"gt=0"`

	// Exponential backoff parameters for transient failures.
	BackoffBase   time.Duration `validate:"gt=0"`
	BackoffFactor float64       `validate:"gte=1"`
	BackoffCap    time.Duration `validate:"gt=0"`

	// Circuit breaker parameters, applied per operation class.
	BreakerFailureThreshold uint32        `validate:"gt=0"`
	BreakerRecoveryWindow   time.Duration `validate:"gt=0"`

	// SlowCallThreshold is the elapsed time above which a call is logged as
	// slow regardless of outcome.
	SlowCallThreshold time.Duration `validate:"gt=0"`

	// ServiceName and Environment identify this deployment in logs and
	// metrics.
	ServiceName string `validate:"required"`
	Environment string `validate:"required"`
}

// DefaultSettings returns Settings populated with the documented defaults.
// Endpoint and credentials must still be provided by the caller.
func DefaultSettings() Settings {
	return Settings{
		SimpleTimeout:            constant.DefaultSimpleTimeout,
		ComplexTimeout:           constant.DefaultComplexTimeout,
		BatchTimeout:             constant.DefaultBatchTimeout,
		VectorTimeout:            constant.DefaultVectorTimeout,
		SchemaTimeoutMultipliers: map[string]float64{},
		MaxConnections:           constant.DefaultMaxConnections,
		AcquireTimeout:           constant.DefaultAcquireTimeout,
		MaxRetries:               constant.DefaultMaxRetries,
		BackoffBase:              constant.DefaultBackoffBase,
		BackoffFactor:            constant.DefaultBackoffFactor,
		BackoffCap:               constant.DefaultBackoffCap,
		BreakerFailureThreshold:  constant.DefaultBreakerFailureThreshold,
		BreakerRecoveryWindow:    constant.DefaultBreakerRecoveryWindow,
		SlowCallThreshold:        constant.DefaultSlowCallThreshold,
		ServiceName:              constant.ApplicationName,
		Environment:              "development",
	}
}

// Validate checks structural and cross-field constraints. It performs no
// network activity and fails with a descriptive ConfigurationError on the
// first violation found.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return &ConfigurationError{
				Field:   first.Field(),
				Message: fmt.Sprintf("failed %q validation", first.Tag()),
				Err:     err,
			}
		}

		return &ConfigurationError{Message: err.Error(), Err: err}
	}

	if !credentialShape.MatchString(s.RestrictedCredential) {
		return &ConfigurationError{Field: "RestrictedCredential", Message: "credential is malformed"}
	}

	if !credentialShape.MatchString(s.ElevatedCredential) {
		return &ConfigurationError{Field: "ElevatedCredential", Message: "credential is malformed"}
	}

	if s.RestrictedCredential == s.ElevatedCredential {
		return &ConfigurationError{
			Field:   "ElevatedCredential",
			Message: "restricted and elevated credentials must be distinct",
		}
	}

	if strings.HasSuffix(s.Endpoint, "/") {
		return &ConfigurationError{Field: "Endpoint", Message: "endpoint must not end with a trailing slash"}
	}

	for schema, m := range s.SchemaTimeoutMultipliers {
		if m < 1.0 {
			return &ConfigurationError{
				Field:   "SchemaTimeoutMultipliers",
				Message: fmt.Sprintf("multiplier for schema %q must be >= 1.0, got %v", schema, m),
			}
		}
	}

	return nil
}

// TimeoutFor resolves the effective timeout for an operation class against a
// schema: the class base timeout scaled by the schema's multiplier, which
// defaults to 1.0 for unknown schemas.
func (s *Settings) TimeoutFor(class OperationClass, schema string) time.Duration {
	base := s.baseTimeout(class)

	multiplier := 1.0
	if m, ok := s.SchemaTimeoutMultipliers[strings.ToLower(schema)]; ok {
		multiplier = m
	}

	return time.Duration(float64(base) * multiplier)
}

func (s *Settings) baseTimeout(class OperationClass) time.Duration {
	switch class {
	case OperationComplex:
		return s.ComplexTimeout
	case OperationBatch:
		return s.BatchTimeout
	case OperationVector:
		return s.VectorTimeout
	default:
		return s.SimpleTimeout
	}
}
