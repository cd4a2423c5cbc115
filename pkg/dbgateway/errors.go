package dbgateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianjwalters/graphrag-service/pkg/constant"
)

// ErrBuilderConsumed is returned when Execute is invoked on a builder that
// was already executed. Builders are single-use.
var ErrBuilderConsumed = errors.New("query builder already executed")

// ConfigurationError indicates invalid or incomplete settings. It is fatal at
// startup: no client is constructed and no network activity occurs.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
	}

	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// InvalidIdentifierError indicates a malformed table reference supplied by
// the caller.
type InvalidIdentifierError struct {
	Identifier string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid table identifier %q", e.Identifier)
}

// CircuitOpenError indicates the circuit for an operation class is open and
// the call was rejected without reaching the gateway. Callers should back off.
type CircuitOpenError struct {
	Operation OperationClass
	State     string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s operations is %s, request rejected", e.Operation, e.State)
}

// PoolExhaustedError indicates no connection slot became available within the
// acquire timeout. Callers may retry later.
type PoolExhaustedError struct {
	Active int64
	Max    int64
	Waited time.Duration
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("connection pool exhausted (%d/%d active after waiting %s)", e.Active, e.Max, e.Waited)
}

// OperationTimeoutError indicates a single attempt exceeded its resolved
// deadline. Timeouts are never retried internally: retrying would compound
// load on an already slow dependency.
type OperationTimeoutError struct {
	Operation OperationClass
	Timeout   time.Duration
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %s", e.Operation, e.Timeout)
}

// NoClientAvailableError indicates the connection handle for the requested
// identity tier has not been established. There is no silent fallback to the
// other identity.
type NoClientAvailableError struct {
	Identity string
}

func (e *NoClientAvailableError) Error() string {
	return fmt.Sprintf("no %s gateway client available", e.Identity)
}

// RemoteError is a failure surfaced by the gateway or by the transport on the
// way to it. Transient remote errors are retried with backoff and count
// toward the circuit breaker; non-transient ones (data and programming
// errors) are surfaced immediately and never advance breaker state.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
	Transient  bool
	Err        error
}

func (e *RemoteError) Error() string {
	kind := "non-transient"
	if e.Transient {
		kind = "transient"
	}

	if e.Code != "" {
		return fmt.Sprintf("%s gateway error [%s]: %s", kind, e.Code, e.Message)
	}

	return fmt.Sprintf("%s gateway error: %s", kind, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// nonTransientPatterns match error text produced by data and programming
// errors. These never qualify as systemic failures: retrying them is useless
// and counting them toward the breaker would let bad input mask real outages.
var nonTransientPatterns = []string{
	"does not exist",
	"not found",
	"permission denied",
	"insufficient privilege",
	"row-level security",
	"violates",
	"constraint",
	"duplicate key",
	"invalid input",
	"malformed",
	"bad request",
	"syntax error",
	"could not parse",
}

// nonTransientCodes are gateway error classes produced by bad input or bad
// references, never by load or outages.
var nonTransientCodes = map[string]struct{}{
	constant.GatewayCodeUndefinedTable:      {},
	constant.GatewayCodeInsufficientPrivs:   {},
	constant.GatewayCodeUniqueViolation:     {},
	constant.GatewayCodeForeignKeyViolation: {},
	constant.GatewayCodeNotNullViolation:    {},
	constant.GatewayCodeCheckViolation:      {},
	constant.GatewayCodeInvalidTextRepr:     {},
	constant.GatewayCodeNoRowsFound:         {},
	constant.GatewayCodeParseError:          {},
}

// nonTransientStatus reports whether an HTTP status from the gateway denotes
// a caller error rather than a systemic failure.
func nonTransientStatus(status int) bool {
	switch status {
	case 400, 401, 403, 404, 405, 406, 409, 416, 422:
		return true
	default:
		return false
	}
}

// classifyRemote decides whether a gateway failure is transient. Error codes
// and status codes are authoritative; the message text is a fallback for
// gateways that return generic statuses with descriptive bodies.
func classifyRemote(status int, code, message string) bool {
	if _, ok := nonTransientCodes[code]; ok {
		return false
	}

	if status > 0 {
		if nonTransientStatus(status) {
			return false
		}

		if status >= 500 || status == 408 || status == 429 {
			return true
		}
	}

	lower := strings.ToLower(message)
	for _, p := range nonTransientPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}

	return true
}

// isTransient reports whether err qualifies as a transient failure. Unknown
// error types are treated as transient so that genuinely systemic failures
// (connection resets, DNS blips) are retried by default.
func isTransient(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Transient
	}

	return true
}
