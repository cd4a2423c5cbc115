package constant

// Machine-readable error classes returned by the database gateway. These map
// onto PostgreSQL SQLSTATE codes and gateway-specific classes, and are used
// to separate data/programming errors from systemic failures.
const (
	GatewayCodeUndefinedTable      = "42P01"
	GatewayCodeInsufficientPrivs   = "42501"
	GatewayCodeUniqueViolation     = "23505"
	GatewayCodeForeignKeyViolation = "23503"
	GatewayCodeNotNullViolation    = "23502"
	GatewayCodeCheckViolation      = "23514"
	GatewayCodeInvalidTextRepr     = "22P02"
	GatewayCodeNoRowsFound         = "PGRST116"
	GatewayCodeParseError          = "PGRST100"
)

// Gateway request headers.
const (
	HeaderAPIKey    = "apikey"
	HeaderRequestID = "X-Request-ID"
	HeaderPrefer    = "Prefer"
)
