package constant

const ApplicationName = "graphrag-service"

// RedactPlaceholder is the replacement value for masked credentials in logs.
const RedactPlaceholder = "REDACTED"

// CredentialPrefixLen is the number of leading credential characters that may
// appear in logs. Everything past the prefix is masked.
const CredentialPrefixLen = 6

// Known logical schemas exposed by the database gateway. Table references
// qualified with any other schema are treated as already-flat identifiers.
const (
	SchemaClient  = "client"
	SchemaGraph   = "graph"
	SchemaLexical = "lexical"
	SchemaVector  = "vector"
	SchemaAudit   = "audit"
)

// KnownSchemas lists the schemas the gateway flattens into prefixed
// identifiers (e.g. graph.nodes -> graph_nodes).
var KnownSchemas = []string{
	SchemaClient,
	SchemaGraph,
	SchemaLexical,
	SchemaVector,
	SchemaAudit,
}
