package dbgateway

import (
	"strings"

	"github.com/brianjwalters/graphrag-service/pkg/constant"
)

var knownSchemas = func() map[string]struct{} {
	m := make(map[string]struct{}, len(constant.KnownSchemas))
	for _, s := range constant.KnownSchemas {
		m[s] = struct{}{}
	}

	return m
}()

// ResolveIdentifier maps a dotted "schema.table" reference onto the
// gateway's flat identifier and extracts the schema name used for timeout
// multiplier lookup. Identifiers are case-folded to match the gateway's
// case-insensitive convention.
//
// References whose schema segment is not a known schema pass through
// unchanged (minus case folding): callers may already supply flat names, and
// that is deliberately not an error. Only an empty identifier is rejected.
func ResolveIdentifier(identifier string) (flat string, schema string, err error) {
	trimmed := strings.ToLower(strings.TrimSpace(identifier))
	if trimmed == "" {
		return "", "", &InvalidIdentifierError{Identifier: identifier}
	}

	prefix, rest, found := strings.Cut(trimmed, ".")
	if !found || rest == "" {
		return trimmed, "", nil
	}

	if _, ok := knownSchemas[prefix]; !ok {
		return trimmed, "", nil
	}

	return prefix + "_" + rest, prefix, nil
}

// IsKnownSchema reports whether the gateway flattens tables of this schema.
func IsKnownSchema(schema string) bool {
	_, ok := knownSchemas[strings.ToLower(schema)]
	return ok
}
