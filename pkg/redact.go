package pkg

import (
	"net/url"

	"github.com/brianjwalters/graphrag-service/pkg/constant"
)

// RedactCredential masks a credential token for logging, keeping only a short
// fixed-length prefix. Tokens shorter than the prefix are fully masked.
func RedactCredential(token string) string {
	if len(token) <= constant.CredentialPrefixLen {
		return constant.RedactPlaceholder
	}

	return token[:constant.CredentialPrefixLen] + "..." + constant.RedactPlaceholder
}

// RedactConnectionString masks userinfo credentials embedded in a URI.
// Returns "[invalid-uri]" if parsing fails.
func RedactConnectionString(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "[invalid-uri]"
	}

	if u.User != nil {
		u.User = url.UserPassword(constant.RedactPlaceholder, constant.RedactPlaceholder)
	}

	return u.String()
}
