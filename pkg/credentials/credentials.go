package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

// TokenType distinguishes the two credential carriers the gateway accepts.
type TokenType string

const (
	TokenBearer TokenType = "BEARER"
	TokenAPIKey TokenType = "API_KEY"
)

const (
	apiKeyHeader       = "X-API-Key"
	tenantHeader       = "X-Tenant-Id"
	legacyTenantHeader = "X-Customer-ID"
)

// ErrMissingCredentials is returned before any database work happens: requests
// without a usable credential or tenant header never leave the process.
var ErrMissingCredentials = errors.New("missing credentials")

// Credentials is the raw material extracted from a request. The token value is
// carried verbatim; only its hash ever reaches the database or the cache.
type Credentials struct {
	Token  string
	Type   TokenType
	Tenant string
}

// Extract pulls the bearer token or legacy API key and the requested tenant
// from request headers. It performs no I/O.
func Extract(h http.Header) (Credentials, error) {
	creds := Credentials{Tenant: extractTenant(h)}

	authz := strings.TrimSpace(h.Get("Authorization"))
	switch {
	case authz != "":
		const prefix = "bearer "
		if !strings.HasPrefix(strings.ToLower(authz), prefix) {
			return Credentials{}, ErrMissingCredentials
		}
		token := strings.TrimSpace(authz[len(prefix):])
		if token == "" {
			return Credentials{}, ErrMissingCredentials
		}
		creds.Token = token
		creds.Type = TokenBearer
	default:
		key := strings.TrimSpace(h.Get(apiKeyHeader))
		if key == "" {
			return Credentials{}, ErrMissingCredentials
		}
		creds.Token = key
		creds.Type = TokenAPIKey
	}

	if creds.Tenant == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return creds, nil
}

func extractTenant(h http.Header) string {
	if tenant := strings.TrimSpace(h.Get(tenantHeader)); tenant != "" {
		return tenant
	}
	return strings.TrimSpace(h.Get(legacyTenantHeader))
}

// HashToken produces the hex SHA-256 digest passed to the validation routines.
// The raw credential never appears in SQL parameters, cache keys, or logs.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}
