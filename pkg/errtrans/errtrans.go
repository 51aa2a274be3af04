// Package errtrans maps raw validator error text to stable, client-safe
// error payloads. Internal text never leaves the process; clients see a
// fixed code, a human message and the correlation id to quote to support.
package errtrans

import "strings"

// Stable error codes. Clients branch on these, so they never change meaning.
const (
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeTokenExpired       = "AUTH_TOKEN_EXPIRED"
	CodeTokenRevoked       = "AUTH_TOKEN_REVOKED"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeCrossTenant        = "CROSS_TENANT_DENIED"
	CodeTimeout            = "AUTH_TIMEOUT"
	CodeSystemError        = "AUTH_SYSTEM_ERROR"
)

// TranslatedError is the only error shape that reaches the HTTP layer.
type TranslatedError struct {
	UserMessage   string `json:"error"`
	ErrorCode     string `json:"error_code"`
	HelpfulAction string `json:"helpful_action"`
	CorrelationID string `json:"correlation_id"`
}

type pattern struct {
	substr  string
	message string
	code    string
	action  string
}

// patterns is matched in order against the lower-cased raw text; the first
// hit wins, which keeps translation deterministic for overlapping patterns.
var patterns = []pattern{
	{"missing credentials", "Authentication credentials are required.", CodeMissingCredentials,
		"Include an Authorization: Bearer header and an X-Tenant-Id header."},
	{"no token", "Authentication credentials are required.", CodeMissingCredentials,
		"Include an Authorization: Bearer header and an X-Tenant-Id header."},
	{"cannot_extend_revoked_token", "This token has been revoked.", CodeTokenRevoked,
		"Request a new API token from your administrator."},
	{"revoked", "This token has been revoked.", CodeTokenRevoked,
		"Request a new API token from your administrator."},
	{"expired", "Your session has expired, please sign in again.", CodeTokenExpired,
		"Re-authenticate to obtain a fresh token."},
	{"cross-tenant", "Access to the requested tenant is not permitted.", CodeCrossTenant,
		"Verify the X-Tenant-Id header matches the tenant your token was issued for."},
	{"tenant mismatch", "Access to the requested tenant is not permitted.", CodeCrossTenant,
		"Verify the X-Tenant-Id header matches the tenant your token was issued for."},
	{"validation_timeout", "Authentication timed out, please retry.", CodeTimeout,
		"Retry the request; contact support if the problem persists."},
	{"timeout", "Authentication timed out, please retry.", CodeTimeout,
		"Retry the request; contact support if the problem persists."},
	{"database_connection_error", "Authentication is temporarily unavailable.", CodeSystemError,
		"Retry the request; contact support if the problem persists."},
	{"invalid_validation_response", "Authentication is temporarily unavailable.", CodeSystemError,
		"Retry the request; contact support if the problem persists."},
	{"invalid token", "The provided token is not valid.", CodeTokenInvalid,
		"Check the token value or request a new one."},
	{"not found", "The provided token is not valid.", CodeTokenInvalid,
		"Check the token value or request a new one."},
}

// Translate maps raw error text to its public shape. Unknown text falls back
// to a generic system error so nothing internal leaks.
func Translate(raw string, correlationID string) TranslatedError {
	lowered := strings.ToLower(raw)
	for _, p := range patterns {
		if strings.Contains(lowered, p.substr) {
			return TranslatedError{
				UserMessage:   p.message,
				ErrorCode:     p.code,
				HelpfulAction: p.action,
				CorrelationID: correlationID,
			}
		}
	}
	return TranslatedError{
		UserMessage:   "An internal authentication error occurred.",
		ErrorCode:     CodeSystemError,
		HelpfulAction: "Retry the request and quote the correlation_id to support.",
		CorrelationID: correlationID,
	}
}
