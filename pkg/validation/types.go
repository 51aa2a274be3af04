package validation

import (
	"context"
	"time"
)

// AccessLevel mirrors the access tiers resolved by the database validation
// routines.
type AccessLevel string

const (
	AccessRestricted AccessLevel = "RESTRICTED"
	AccessStandard   AccessLevel = "STANDARD"
	AccessElevated   AccessLevel = "ELEVATED"
	AccessAdmin      AccessLevel = "ADMIN"
)

// Structured failure reasons. These feed the error translator, so they must
// stay stable.
const (
	ReasonDatabaseConnection  = "database_connection_error"
	ReasonTimeout             = "validation_timeout"
	ReasonInvalidResponse     = "invalid_validation_response"
	ReasonCannotExtendRevoked = "cannot_extend_revoked_token"
)

// SecurityContext is the outcome of a successful validation. It is built once
// per validator call and never mutated afterwards; handlers receive it via the
// request context.
type SecurityContext struct {
	TenantID           string      `json:"tenant_id"`
	TenantName         string      `json:"tenant_name,omitempty"`
	UserID             string      `json:"user_id,omitempty"`
	UserEmail          string      `json:"user_email,omitempty"`
	AccessLevel        AccessLevel `json:"access_level,omitempty"`
	SecurityLevel      string      `json:"security_level,omitempty"`
	RateLimitRemaining int         `json:"rate_limit_remaining"`
	SessionExpiresAt   *time.Time  `json:"session_expires_at,omitempty"`
	IsValid            bool        `json:"is_valid"`
	ValidationMessage  string      `json:"validation_message,omitempty"`
	TokenExtended      bool        `json:"token_extended,omitempty"`
}

// Result is the structured outcome of one validator invocation. Validators
// never let an error escape as a panic or raw exception; every failure mode
// lands here.
type Result struct {
	Success     bool             `json:"success"`
	DurationMS  int64            `json:"duration_ms"`
	Context     *SecurityContext `json:"context,omitempty"`
	ErrorReason string           `json:"error_reason,omitempty"`
}

// Request carries the per-call inputs shared by both validators.
type Request struct {
	TokenHash     string
	TenantID      string
	RequiredScope string
}

// Validator is satisfied by the legacy and enhanced database validators and by
// test fakes.
type Validator interface {
	Validate(ctx context.Context, req Request) Result
}

// Outcome pairs the results of the two validation paths for one request.
// PerformanceImprovementMS is only meaningful when both paths succeeded.
type Outcome struct {
	Current                  Result `json:"current_result"`
	Enhanced                 Result `json:"enhanced_result"`
	PerformanceImprovementMS int64  `json:"performance_improvement_ms"`
	ResultsMatch             bool   `json:"results_match"`
	CacheHit                 bool   `json:"phase1_cache_hit"`
}
