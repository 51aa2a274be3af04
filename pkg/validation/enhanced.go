package validation

import (
	"context"
	"strings"
	"time"
)

const enhancedValidateSQL = `
	SELECT is_valid, tenant_hk, tenant_name, user_hk, user_email,
	       access_level, security_level, rate_limit_remaining, expires_at,
	       token_extended, message
	FROM ai_monitoring.validate_zero_trust_access($1, $2, $3, $4, $5, $6)
`

// ExtensionPolicy controls the auto-extension behavior of the enhanced path.
// Extension moves the expiry only; the credential value itself never changes,
// so clients already mid-session keep working.
type ExtensionPolicy struct {
	AutoExtend    bool
	ThresholdDays int
	ExtensionDays int
}

// EnhancedValidator calls the newer zero-trust validation routine, which also
// resolves the tenant and optionally extends near-expiry tokens.
type EnhancedValidator struct {
	DB      DB
	Timeout time.Duration
	Policy  ExtensionPolicy
}

func NewEnhancedValidator(db DB, timeout time.Duration, policy ExtensionPolicy) *EnhancedValidator {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if policy.ThresholdDays <= 0 {
		policy.ThresholdDays = 7
	}
	if policy.ExtensionDays <= 0 {
		policy.ExtensionDays = 30
	}
	return &EnhancedValidator{DB: db, Timeout: timeout, Policy: policy}
}

func (v *EnhancedValidator) Validate(ctx context.Context, req Request) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	row := v.DB.QueryRow(ctx, enhancedValidateSQL,
		req.TokenHash, req.TenantID, req.RequiredScope,
		v.Policy.AutoExtend, v.Policy.ThresholdDays, v.Policy.ExtensionDays)
	sc, err := scanSecurityContext(row, true)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Result{DurationMS: elapsed, ErrorReason: classifyDBError(ctx, err)}
	}
	if !sc.IsValid {
		reason := sc.ValidationMessage
		// Extending a revoked token is a hard failure, never a silent no-op.
		if v.Policy.AutoExtend && strings.Contains(strings.ToLower(reason), "revoked") {
			reason = ReasonCannotExtendRevoked
		}
		return Result{DurationMS: elapsed, ErrorReason: reason}
	}
	if sc.TenantID == "" {
		return Result{DurationMS: elapsed, ErrorReason: ReasonInvalidResponse}
	}
	return Result{Success: true, DurationMS: elapsed, Context: sc}
}
