package validation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// DB is the slice of the pgx pool the validators need. Connections are
// checked out per call by the pool, never held across the comparison step.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const legacyValidateSQL = `
	SELECT is_valid, tenant_hk, tenant_name, user_hk, user_email,
	       access_level, security_level, rate_limit_remaining, expires_at, message
	FROM auth.validate_production_api_token($1, $2)
`

// LegacyValidator calls the established token validation routine. It is the
// authoritative path: its verdict decides allow/deny while the enhanced path
// proves itself.
type LegacyValidator struct {
	DB      DB
	Timeout time.Duration
}

func NewLegacyValidator(db DB, timeout time.Duration) *LegacyValidator {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &LegacyValidator{DB: db, Timeout: timeout}
}

func (v *LegacyValidator) Validate(ctx context.Context, req Request) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	row := v.DB.QueryRow(ctx, legacyValidateSQL, req.TokenHash, req.RequiredScope)
	sc, err := scanSecurityContext(row, false)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Result{DurationMS: elapsed, ErrorReason: classifyDBError(ctx, err)}
	}
	if !sc.IsValid {
		return Result{DurationMS: elapsed, ErrorReason: sc.ValidationMessage}
	}
	if sc.TenantID == "" {
		// A valid verdict without a tenant violates the routine's contract.
		return Result{DurationMS: elapsed, ErrorReason: ReasonInvalidResponse}
	}
	return Result{Success: true, DurationMS: elapsed, Context: sc}
}

// scanSecurityContext maps one routine result row into a SecurityContext.
// A scan failure (wrong arity, wrong types) is a contract break, surfaced to
// the caller instead of trusted.
func scanSecurityContext(row pgx.Row, withExtension bool) (*SecurityContext, error) {
	var (
		sc        SecurityContext
		tenantID  *string
		tenant    *string
		userID    *string
		userEmail *string
		access    *string
		security  *string
		remaining *int
		expiresAt *time.Time
		message   *string
	)
	dest := []any{&sc.IsValid, &tenantID, &tenant, &userID, &userEmail, &access, &security, &remaining, &expiresAt}
	if withExtension {
		dest = append(dest, &sc.TokenExtended)
	}
	dest = append(dest, &message)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if tenantID != nil {
		sc.TenantID = *tenantID
	}
	if tenant != nil {
		sc.TenantName = *tenant
	}
	if userID != nil {
		sc.UserID = *userID
	}
	if userEmail != nil {
		sc.UserEmail = *userEmail
	}
	if access != nil {
		sc.AccessLevel = AccessLevel(*access)
	}
	if security != nil {
		sc.SecurityLevel = *security
	}
	if remaining != nil {
		sc.RateLimitRemaining = *remaining
	}
	sc.SessionExpiresAt = expiresAt
	if message != nil {
		sc.ValidationMessage = *message
	}
	return &sc, nil
}

func classifyDBError(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ReasonInvalidResponse
	}
	return ReasonDatabaseConnection
}
