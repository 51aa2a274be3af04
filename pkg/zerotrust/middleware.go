// Package zerotrust is the gateway's request admission layer. Every request
// outside the bypass list walks a fixed state machine: extract credentials,
// consult the validation cache, run the legacy and enhanced validators in
// parallel, compare, then allow or deny. The legacy verdict always wins;
// disagreement is surfaced as an anomaly, never silently resolved.
package zerotrust

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/travisdw72/onevault-api-sub003/pkg/credentials"
	"github.com/travisdw72/onevault-api-sub003/pkg/errtrans"
	"github.com/travisdw72/onevault-api-sub003/pkg/httpx"
	"github.com/travisdw72/onevault-api-sub003/pkg/metrics"
	"github.com/travisdw72/onevault-api-sub003/pkg/validation"
	"github.com/travisdw72/onevault-api-sub003/pkg/vcache"
)

// State machine positions, exposed for logging.
const (
	StateUnvalidated          = "UNVALIDATED"
	StateCredentialsExtracted = "CREDENTIALS_EXTRACTED"
	StateCacheChecked         = "CACHE_CHECKED"
	StateValidating           = "VALIDATING"
	StateValidated            = "VALIDATED"
	StateAllowed              = "ALLOWED"
	StateDenied               = "DENIED"
)

// Diagnostic response headers. Observability only, never security-bearing.
const (
	HeaderStatus          = "X-Zero-Trust-Status"
	HeaderTenantValidated = "X-Tenant-Validated"
	HeaderPhase1          = "X-Phase1-Validation"
	HeaderDuration        = "X-Phase1-Duration"
	HeaderCacheHit        = "X-Phase1-Cache-Hit"
)

// Anomaly kinds reported through OnAnomaly.
const (
	AnomalyResultMismatch = "result_mismatch"
	AnomalyCrossTenant    = "cross_tenant_denied"
)

// Anomaly is a security-relevant event the gateway surfaces to operators
// without failing the request path.
type Anomaly struct {
	Kind          string             `json:"kind"`
	CorrelationID string             `json:"correlation_id"`
	TenantID      string             `json:"tenant_id"`
	Path          string             `json:"path"`
	Outcome       validation.Outcome `json:"outcome"`
	At            time.Time          `json:"at"`
}

// Decision summarizes one admission verdict for the audit trail. Emitted once
// per non-bypassed request, cached or fresh.
type Decision struct {
	CorrelationID string
	TenantID      string
	TokenHash     string
	UserEmail     string
	Allowed       bool
	ErrorCode     string
	ResultsMatch  bool
	CacheHit      bool
	DurationMS    int64
	Path          string
}

type Config struct {
	RequiredScope string
	BypassPaths   []string
	// Sequential disables parallel validator execution, for debugging.
	Sequential bool
	// TotalBudget bounds the whole validation step; exceeding it denies
	// the request with a translated timeout instead of hanging.
	TotalBudget time.Duration
}

type Middleware struct {
	Current  validation.Validator
	Enhanced validation.Validator
	Cache    *vcache.Cache
	Metrics  *metrics.Registry
	Logger   *log.Logger

	// OnAnomaly receives mismatch and cross-tenant events. Optional.
	OnAnomaly func(Anomaly)
	// OnDecision receives every allow/deny verdict. Optional.
	OnDecision func(Decision)

	cfg    Config
	bypass map[string]struct{}
	newID  func() string
}

func NewMiddleware(current, enhanced validation.Validator, cache *vcache.Cache, reg *metrics.Registry, cfg Config) *Middleware {
	if cfg.TotalBudget <= 0 {
		cfg.TotalBudget = 2 * time.Second
	}
	bypass := make(map[string]struct{}, len(cfg.BypassPaths))
	for _, p := range cfg.BypassPaths {
		p = strings.TrimSpace(p)
		if p != "" {
			bypass[p] = struct{}{}
		}
	}
	return &Middleware{
		Current:  current,
		Enhanced: enhanced,
		Cache:    cache,
		Metrics:  reg,
		Logger:   log.Default(),
		cfg:      cfg,
		bypass:   bypass,
		newID:    uuid.NewString,
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.bypass[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		correlationID := m.newID()
		start := time.Now()
		state := StateUnvalidated

		creds, err := credentials.Extract(r.Header)
		if err != nil {
			// Missing credentials never reach the database.
			m.finishHeaders(w, start, false, false)
			translated := m.deny(w, r, http.StatusUnauthorized, correlationID, state, err.Error())
			m.emitDecision(Decision{
				CorrelationID: correlationID,
				TenantID:      creds.Tenant,
				ErrorCode:     translated.ErrorCode,
				DurationMS:    time.Since(start).Milliseconds(),
				Path:          r.URL.Path,
			})
			return
		}
		state = StateCredentialsExtracted

		tokenHash := credentials.HashToken(creds.Token)
		req := validation.Request{
			TokenHash:     tokenHash,
			TenantID:      creds.Tenant,
			RequiredScope: m.cfg.RequiredScope,
		}

		outcome, hit := m.lookupCache(r.Context(), tokenHash, creds.Tenant)
		state = StateCacheChecked

		if !hit {
			state = StateValidating
			ctx, cancel := context.WithTimeout(r.Context(), m.cfg.TotalBudget)
			outcome = validation.RunParallel(ctx, m.Current, m.Enhanced, req, m.cfg.Sequential)
			cancel()
			state = StateValidated
			m.recordFreshOutcome(r, correlationID, creds.Tenant, outcome)
			m.storeCache(r.Context(), tokenHash, creds.Tenant, outcome)
		}

		// Legacy verdict decides; enhanced is comparison-only in phase 1.
		winning := outcome.Current
		tenantValidated := winning.Success && winning.Context != nil &&
			strings.EqualFold(winning.Context.TenantID, creds.Tenant)

		m.finishHeaders(w, start, hit, tenantValidated)

		decision := Decision{
			CorrelationID: correlationID,
			TenantID:      creds.Tenant,
			TokenHash:     tokenHash,
			ResultsMatch:  outcome.ResultsMatch,
			CacheHit:      hit,
			Path:          r.URL.Path,
		}
		if winning.Context != nil {
			decision.UserEmail = winning.Context.UserEmail
		}

		if !winning.Success {
			translated := m.deny(w, r, http.StatusUnauthorized, correlationID, state, denialText(winning))
			decision.ErrorCode = translated.ErrorCode
			decision.DurationMS = time.Since(start).Milliseconds()
			m.emitDecision(decision)
			return
		}
		if !tenantValidated {
			// Token is valid but belongs to a different tenant. Always a
			// hard deny, logged distinctly from ordinary auth failures.
			m.emitAnomaly(Anomaly{
				Kind:          AnomalyCrossTenant,
				CorrelationID: correlationID,
				TenantID:      creds.Tenant,
				Path:          r.URL.Path,
				Outcome:       outcome,
				At:            time.Now().UTC(),
			})
			translated := m.deny(w, r, http.StatusForbidden, correlationID, state, "cross-tenant access attempt")
			decision.ErrorCode = translated.ErrorCode
			decision.DurationMS = time.Since(start).Milliseconds()
			m.emitDecision(decision)
			return
		}

		if m.Metrics != nil {
			m.Metrics.IncDecision(StateAllowed)
		}
		decision.Allowed = true
		decision.DurationMS = time.Since(start).Milliseconds()
		m.emitDecision(decision)
		ctx := WithSecurityContext(r.Context(), *winning.Context)
		ctx = WithCorrelationID(ctx, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) lookupCache(ctx context.Context, tokenHash, tenant string) (validation.Outcome, bool) {
	if m.Cache == nil {
		return validation.Outcome{}, false
	}
	out, ok := m.Cache.Get(ctx, tokenHash, tenant)
	if m.Metrics != nil {
		if ok {
			m.Metrics.IncCacheHit()
		} else {
			m.Metrics.IncCacheMiss()
		}
	}
	return out, ok
}

func (m *Middleware) storeCache(ctx context.Context, tokenHash, tenant string, out validation.Outcome) {
	if m.Cache == nil {
		return
	}
	m.Cache.Put(ctx, tokenHash, tenant, out)
}

// recordFreshOutcome emits the per-validation telemetry exactly once, on the
// request that actually ran the validators. Cache replays skip it.
func (m *Middleware) recordFreshOutcome(r *http.Request, correlationID, tenant string, out validation.Outcome) {
	if m.Metrics != nil {
		m.Metrics.ObserveValidatorLatency("legacy", time.Duration(out.Current.DurationMS)*time.Millisecond)
		m.Metrics.ObserveValidatorLatency("enhanced", time.Duration(out.Enhanced.DurationMS)*time.Millisecond)
		if out.Enhanced.Context != nil && out.Enhanced.Context.TokenExtended {
			m.Metrics.IncTokenExtended()
		}
	}
	if out.ResultsMatch {
		return
	}
	if m.Metrics != nil {
		m.Metrics.IncMismatch()
	}
	m.logf("validator mismatch correlation_id=%s tenant=%s legacy_success=%t enhanced_success=%t enhanced_reason=%q",
		correlationID, tenant, out.Current.Success, out.Enhanced.Success, out.Enhanced.ErrorReason)
	m.emitAnomaly(Anomaly{
		Kind:          AnomalyResultMismatch,
		CorrelationID: correlationID,
		TenantID:      tenant,
		Path:          r.URL.Path,
		Outcome:       out,
		At:            time.Now().UTC(),
	})
}

func (m *Middleware) emitAnomaly(a Anomaly) {
	if m.OnAnomaly != nil {
		m.OnAnomaly(a)
	}
}

func (m *Middleware) emitDecision(d Decision) {
	if m.OnDecision != nil {
		m.OnDecision(d)
	}
}

func (m *Middleware) finishHeaders(w http.ResponseWriter, start time.Time, cacheHit, tenantValidated bool) {
	h := w.Header()
	h.Set(HeaderPhase1, "enabled")
	h.Set(HeaderDuration, fmt.Sprintf("%.2fms", float64(time.Since(start).Microseconds())/1000))
	h.Set(HeaderCacheHit, fmt.Sprintf("%t", cacheHit))
	h.Set(HeaderTenantValidated, fmt.Sprintf("%t", tenantValidated))
	if tenantValidated {
		h.Set(HeaderStatus, "validated")
	} else {
		h.Set(HeaderStatus, "denied")
	}
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, status int, correlationID, state, raw string) errtrans.TranslatedError {
	translated := errtrans.Translate(raw, correlationID)
	// Raw detail stays server-side, keyed by correlation id.
	m.logf("denied path=%s status=%d state=%s code=%s correlation_id=%s raw=%q",
		r.URL.Path, status, state, translated.ErrorCode, correlationID, raw)
	if m.Metrics != nil {
		m.Metrics.IncDecision(StateDenied)
		m.Metrics.IncErrorCode(translated.ErrorCode)
	}
	httpx.WriteJSON(w, status, translated)
	return translated
}

func (m *Middleware) logf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Printf(format, args...)
	}
}

// denialText prefers the structured reason so translation stays deterministic
// even when the routine message varies.
func denialText(res validation.Result) string {
	if res.ErrorReason != "" {
		return res.ErrorReason
	}
	if res.Context != nil && res.Context.ValidationMessage != "" {
		return res.Context.ValidationMessage
	}
	return "invalid token"
}
