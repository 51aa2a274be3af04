package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/travisdw72/onevault-api-sub003/pkg/errtrans"
	"github.com/travisdw72/onevault-api-sub003/pkg/httpx"
	"github.com/travisdw72/onevault-api-sub003/pkg/validation"
	"github.com/travisdw72/onevault-api-sub003/pkg/zerotrust"
)

// Incident is one operator-visible security event: a validator mismatch, a
// cross-tenant denial or a throttled token.
type Incident struct {
	IncidentID     string          `json:"incident_id"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	Severity       string          `json:"severity"`
	Category       string          `json:"category"`
	ReasonCode     string          `json:"reason_code"`
	Status         string          `json:"status"`
	Title          string          `json:"title"`
	Details        json.RawMessage `json:"details,omitempty"`
	AcknowledgedBy string          `json:"acknowledged_by,omitempty"`
	ResolvedBy     string          `json:"resolved_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

const incidentColumns = `incident_id, COALESCE(correlation_id, ''), severity, category, reason_code, status, title, details, COALESCE(acknowledged_by, ''), COALESCE(resolved_by, ''), created_at, updated_at, resolved_at`

// tenantScope restricts incident visibility to the caller's tenant unless the
// token carries ADMIN access.
func (s *Server) tenantScope(ctx context.Context) (string, bool) {
	sc, ok := zerotrust.SecurityContextFromContext(ctx)
	if !ok {
		return "", false
	}
	if sc.AccessLevel == validation.AccessAdmin {
		return "", false
	}
	return sc.TenantID, true
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	statusFilter := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	baseQuery := `SELECT ` + incidentColumns + ` FROM zt_incidents`
	var (
		rows pgx.Rows
		err  error
	)
	tenant, scoped := s.tenantScope(r.Context())
	if statusFilter == "" {
		if scoped {
			rows, err = s.DB.Query(r.Context(), baseQuery+` WHERE tenant=$1 ORDER BY created_at DESC LIMIT $2`, tenant, limit)
		} else {
			rows, err = s.DB.Query(r.Context(), baseQuery+` ORDER BY created_at DESC LIMIT $1`, limit)
		}
	} else {
		if scoped {
			rows, err = s.DB.Query(r.Context(), baseQuery+` WHERE tenant=$1 AND status=$2 ORDER BY created_at DESC LIMIT $3`, tenant, statusFilter, limit)
		} else {
			rows, err = s.DB.Query(r.Context(), baseQuery+` WHERE status=$1 ORDER BY created_at DESC LIMIT $2`, statusFilter, limit)
		}
	}
	if err != nil {
		httpx.Error(w, 500, "failed to list incidents")
		return
	}
	defer rows.Close()
	items := make([]Incident, 0, limit)
	for rows.Next() {
		var item Incident
		if err := scanIncident(rows, &item); err == nil {
			items = append(items, item)
		}
	}
	httpx.WriteJSON(w, 200, map[string]interface{}{"items": items})
}

func scanIncident(row pgx.Row, item *Incident) error {
	return row.Scan(
		&item.IncidentID,
		&item.CorrelationID,
		&item.Severity,
		&item.Category,
		&item.ReasonCode,
		&item.Status,
		&item.Title,
		&item.Details,
		&item.AcknowledgedBy,
		&item.ResolvedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.ResolvedAt,
	)
}

func (s *Server) patchIncident(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incident_id")
	var req struct {
		Status string `json:"status"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		if sc, ok := zerotrust.SecurityContextFromContext(r.Context()); ok {
			actor = sc.UserEmail
		}
	}
	if actor == "" {
		httpx.Error(w, 400, "actor required")
		return
	}
	tenant, scoped := s.tenantScope(r.Context())
	switch status {
	case incidentStatusAcknowledged:
		var (
			cmd pgconn.CommandTag
			err error
		)
		if scoped {
			cmd, err = s.DB.Exec(r.Context(), `
				UPDATE zt_incidents
				SET status=$2, acknowledged_by=$3, updated_at=now()
				WHERE incident_id=$1 AND status=$4 AND tenant=$5
			`, incidentID, incidentStatusAcknowledged, actor, incidentStatusOpen, tenant)
		} else {
			cmd, err = s.DB.Exec(r.Context(), `
				UPDATE zt_incidents
				SET status=$2, acknowledged_by=$3, updated_at=now()
				WHERE incident_id=$1 AND status=$4
			`, incidentID, incidentStatusAcknowledged, actor, incidentStatusOpen)
		}
		if err != nil {
			httpx.Error(w, 500, "incident update failed")
			return
		}
		if cmd.RowsAffected() == 0 {
			httpx.Error(w, 409, "incident is not open")
			return
		}
		s.publishRefresh()
	case incidentStatusResolved:
		var (
			cmd pgconn.CommandTag
			err error
		)
		if scoped {
			cmd, err = s.DB.Exec(r.Context(), `
				UPDATE zt_incidents
				SET status=$2, resolved_by=$3, resolved_at=now(), updated_at=now()
				WHERE incident_id=$1 AND status IN ($4,$5) AND tenant=$6
			`, incidentID, incidentStatusResolved, actor, incidentStatusOpen, incidentStatusAcknowledged, tenant)
		} else {
			cmd, err = s.DB.Exec(r.Context(), `
				UPDATE zt_incidents
				SET status=$2, resolved_by=$3, resolved_at=now(), updated_at=now()
				WHERE incident_id=$1 AND status IN ($4,$5)
			`, incidentID, incidentStatusResolved, actor, incidentStatusOpen, incidentStatusAcknowledged)
		}
		if err != nil {
			httpx.Error(w, 500, "incident update failed")
			return
		}
		if cmd.RowsAffected() == 0 {
			httpx.Error(w, 409, "incident is already resolved")
			return
		}
		s.publishRefresh()
	default:
		httpx.Error(w, 400, "status must be ACKNOWLEDGED or RESOLVED")
		return
	}
	var row pgx.Row
	if scoped {
		row = s.DB.QueryRow(r.Context(), `SELECT `+incidentColumns+` FROM zt_incidents WHERE incident_id=$1 AND tenant=$2`, incidentID, tenant)
	} else {
		row = s.DB.QueryRow(r.Context(), `SELECT `+incidentColumns+` FROM zt_incidents WHERE incident_id=$1`, incidentID)
	}
	var item Incident
	if err := scanIncident(row, &item); err != nil {
		httpx.Error(w, 404, "incident not found")
		return
	}
	httpx.WriteJSON(w, 200, item)
}

func (s *Server) raiseAnomalyIncident(ctx context.Context, a zerotrust.Anomaly) {
	if s.DB == nil {
		return
	}
	severity := "MEDIUM"
	reasonCode := "VALIDATION_MISMATCH"
	title := "Validation paths disagreed"
	if a.Kind == zerotrust.AnomalyCrossTenant {
		severity = "HIGH"
		reasonCode = errtrans.CodeCrossTenant
		title = "Cross-tenant access attempt"
	}
	details, _ := json.Marshal(map[string]interface{}{
		"kind":             a.Kind,
		"path":             a.Path,
		"legacy_success":   a.Outcome.Current.Success,
		"enhanced_success": a.Outcome.Enhanced.Success,
		"enhanced_reason":  a.Outcome.Enhanced.ErrorReason,
		"cache_hit":        a.Outcome.CacheHit,
	})
	_, err := s.DB.Exec(ctx, `
		INSERT INTO zt_incidents(incident_id, tenant, correlation_id, severity, category, reason_code, status, title, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, uuid.New().String(), a.TenantID, nullIfEmpty(a.CorrelationID), severity, "ZERO_TRUST", reasonCode, incidentStatusOpen, title, details)
	if err == nil {
		s.publishRefresh()
	}
}

// raiseRateLimitIncident dedupes through the cache so a hammering client
// produces one incident per minute, not one per rejected request.
func (s *Server) raiseRateLimitIncident(ctx context.Context, tenant, key string) {
	if s.DB == nil || s.Cache == nil {
		return
	}
	ok, err := s.Cache.SetNX(ctx, "incident:ratelimit:"+key, "1", time.Minute)
	if err != nil || !ok {
		return
	}
	details, _ := json.Marshal(map[string]string{"limiter_key": key})
	_, _ = s.DB.Exec(ctx, `
		INSERT INTO zt_incidents(incident_id, tenant, severity, category, reason_code, status, title, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, uuid.New().String(), tenant, "MEDIUM", "ANOMALY", "RATE_LIMITED", incidentStatusOpen, "Rate limit exceeded for token", details)
}
