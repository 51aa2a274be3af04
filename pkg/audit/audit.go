// Package audit persists one row per gateway decision. Rows are keyed by
// correlation id so the detailed entry behind any client-visible denial can
// be found from the id alone.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Writer struct {
	DB       auditDB
	HashSalt []byte
	Redact   bool
}

type Record struct {
	CorrelationID string
	Tenant        string
	TokenHash     string
	UserEmail     string
	Decision      string
	ErrorCode     string
	ResultsMatch  bool
	CacheHit      bool
	DurationMS    int64
	Detail        json.RawMessage
	CreatedAt     time.Time
}

func (w *Writer) Append(ctx context.Context, rec Record) error {
	if w.Redact {
		rec = redactRecord(rec, w.HashSalt)
	}
	_, err := w.DB.Exec(ctx, `
		INSERT INTO zt_validation_audit
		(correlation_id, tenant, token_hash, user_email, decision, error_code, results_match, cache_hit, duration_ms, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, rec.CorrelationID, rec.Tenant, rec.TokenHash, rec.UserEmail, rec.Decision, rec.ErrorCode, rec.ResultsMatch, rec.CacheHit, rec.DurationMS, rec.Detail, rec.CreatedAt)
	return err
}

func (w *Writer) Get(ctx context.Context, correlationID, tenant string) (Record, error) {
	var rec Record
	if tenant != "" {
		row := w.DB.QueryRow(ctx, `
			SELECT correlation_id, tenant, token_hash, user_email, decision, error_code, results_match, cache_hit, duration_ms, detail, created_at
			FROM zt_validation_audit WHERE tenant=$1 AND correlation_id=$2
		`, tenant, correlationID)
		return rec, scanRecord(row, &rec)
	}
	row := w.DB.QueryRow(ctx, `
		SELECT correlation_id, tenant, token_hash, user_email, decision, error_code, results_match, cache_hit, duration_ms, detail, created_at
		FROM zt_validation_audit WHERE correlation_id=$1
	`, correlationID)
	return rec, scanRecord(row, &rec)
}

func scanRecord(row pgx.Row, rec *Record) error {
	var detail json.RawMessage
	if err := row.Scan(&rec.CorrelationID, &rec.Tenant, &rec.TokenHash, &rec.UserEmail, &rec.Decision, &rec.ErrorCode, &rec.ResultsMatch, &rec.CacheHit, &rec.DurationMS, &detail, &rec.CreatedAt); err != nil {
		return err
	}
	rec.Detail = detail
	return nil
}
