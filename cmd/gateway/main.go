package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/travisdw72/onevault-api-sub003/pkg/audit"
	"github.com/travisdw72/onevault-api-sub003/pkg/credentials"
	"github.com/travisdw72/onevault-api-sub003/pkg/events"
	"github.com/travisdw72/onevault-api-sub003/pkg/hardening"
	"github.com/travisdw72/onevault-api-sub003/pkg/httpx"
	"github.com/travisdw72/onevault-api-sub003/pkg/metrics"
	"github.com/travisdw72/onevault-api-sub003/pkg/ratelimit"
	"github.com/travisdw72/onevault-api-sub003/pkg/store"
	"github.com/travisdw72/onevault-api-sub003/pkg/stream"
	"github.com/travisdw72/onevault-api-sub003/pkg/telemetry"
	"github.com/travisdw72/onevault-api-sub003/pkg/validation"
	"github.com/travisdw72/onevault-api-sub003/pkg/vcache"
	"github.com/travisdw72/onevault-api-sub003/pkg/zerotrust"
)

type gatewayDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type auditStore interface {
	Append(ctx context.Context, rec audit.Record) error
	Get(ctx context.Context, correlationID, tenant string) (audit.Record, error)
}

type anomalyPublisher interface {
	Publish(ctx context.Context, tenant string, payload any) error
}

type anomalyBus interface {
	ReadMessage(ctx context.Context) (events.Message, error)
	Close() error
}

const (
	incidentStatusOpen         = "OPEN"
	incidentStatusAcknowledged = "ACKNOWLEDGED"
	incidentStatusResolved     = "RESOLVED"
)

// Server holds the wired gateway. Everything behind an interface here has a
// fake in the tests.
type Server struct {
	DB      gatewayDB
	Cache   store.Cache
	Redis   *redis.Client
	Metrics *metrics.Registry
	Audit   auditStore
	Events  *stream.Hub
	Kafka   anomalyPublisher
	Bus     anomalyBus

	// KafkaPipeline moves incident raising and hub fan-out behind the
	// anomaly topic: the publishing replica only writes to kafka, and the
	// consumer group raises each incident exactly once.
	KafkaPipeline bool

	ZeroTrust *zerotrust.Middleware
	VCache    *vcache.Cache

	RateLimiter       ratelimit.Limiter
	RateLimitEnabled  bool
	RateLimitPerToken int
	RateLimitWindow   time.Duration

	AdminToken          string
	RetentionEnabled    bool
	RetentionDays       int
	RetentionInterval   time.Duration
	MaxRequestBodyBytes int64
}

type gatewayDBCloser interface {
	gatewayDB
	Close()
}

type gatewayInitTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type gatewayOpenDBFunc func(ctx context.Context) (gatewayDBCloser, error)
type gatewayOpenRedisFunc func(ctx context.Context) (*redis.Client, error)
type gatewayListenFunc func(server *http.Server) error
type gatewayStartLoopsFunc func(s *Server)

// Testable variables for main()
var (
	logFatalf      = log.Fatalf
	initTelemetryG = telemetry.Init
	openDBFnG      = func(ctx context.Context) (gatewayDBCloser, error) { return store.NewPostgresPool(ctx) }
	openRedisFnG   = store.NewRedis
	listenFnG      = func(server *http.Server) error { return server.ListenAndServe() }
	startLoopsFnG  = func(s *Server) {
		if s.RetentionEnabled {
			go s.retentionLoop(context.Background())
		}
		if s.Bus != nil {
			go s.consumeAnomalies(context.Background())
		}
		go s.metricsLoop(context.Background())
	}
)

func main() {
	if err := runGateway(initTelemetryG, openDBFnG, openRedisFnG, listenFnG, startLoopsFnG); err != nil {
		logFatalf("gateway: %v", err)
	}
}

func runGateway(
	initTelemetry gatewayInitTelemetryFunc,
	openDB gatewayOpenDBFunc,
	openRedis gatewayOpenRedisFunc,
	listen gatewayListenFunc,
	startLoops gatewayStartLoopsFunc,
) error {
	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "onevault-gateway")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	pool, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	// Refuse to serve traffic against a database whose validation routines
	// drifted from the shapes the validators compile against.
	contractCtx, cancelContract := context.WithTimeout(ctx, envDurationSec("CONTRACT_CHECK_TIMEOUT_SEC", 10))
	err = validation.CheckContracts(contractCtx, pool)
	cancelContract()
	if err != nil {
		return fmt.Errorf("validation contracts: %w", err)
	}

	redisClient, err := openRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache/limits: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := store.NewCache(ctx, redisClient)

	adminToken := env("ADMIN_API_TOKEN", "")
	hardenOpts := hardening.FromEnv("gateway")
	hardenOpts.RequiredServiceSecrets = []hardening.EnvRequirement{
		{Name: "ADMIN_API_TOKEN", Value: adminToken},
	}
	if err := hardening.ValidateProduction(hardenOpts); err != nil {
		return err
	}

	auditSalt := env("AUDIT_HASH_SALT", "")
	auditRedact := strings.EqualFold(strings.TrimSpace(env("AUDIT_REDACT", "false")), "true")

	rateLimitWindow := envDurationSec("RATE_LIMIT_WINDOW_SEC", 60)
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	maxRequestBodyBytes := int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20))
	if maxRequestBodyBytes <= 0 {
		maxRequestBodyBytes = 1 << 20
	}

	legacy := validation.NewLegacyValidator(pool,
		time.Millisecond*time.Duration(envInt("LEGACY_VALIDATOR_TIMEOUT_MS", 1500)))
	enhanced := validation.NewEnhancedValidator(pool,
		time.Millisecond*time.Duration(envInt("ENHANCED_VALIDATOR_TIMEOUT_MS", 500)),
		validation.ExtensionPolicy{
			AutoExtend:    env("TOKEN_AUTO_EXTEND", "true") == "true",
			ThresholdDays: envInt("TOKEN_EXTEND_THRESHOLD_DAYS", 7),
			ExtensionDays: envInt("TOKEN_EXTEND_DAYS", 30),
		})
	vc := vcache.New(cache,
		envDurationSec("VALIDATION_CACHE_POSITIVE_TTL_SEC", 300),
		envDurationSec("VALIDATION_CACHE_NEGATIVE_TTL_SEC", 60))
	reg := metrics.NewRegistry()

	ztm := zerotrust.NewMiddleware(legacy, enhanced, vc, reg, zerotrust.Config{
		RequiredScope: env("ZERO_TRUST_REQUIRED_SCOPE", "api:access"),
		BypassPaths:   strings.Split(env("ZERO_TRUST_BYPASS_PATHS", "/healthz"), ","),
		Sequential:    env("VALIDATION_SEQUENTIAL", "false") == "true",
		TotalBudget:   time.Millisecond * time.Duration(envInt("VALIDATION_TOTAL_BUDGET_MS", 2000)),
	})

	s := &Server{
		DB:                  pool,
		Cache:               cache,
		Redis:               redisClient,
		Metrics:             reg,
		Audit:               &audit.Writer{DB: pool, HashSalt: []byte(auditSalt), Redact: auditRedact},
		Events:              stream.NewHub(),
		ZeroTrust:           ztm,
		VCache:              vc,
		RateLimitEnabled:    env("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitPerToken:   envInt("RATE_LIMIT_PER_TOKEN", 240),
		RateLimitWindow:     rateLimitWindow,
		AdminToken:          adminToken,
		RetentionEnabled:    env("RETENTION_ENABLED", "false") == "true",
		RetentionDays:       envInt("RETENTION_DAYS", 90),
		RetentionInterval:   envDurationSec("RETENTION_INTERVAL_SEC", 3600),
		MaxRequestBodyBytes: maxRequestBodyBytes,
	}
	if brokers := env("KAFKA_BROKERS", ""); brokers != "" {
		busCfg := events.Config{
			Brokers: strings.Split(brokers, ","),
			Topic:   env("KAFKA_ANOMALY_TOPIC", "onevault.zero-trust.anomalies"),
			GroupID: env("KAFKA_GROUP_ID", ""),
		}
		publisher, err := events.NewPublisher(busCfg)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		s.Kafka = publisher
		if busCfg.GroupID != "" {
			consumer, err := events.NewConsumer(busCfg)
			if err != nil {
				return fmt.Errorf("kafka: %w", err)
			}
			defer func() { _ = consumer.Close() }()
			s.Bus = consumer
			s.KafkaPipeline = true
		}
	}
	if s.RateLimitEnabled {
		if redisClient != nil {
			s.RateLimiter = ratelimit.NewRedis(redisClient, rateLimitWindow)
		} else {
			s.RateLimiter = ratelimit.NewInMemory(rateLimitWindow)
		}
	}
	ztm.OnAnomaly = s.handleAnomaly
	ztm.OnDecision = s.recordDecision

	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("onevault-gateway"))
	r.Use(s.limitRequestBodyMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]string{"status": "ok", "service": "onevault-gateway"})
	})

	protected := chi.NewRouter()
	protected.Use(ztm.Handler)
	protected.Use(s.rateLimitMiddleware)
	protected.Get("/metrics", s.Metrics.Handler())
	protected.Get("/metrics/prometheus", s.Metrics.PrometheusHandler())
	protected.Get("/v1/session", s.handleSession)
	protected.Get("/v1/incidents", s.withAccess(s.listIncidents, validation.AccessElevated, validation.AccessAdmin))
	protected.Patch("/v1/incidents/{incident_id}", s.withAccess(s.patchIncident, validation.AccessElevated, validation.AccessAdmin))
	protected.Get("/v1/events/stream", s.withAccess(s.streamEvents, validation.AccessElevated, validation.AccessAdmin))
	protected.Post("/v1/admin/tokens/revoke", s.withAdmin(s.revokeToken))
	protected.Get("/v1/admin/audit/{correlation_id}", s.withAdmin(s.getAudit))
	r.Mount("/", protected)

	if startLoops != nil {
		startLoops(s)
	}

	addr := env("ADDR", ":8080")
	log.Printf("gateway listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

// handleAnomaly fans one middleware anomaly out to the operator surfaces:
// incident row, live stream, kafka. Each leg is best-effort. With the kafka
// pipeline enabled the local legs are skipped on a successful publish; the
// consumer group runs them when the event comes back through the topic.
func (s *Server) handleAnomaly(a zerotrust.Anomaly) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if s.Kafka != nil {
		if err := s.Kafka.Publish(ctx, a.TenantID, a); err != nil {
			log.Printf("kafka anomaly publish failed correlation_id=%s: %v", a.CorrelationID, err)
		} else if s.KafkaPipeline {
			return
		}
	}
	s.raiseAnomalyIncident(ctx, a)
	if s.Events != nil {
		s.Events.Publish(stream.NewEvent("anomaly", a.TenantID, a))
	}
}

// consumeAnomalies tails the anomaly topic and raises database-backed
// incidents plus the live stream fan-out for each event. Runs until the
// context is canceled; read and decode failures skip the message.
func (s *Server) consumeAnomalies(ctx context.Context) {
	for {
		msg, err := s.Bus.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("anomaly bus read error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		var a zerotrust.Anomaly
		if err := json.Unmarshal(msg.Value, &a); err != nil {
			log.Printf("anomaly bus decode error: %v", err)
			continue
		}
		opCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		s.raiseAnomalyIncident(opCtx, a)
		cancel()
		if s.Events != nil {
			s.Events.Publish(stream.NewEvent("anomaly", a.TenantID, a))
		}
	}
}

func (s *Server) recordDecision(d zerotrust.Decision) {
	if s.Audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	verdict := zerotrust.StateDenied
	if d.Allowed {
		verdict = zerotrust.StateAllowed
	}
	detail, _ := json.Marshal(map[string]any{"path": d.Path})
	err := s.Audit.Append(ctx, audit.Record{
		CorrelationID: d.CorrelationID,
		Tenant:        d.TenantID,
		TokenHash:     d.TokenHash,
		UserEmail:     d.UserEmail,
		Decision:      verdict,
		ErrorCode:     d.ErrorCode,
		ResultsMatch:  d.ResultsMatch,
		CacheHit:      d.CacheHit,
		DurationMS:    d.DurationMS,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Printf("audit append failed correlation_id=%s: %v", d.CorrelationID, err)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := zerotrust.SecurityContextFromContext(r.Context())
	if !ok {
		httpx.Error(w, 500, "security context missing")
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"session":        sc,
		"correlation_id": zerotrust.CorrelationIDFromContext(r.Context()),
	})
}

// withAccess gates a handler on the access level resolved by validation.
func (s *Server) withAccess(h http.HandlerFunc, levels ...validation.AccessLevel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := zerotrust.SecurityContextFromContext(r.Context())
		if !ok {
			httpx.Error(w, 401, "unauthenticated")
			return
		}
		for _, level := range levels {
			if sc.AccessLevel == level {
				h(w, r)
				return
			}
		}
		httpx.Error(w, 403, "insufficient access level")
	}
}

// withAdmin additionally requires the deployment admin token, so a stolen
// ADMIN-level API token alone cannot revoke credentials or read the audit
// trail.
func (s *Server) withAdmin(h http.HandlerFunc) http.HandlerFunc {
	gated := s.withAccess(h, validation.AccessAdmin)
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminToken == "" {
			httpx.Error(w, 503, "admin surface disabled")
			return
		}
		presented := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.AdminToken)) != 1 {
			httpx.Error(w, 403, "admin token required")
			return
		}
		gated(w, r)
	}
}

type revokeRequest struct {
	Token     string `json:"token,omitempty"`
	TokenHash string `json:"token_hash,omitempty"`
	TenantID  string `json:"tenant_id"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) revokeToken(w http.ResponseWriter, r *http.Request) {
	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}
	var req revokeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.Error(w, 400, "invalid json")
		return
	}
	tokenHash := strings.TrimSpace(req.TokenHash)
	if tokenHash == "" && req.Token != "" {
		tokenHash = credentials.HashToken(req.Token)
	}
	if tokenHash == "" || strings.TrimSpace(req.TenantID) == "" {
		httpx.Error(w, 400, "token or token_hash and tenant_id required")
		return
	}
	cmd, err := s.DB.Exec(r.Context(), `
		UPDATE auth.api_token_s
		SET revoked_at = now(), revoked_reason = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash, nullIfEmpty(req.Reason))
	if err != nil {
		httpx.Error(w, 500, "revocation failed")
		return
	}
	// Drop any cached grant immediately; the TTL must not outlive the
	// revocation. Tokens are single-tenant, so this pair is the only cache
	// entry the token can have.
	if s.VCache != nil {
		if err := s.VCache.Invalidate(r.Context(), tokenHash, req.TenantID); err != nil {
			log.Printf("cache invalidation failed token_hash=%s: %v", tokenHash, err)
		}
	}
	if s.Audit != nil {
		detail, _ := json.Marshal(map[string]string{"reason": req.Reason})
		_ = s.Audit.Append(r.Context(), audit.Record{
			CorrelationID: zerotrust.CorrelationIDFromContext(r.Context()),
			Tenant:        req.TenantID,
			TokenHash:     tokenHash,
			Decision:      "REVOKED",
			Detail:        detail,
			CreatedAt:     time.Now().UTC(),
		})
	}
	s.publishRefresh()
	httpx.WriteJSON(w, 200, map[string]any{
		"revoked":    cmd.RowsAffected() > 0,
		"token_hash": tokenHash,
	})
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlation_id")
	rec, err := s.Audit.Get(r.Context(), correlationID, r.URL.Query().Get("tenant"))
	if err != nil {
		httpx.Error(w, 404, "not found")
		return
	}
	httpx.WriteJSON(w, 200, rec)
}

// rateLimitMiddleware runs after validation, so limits are keyed by the
// tenant-scoped token hash rather than by IP.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, ok := zerotrust.SecurityContextFromContext(r.Context())
		if !ok || s.RateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		creds, err := credentials.Extract(r.Header)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		key := ratelimit.TokenKey(sc.TenantID, credentials.HashToken(creds.Token))
		decision := s.RateLimiter.Allow(key, s.RateLimitPerToken)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			s.raiseRateLimitIncident(r.Context(), sc.TenantID, key)
			httpx.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		sc.RateLimitRemaining = decision.Remaining
		next.ServeHTTP(w, r.WithContext(zerotrust.WithSecurityContext(r.Context(), sc)))
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		path := r.Method + " " + r.URL.Path
		s.Metrics.Observe(path, rec.code, elapsed)
		s.Metrics.ObserveLatency(path, elapsed)
	})
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.code = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

func (s *Server) publishRefresh() {
	if s.Events == nil {
		return
	}
	s.Events.Publish(stream.NewEvent("refresh", "", nil))
}

func (s *Server) retentionLoop(ctx context.Context) {
	interval := s.RetentionInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.applyRetention(ctx)
			if err != nil {
				log.Printf("retention run failed: %v", err)
				continue
			}
			log.Printf("retention run completed: %+v", report)
		}
	}
}

func (s *Server) applyRetention(ctx context.Context) (map[string]any, error) {
	days := s.RetentionDays
	if days <= 0 {
		days = 90
	}
	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	report := map[string]any{
		"cutoff": cutoff.Format(time.RFC3339),
		"days":   days,
		"tables": map[string]int64{},
	}
	tables := report["tables"].(map[string]int64)

	cmd, err := s.DB.Exec(ctx, `DELETE FROM zt_validation_audit WHERE created_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	tables["zt_validation_audit"] = cmd.RowsAffected()

	cmd, err = s.DB.Exec(ctx, `DELETE FROM zt_incidents WHERE status = $1 AND resolved_at < $2`,
		incidentStatusResolved, cutoff)
	if err != nil {
		return nil, err
	}
	tables["zt_incidents"] = cmd.RowsAffected()
	return report, nil
}

func (s *Server) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	s.updateOperationalMetrics(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateOperationalMetrics(ctx)
		}
	}
}

func (s *Server) updateOperationalMetrics(ctx context.Context) {
	if s.DB == nil || s.Metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var incidentsOpen int
	_ = s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM zt_incidents WHERE status=$1`, incidentStatusOpen).Scan(&incidentsOpen)
	s.Metrics.SetGauge("incidents_open", float64(incidentsOpen))
	var denials24h int
	_ = s.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM zt_validation_audit
		WHERE decision=$1 AND created_at > now() - interval '24 hours'
	`, zerotrust.StateDenied).Scan(&denials24h)
	s.Metrics.SetGauge("denials_24h", float64(denials24h))
	var mismatches24h int
	_ = s.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM zt_validation_audit
		WHERE results_match = false AND created_at > now() - interval '24 hours'
	`).Scan(&mismatches24h)
	s.Metrics.SetGauge("validation_mismatches_24h", float64(mismatches24h))
}

func readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}
	if strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	httpx.Error(w, http.StatusBadRequest, "invalid request body")
	return nil, false
}

func nullIfEmpty(value string) interface{} {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
