package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type Registry struct {
	mu             sync.RWMutex
	endpoint       map[string]*EndpointStat
	decision       map[string]int64
	errorCode      map[string]int64
	gauges         map[string]float64
	cacheHits      int64
	cacheMisses    int64
	mismatches     int64
	tokenExtended  int64
	validatorStats map[string]*LatencyStat
	Histograms     *HistogramRegistry
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type LatencyStat struct {
	Count   int64   `json:"count"`
	TotalMS int64   `json:"total_ms"`
	MaxMS   int64   `json:"max_ms"`
	LastMS  int64   `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
}

type Snapshot struct {
	GeneratedAt        string                  `json:"generated_at"`
	Endpoints          map[string]EndpointStat `json:"endpoints"`
	Decisions          map[string]int64        `json:"decisions"`
	ErrorCodes         map[string]int64        `json:"error_codes"`
	Gauges             map[string]float64      `json:"gauges"`
	CacheHits          int64                   `json:"validation_cache_hits_total"`
	CacheMisses        int64                   `json:"validation_cache_misses_total"`
	ResultMismatches   int64                   `json:"validation_mismatches_total"`
	TokensExtended     int64                   `json:"tokens_extended_total"`
	ValidatorLatencyMS map[string]LatencyStat  `json:"validator_latency_ms"`
	Histograms         []HistogramSnapshot     `json:"histograms,omitempty"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:       map[string]*EndpointStat{},
		decision:       map[string]int64{},
		errorCode:      map[string]int64{},
		gauges:         map[string]float64{},
		validatorStats: map[string]*LatencyStat{},
		Histograms:     NewHistogramRegistry(),
	}
}

func (r *Registry) ObserveLatency(endpoint string, d time.Duration) {
	r.Histograms.ObserveDuration(endpoint, d)
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

// IncDecision counts terminal gateway outcomes (ALLOWED, DENIED).
func (r *Registry) IncDecision(decision string) {
	decision = strings.TrimSpace(strings.ToUpper(decision))
	if decision == "" {
		return
	}
	r.mu.Lock()
	r.decision[decision]++
	r.mu.Unlock()
}

// IncErrorCode counts translated denial codes (AUTH_TOKEN_EXPIRED, ...).
func (r *Registry) IncErrorCode(code string) {
	if code == "" {
		return
	}
	r.mu.Lock()
	r.errorCode[code]++
	r.mu.Unlock()
}

func (r *Registry) IncCacheHit() {
	r.mu.Lock()
	r.cacheHits++
	r.mu.Unlock()
}

func (r *Registry) IncCacheMiss() {
	r.mu.Lock()
	r.cacheMisses++
	r.mu.Unlock()
}

// IncMismatch counts legacy/enhanced disagreements, one per request.
func (r *Registry) IncMismatch() {
	r.mu.Lock()
	r.mismatches++
	r.mu.Unlock()
}

func (r *Registry) IncTokenExtended() {
	r.mu.Lock()
	r.tokenExtended++
	r.mu.Unlock()
}

// ObserveValidatorLatency records per-validator timing under a stable name
// ("legacy", "enhanced").
func (r *Registry) ObserveValidatorLatency(validator string, d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.validatorStats[validator]
	if !ok {
		stat = &LatencyStat{}
		r.validatorStats[validator] = stat
	}
	stat.Count++
	stat.TotalMS += ms
	stat.LastMS = ms
	if ms > stat.MaxMS {
		stat.MaxMS = ms
	}
	stat.AvgMS = float64(stat.TotalMS) / float64(stat.Count)
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt:        time.Now().UTC().Format(time.RFC3339),
		Endpoints:          make(map[string]EndpointStat, len(r.endpoint)),
		Decisions:          make(map[string]int64, len(r.decision)),
		ErrorCodes:         make(map[string]int64, len(r.errorCode)),
		Gauges:             make(map[string]float64, len(r.gauges)),
		CacheHits:          r.cacheHits,
		CacheMisses:        r.cacheMisses,
		ResultMismatches:   r.mismatches,
		TokensExtended:     r.tokenExtended,
		ValidatorLatencyMS: make(map[string]LatencyStat, len(r.validatorStats)),
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.decision {
		out.Decisions[k] = v
	}
	for k, v := range r.errorCode {
		out.ErrorCodes[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	for k, v := range r.validatorStats {
		out.ValidatorLatencyMS[k] = *v
	}
	out.Histograms = r.Histograms.Snapshots()
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP onevault_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE onevault_endpoint_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "onevault_endpoint_count{endpoint=%q} %d\n", ep, stat.Count)
		}
		b.WriteString("# HELP onevault_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE onevault_endpoint_error_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "onevault_endpoint_error_count{endpoint=%q} %d\n", ep, stat.ErrorCount)
		}
		b.WriteString("# HELP onevault_endpoint_avg_millis endpoint average latency in milliseconds\n")
		b.WriteString("# TYPE onevault_endpoint_avg_millis gauge\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "onevault_endpoint_avg_millis{endpoint=%q} %.3f\n", ep, stat.AverageMillis)
		}
		b.WriteString("# HELP onevault_zero_trust_decision_total gateway decisions by outcome\n")
		b.WriteString("# TYPE onevault_zero_trust_decision_total counter\n")
		for _, decision := range SortedKeys(snap.Decisions) {
			fmt.Fprintf(b, "onevault_zero_trust_decision_total{decision=%q} %d\n", decision, snap.Decisions[decision])
		}
		b.WriteString("# HELP onevault_zero_trust_error_total denials by translated error code\n")
		b.WriteString("# TYPE onevault_zero_trust_error_total counter\n")
		for _, code := range SortedKeys(snap.ErrorCodes) {
			fmt.Fprintf(b, "onevault_zero_trust_error_total{code=%q} %d\n", code, snap.ErrorCodes[code])
		}
		b.WriteString("# HELP onevault_validation_cache_hits_total validation cache hits\n")
		b.WriteString("# TYPE onevault_validation_cache_hits_total counter\n")
		fmt.Fprintf(b, "onevault_validation_cache_hits_total %d\n", snap.CacheHits)
		b.WriteString("# HELP onevault_validation_cache_misses_total validation cache misses\n")
		b.WriteString("# TYPE onevault_validation_cache_misses_total counter\n")
		fmt.Fprintf(b, "onevault_validation_cache_misses_total %d\n", snap.CacheMisses)
		b.WriteString("# HELP onevault_validation_mismatch_total legacy/enhanced validator disagreements\n")
		b.WriteString("# TYPE onevault_validation_mismatch_total counter\n")
		fmt.Fprintf(b, "onevault_validation_mismatch_total %d\n", snap.ResultMismatches)
		b.WriteString("# HELP onevault_tokens_extended_total automatic token expiry extensions\n")
		b.WriteString("# TYPE onevault_tokens_extended_total counter\n")
		fmt.Fprintf(b, "onevault_tokens_extended_total %d\n", snap.TokensExtended)
		b.WriteString("# HELP onevault_validator_latency_ms per-validator latency in ms\n")
		b.WriteString("# TYPE onevault_validator_latency_ms gauge\n")
		for _, name := range SortedKeys(snap.ValidatorLatencyMS) {
			stat := snap.ValidatorLatencyMS[name]
			fmt.Fprintf(b, "onevault_validator_latency_ms{validator=%q,stat=%q} %d\n", name, "last", stat.LastMS)
			fmt.Fprintf(b, "onevault_validator_latency_ms{validator=%q,stat=%q} %.3f\n", name, "avg", stat.AvgMS)
			fmt.Fprintf(b, "onevault_validator_latency_ms{validator=%q,stat=%q} %d\n", name, "max", stat.MaxMS)
		}
		b.WriteString("# HELP onevault_gauge operational gauge metrics\n")
		b.WriteString("# TYPE onevault_gauge gauge\n")
		for _, name := range SortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "onevault_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		for _, h := range snap.Histograms {
			b.WriteString("# HELP onevault_latency_seconds latency histogram\n")
			b.WriteString("# TYPE onevault_latency_seconds histogram\n")
			for _, bucket := range h.Buckets {
				fmt.Fprintf(b, "onevault_latency_seconds_bucket{endpoint=%q,le=\"%.3f\"} %d\n", h.Name, bucket.Le, bucket.Count)
			}
			fmt.Fprintf(b, "onevault_latency_seconds_bucket{endpoint=%q,le=\"+Inf\"} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "onevault_latency_seconds_sum{endpoint=%q} %.6f\n", h.Name, h.Sum)
			fmt.Fprintf(b, "onevault_latency_seconds_count{endpoint=%q} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "onevault_latency_p50_seconds{endpoint=%q} %.6f\n", h.Name, h.P50)
			fmt.Fprintf(b, "onevault_latency_p95_seconds{endpoint=%q} %.6f\n", h.Name, h.P95)
			fmt.Fprintf(b, "onevault_latency_p99_seconds{endpoint=%q} %.6f\n", h.Name, h.P99)
		}

		_, _ = w.Write([]byte(b.String()))
	}
}

func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
