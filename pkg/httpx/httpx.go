// Package httpx holds the small HTTP helpers shared by the gateway: JSON
// writers, hardening headers and the CORS allowlist.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Headers the browser may send on credentialed gateway calls. Returned on
// preflight when the client does not ask for a specific set.
const defaultAllowHeaders = "Authorization,Content-Type,X-Tenant-Id,X-Customer-ID,X-API-Key,X-Admin-Token"

// Methods this gateway actually serves.
const allowMethods = "GET,POST,PATCH,OPTIONS"

var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Referrer-Policy":           "no-referrer",
	"Permissions-Policy":        "geolocation=(), camera=(), microphone=()",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'; base-uri 'none'",
	"Strict-Transport-Security": "max-age=63072000; includeSubDomains; preload",
	"Cache-Control":             "no-store",
}

// SecurityHeadersMiddleware applies baseline hardening headers. Cache-Control
// is no-store throughout; every response here carries tenant-scoped data.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range securityHeaders {
			h.Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

type corsPolicy struct {
	origins  map[string]struct{}
	allowAll bool
}

func (p corsPolicy) permits(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != ""
}

// CORSMiddleware enforces an explicit origin allowlist from a comma-separated
// list. Requests from unlisted origins pass through without CORS headers, so
// the browser blocks the read; preflights from unlisted origins fail hard.
func CORSMiddleware(allowedOrigins string) func(http.Handler) http.Handler {
	policy := corsPolicy{origins: map[string]struct{}{}}
	for _, part := range strings.Split(allowedOrigins, ",") {
		origin := strings.TrimSpace(part)
		switch origin {
		case "":
		case "*":
			policy.allowAll = true
		default:
			policy.origins[origin] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !policy.permits(origin) {
				if isPreflight(r) {
					http.Error(w, "origin not allowed", http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", allowMethods)
			requested := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
			if requested == "" {
				requested = defaultAllowHeaders
			}
			h.Set("Access-Control-Allow-Headers", requested)
			h.Set("Access-Control-Max-Age", "600")
			if isPreflight(r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes the plain {"error": msg} shape used for non-validation
// failures. Validation denials use the translated payload instead.
func Error(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]interface{}{"error": msg})
}
