// Package ratelimit enforces per-token request budgets at the gateway. Keys
// are tenant-scoped token hashes, so throttling one credential never affects
// another tenant.
package ratelimit

import (
	"sync"
	"time"
)

type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(key string, limit int) Decision
}

// TokenKey builds the limiter key from the tenant and the token hash. Raw
// token values never appear in limiter keys.
func TokenKey(tenantID, tokenHash string) string {
	return tenantID + ":" + tokenHash
}

type InMemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	windows map[string]window
}

type window struct {
	count   int
	resetAt time.Time
}

func NewInMemory(windowSize time.Duration) *InMemoryLimiter {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	return &InMemoryLimiter{
		window:  windowSize,
		windows: make(map[string]window),
	}
}

func (l *InMemoryLimiter) Allow(key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanup(now)
	curr, ok := l.windows[key]
	if !ok || now.After(curr.resetAt) {
		curr = window{resetAt: now.Add(l.window)}
	}
	curr.count++
	l.windows[key] = curr
	remaining := limit - curr.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   curr.count <= limit,
		Count:     curr.count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   curr.resetAt,
	}
}

func (l *InMemoryLimiter) cleanup(now time.Time) {
	for k, v := range l.windows {
		if now.After(v.resetAt) {
			delete(l.windows, k)
		}
	}
}
