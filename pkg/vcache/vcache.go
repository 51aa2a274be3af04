// Package vcache caches full validation outcomes keyed by token hash and
// tenant. Positive entries live minutes, negative entries seconds, so a
// revoked or expired token never coasts on a stale grant for long.
package vcache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/travisdw72/onevault-api-sub003/pkg/store"
	"github.com/travisdw72/onevault-api-sub003/pkg/validation"
)

const keyPrefix = "ztv:"

// Cache is a best-effort layer: any backend failure reads as a miss and
// writes are dropped silently, keeping the validators on the hot path.
type Cache struct {
	Backend     store.Cache
	PositiveTTL time.Duration
	NegativeTTL time.Duration
}

func New(backend store.Cache, positive, negative time.Duration) *Cache {
	if positive <= 0 {
		positive = 5 * time.Minute
	}
	if negative <= 0 {
		negative = 60 * time.Second
	}
	return &Cache{Backend: backend, PositiveTTL: positive, NegativeTTL: negative}
}

// Key derives the cache key. Tenant is part of the key so the same token
// presented against another tenant can never replay a cached grant.
func Key(tokenHash, tenantID string) string {
	return keyPrefix + tokenHash + ":" + strings.ToLower(tenantID)
}

type entry struct {
	Outcome validation.Outcome `json:"outcome"`
	Stored  time.Time          `json:"stored_at"`
}

// Get returns the cached outcome for the token/tenant pair, or ok=false on
// miss or any backend error.
func (c *Cache) Get(ctx context.Context, tokenHash, tenantID string) (validation.Outcome, bool) {
	raw, err := c.Backend.Get(ctx, Key(tokenHash, tenantID))
	if err != nil {
		return validation.Outcome{}, false
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return validation.Outcome{}, false
	}
	e.Outcome.CacheHit = true
	return e.Outcome, true
}

// Put stores the outcome with the TTL matching its verdict. Denials are
// cached too: repeated bad tokens replay the same error without touching the
// database, just not for long.
func (c *Cache) Put(ctx context.Context, tokenHash, tenantID string, out validation.Outcome) {
	ttl := c.NegativeTTL
	if out.Current.Success {
		ttl = c.PositiveTTL
	}
	out.CacheHit = false
	raw, err := json.Marshal(entry{Outcome: out, Stored: time.Now().UTC()})
	if err != nil {
		return
	}
	_ = c.Backend.Set(ctx, Key(tokenHash, tenantID), string(raw), ttl)
}

// Invalidate drops the entry for the pair, used on explicit revocation. A
// token is issued to exactly one tenant, so the pair key is the only entry
// that can exist for it; dropping it leaves no cached grant behind.
func (c *Cache) Invalidate(ctx context.Context, tokenHash, tenantID string) error {
	return c.Backend.Del(ctx, Key(tokenHash, tenantID))
}
