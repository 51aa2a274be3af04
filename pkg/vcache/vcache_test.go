package vcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/travisdw72/onevault-api-sub003/pkg/store"
	"github.com/travisdw72/onevault-api-sub003/pkg/validation"
)

func allowedOutcome(tenant string) validation.Outcome {
	return validation.Outcome{
		Current:      validation.Result{Success: true, DurationMS: 12, Context: &validation.SecurityContext{TenantID: tenant, IsValid: true}},
		Enhanced:     validation.Result{Success: true, DurationMS: 8, Context: &validation.SecurityContext{TenantID: tenant, IsValid: true}},
		ResultsMatch: true,
	}
}

func deniedOutcome() validation.Outcome {
	return validation.Outcome{
		Current:  validation.Result{Success: false, ErrorReason: "token expired"},
		Enhanced: validation.Result{Success: false, ErrorReason: "token expired"},
	}
}

func TestCacheRoundTripMarksHit(t *testing.T) {
	t.Parallel()

	c := New(store.NewMemoryCache(), 0, 0)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "hash1", "tenant_1"); ok {
		t.Fatal("expected cold miss")
	}

	c.Put(ctx, "hash1", "tenant_1", allowedOutcome("tenant_1"))
	got, ok := c.Get(ctx, "hash1", "tenant_1")
	if !ok {
		t.Fatal("expected hit")
	}
	if !got.CacheHit {
		t.Fatal("replayed outcome must be marked as a cache hit")
	}
	if got.Current.Context == nil || got.Current.Context.TenantID != "tenant_1" {
		t.Fatal("security context must survive the round trip")
	}
}

func TestCacheKeyIsTenantScoped(t *testing.T) {
	t.Parallel()

	c := New(store.NewMemoryCache(), 0, 0)
	ctx := context.Background()

	c.Put(ctx, "hash1", "tenant_1", allowedOutcome("tenant_1"))
	if _, ok := c.Get(ctx, "hash1", "tenant_2"); ok {
		t.Fatal("grant for tenant_1 must not replay for tenant_2")
	}
	if Key("h", "Tenant_1") != Key("h", "tenant_1") {
		t.Fatal("tenant segment is case-folded")
	}
}

type recordingBackend struct {
	store.Cache
	lastTTL time.Duration
}

func (r *recordingBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	r.lastTTL = ttl
	return r.Cache.Set(ctx, key, value, ttl)
}

func TestCacheTTLSplitsOnVerdict(t *testing.T) {
	t.Parallel()

	backend := &recordingBackend{Cache: store.NewMemoryCache()}
	c := New(backend, 5*time.Minute, 60*time.Second)
	ctx := context.Background()

	c.Put(ctx, "good", "tenant_1", allowedOutcome("tenant_1"))
	if backend.lastTTL != 5*time.Minute {
		t.Fatalf("positive outcome stored with %v, want 5m", backend.lastTTL)
	}

	c.Put(ctx, "bad", "tenant_1", deniedOutcome())
	if backend.lastTTL != 60*time.Second {
		t.Fatalf("negative outcome stored with %v, want 60s", backend.lastTTL)
	}
}

func TestCacheDeniedOutcomeReplays(t *testing.T) {
	t.Parallel()

	c := New(store.NewMemoryCache(), 0, 0)
	ctx := context.Background()

	c.Put(ctx, "bad", "tenant_1", deniedOutcome())
	got, ok := c.Get(ctx, "bad", "tenant_1")
	if !ok {
		t.Fatal("denials are cached")
	}
	if got.Current.Success {
		t.Fatal("cached denial must stay a denial")
	}
	if got.Current.ErrorReason != "token expired" {
		t.Fatalf("reason must replay verbatim, got %q", got.Current.ErrorReason)
	}
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	c := New(store.NewMemoryCache(), 0, 0)
	ctx := context.Background()

	c.Put(ctx, "hash1", "tenant_1", allowedOutcome("tenant_1"))
	if err := c.Invalidate(ctx, "hash1", "tenant_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(ctx, "hash1", "tenant_1"); ok {
		t.Fatal("entry must be gone after invalidation")
	}
}

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) (string, error) {
	return "", errors.New("backend down")
}
func (brokenBackend) Set(context.Context, string, string, time.Duration) error {
	return errors.New("backend down")
}
func (brokenBackend) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("backend down")
}
func (brokenBackend) Del(context.Context, string) error { return errors.New("backend down") }

func TestCacheBackendFailureIsAMiss(t *testing.T) {
	t.Parallel()

	c := New(brokenBackend{}, 0, 0)
	ctx := context.Background()

	c.Put(ctx, "hash1", "tenant_1", allowedOutcome("tenant_1"))
	if _, ok := c.Get(ctx, "hash1", "tenant_1"); ok {
		t.Fatal("backend failure must read as a miss")
	}
}

func TestCacheGarbageEntryIsAMiss(t *testing.T) {
	t.Parallel()

	backend := store.NewMemoryCache()
	c := New(backend, 0, 0)
	ctx := context.Background()

	_ = backend.Set(ctx, Key("hash1", "tenant_1"), "{not json", time.Minute)
	if _, ok := c.Get(ctx, "hash1", "tenant_1"); ok {
		t.Fatal("undecodable entry must read as a miss")
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	c := New(store.NewMemoryCache(), 0, 0)
	if c.PositiveTTL != 5*time.Minute || c.NegativeTTL != 60*time.Second {
		t.Fatalf("unexpected defaults: %v / %v", c.PositiveTTL, c.NegativeTTL)
	}
}
