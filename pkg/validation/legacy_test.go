package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func TestLegacyValidateSuccess(t *testing.T) {
	t.Parallel()

	db := &fakeDB{queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return validRow(true, "tenant_1", "valid")
	}}
	v := NewLegacyValidator(db, 200*time.Millisecond)

	res := v.Validate(context.Background(), Request{TokenHash: "hash_a", RequiredScope: "api:read"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Context == nil || res.Context.TenantID != "tenant_1" {
		t.Fatalf("expected tenant_1 context, got %+v", res.Context)
	}
	if !res.Context.IsValid {
		t.Fatal("context must carry is_valid")
	}
	if db.calls != 1 {
		t.Fatalf("expected exactly one round-trip, got %d", db.calls)
	}
	if len(db.lastArgs) != 2 {
		t.Fatalf("legacy routine takes 2 args, got %d", len(db.lastArgs))
	}
}

func TestLegacyValidateInvalidToken(t *testing.T) {
	t.Parallel()

	db := &fakeDB{queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return validRow(false, "", "token expired")
	}}
	v := NewLegacyValidator(db, 200*time.Millisecond)

	res := v.Validate(context.Background(), Request{TokenHash: "hash_a"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorReason != "token expired" {
		t.Fatalf("expected routine message as reason, got %q", res.ErrorReason)
	}
	if res.Context != nil {
		t.Fatal("failed validations carry no context")
	}
}

func TestLegacyValidateDatabaseError(t *testing.T) {
	t.Parallel()

	db := &fakeDB{queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return fakeRow{err: errors.New("connection refused")}
	}}
	v := NewLegacyValidator(db, 200*time.Millisecond)

	res := v.Validate(context.Background(), Request{TokenHash: "hash_a"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorReason != ReasonDatabaseConnection {
		t.Fatalf("expected %q, got %q", ReasonDatabaseConnection, res.ErrorReason)
	}
}

func TestLegacyValidateTimeout(t *testing.T) {
	t.Parallel()

	db := &fakeDB{queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
		<-ctx.Done()
		return fakeRow{err: ctx.Err()}
	}}
	v := NewLegacyValidator(db, 10*time.Millisecond)

	res := v.Validate(context.Background(), Request{TokenHash: "hash_a"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorReason != ReasonTimeout {
		t.Fatalf("expected %q, got %q", ReasonTimeout, res.ErrorReason)
	}
}

func TestLegacyValidateArityDrift(t *testing.T) {
	t.Parallel()

	// One column short simulates signature drift in the external routine.
	db := &fakeDB{queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return fakeRow{values: []any{true, scanStr("tenant_1")}}
	}}
	v := NewLegacyValidator(db, 200*time.Millisecond)

	res := v.Validate(context.Background(), Request{TokenHash: "hash_a"})
	if res.Success {
		t.Fatal("expected failure on shape mismatch")
	}
	if res.ErrorReason != ReasonDatabaseConnection {
		t.Fatalf("unexpected reason %q", res.ErrorReason)
	}
}

func TestLegacyValidateValidWithoutTenantRejected(t *testing.T) {
	t.Parallel()

	db := &fakeDB{queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return validRow(true, "", "valid")
	}}
	v := NewLegacyValidator(db, 200*time.Millisecond)

	res := v.Validate(context.Background(), Request{TokenHash: "hash_a"})
	if res.Success {
		t.Fatal("a valid verdict without a tenant must be rejected")
	}
	if res.ErrorReason != ReasonInvalidResponse {
		t.Fatalf("expected %q, got %q", ReasonInvalidResponse, res.ErrorReason)
	}
}

func TestNewLegacyValidatorDefaultTimeout(t *testing.T) {
	t.Parallel()

	v := NewLegacyValidator(&fakeDB{}, 0)
	if v.Timeout <= 0 {
		t.Fatal("expected default timeout")
	}
}
