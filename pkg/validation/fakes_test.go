package validation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type fakeDB struct {
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	calls      int
	lastSQL    string
	lastArgs   []any
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.calls++
	f.lastSQL = sql
	f.lastArgs = args
	if f.queryRowFn != nil {
		return f.queryRowFn(ctx, sql, args...)
	}
	return fakeRow{err: pgx.ErrNoRows}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		if err := assignScan(dest[i], r.values[i]); err != nil {
			return err
		}
	}
	return nil
}

func assignScan(dest any, value any) error {
	switch d := dest.(type) {
	case *bool:
		v, ok := value.(bool)
		if !ok {
			return errors.New("value is not bool")
		}
		*d = v
	case **string:
		if value == nil {
			*d = nil
			return nil
		}
		v, ok := value.(string)
		if !ok {
			return errors.New("value is not string")
		}
		*d = &v
	case **int:
		if value == nil {
			*d = nil
			return nil
		}
		v, ok := value.(int)
		if !ok {
			return errors.New("value is not int")
		}
		*d = &v
	case **time.Time:
		if value == nil {
			*d = nil
			return nil
		}
		v, ok := value.(time.Time)
		if !ok {
			return errors.New("value is not time")
		}
		*d = &v
	default:
		return errors.New("unsupported scan destination")
	}
	return nil
}

// validRow builds the row shape returned by the legacy routine.
func validRow(isValid bool, tenant string, message string) fakeRow {
	return fakeRow{values: []any{
		isValid, scanStr(tenant), "Tenant " + tenant, "user_hk_1", "ops@example.com",
		"STANDARD", "standard", 100, time.Now().UTC().Add(30 * 24 * time.Hour), message,
	}}
}

// enhancedRow builds the row shape returned by the zero-trust routine.
func enhancedRow(isValid bool, tenant string, extended bool, message string) fakeRow {
	return fakeRow{values: []any{
		isValid, scanStr(tenant), "Tenant " + tenant, "user_hk_1", "ops@example.com",
		"STANDARD", "standard", 100, time.Now().UTC().Add(30 * 24 * time.Hour), extended, message,
	}}
}

func scanStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// stubValidator is a canned-result Validator with call accounting.
type stubValidator struct {
	result Result
	delay  time.Duration
	calls  int
}

func (s *stubValidator) Validate(ctx context.Context, req Request) Result {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return s.result
}
