package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeGatewayDB struct {
	execFn        func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	queryFn       func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn    func(ctx context.Context, sql string, args ...any) pgx.Row
	execSQL       []string
	execArgs      [][]any
	queryRowCalls int
}

func (f *fakeGatewayDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, arguments)
	if f.execFn != nil {
		return f.execFn(ctx, sql, arguments...)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeGatewayDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryFn != nil {
		return f.queryFn(ctx, sql, args...)
	}
	return &fakeGatewayRows{}, nil
}

func (f *fakeGatewayDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.queryRowCalls++
	if f.queryRowFn != nil {
		return f.queryRowFn(ctx, sql, args...)
	}
	return fakeGatewayRow{err: pgx.ErrNoRows}
}

// contractQueryFn satisfies the startup arity check for both validation
// routines.
func contractQueryFn(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	name, _ := args[1].(string)
	if name == "validate_production_api_token" {
		return &fakeGatewayRows{rows: [][]any{{2}}}, nil
	}
	return &fakeGatewayRows{rows: [][]any{{6}}}, nil
}

type fakeGatewayRow struct {
	values []any
	err    error
}

func (r fakeGatewayRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		if err := assignGatewayScan(dest[i], r.values[i]); err != nil {
			return err
		}
	}
	return nil
}

type fakeGatewayRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeGatewayRows) Close() {}

func (r *fakeGatewayRows) Err() error { return r.err }

func (r *fakeGatewayRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT 1") }

func (r *fakeGatewayRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *fakeGatewayRows) Next() bool {
	if r.err != nil {
		return false
	}
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeGatewayRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.rows) {
		return errors.New("no current row")
	}
	current := r.rows[r.idx-1]
	if len(dest) != len(current) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		if err := assignGatewayScan(dest[i], current[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeGatewayRows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.rows) {
		return nil, errors.New("no current row")
	}
	return append([]any(nil), r.rows[r.idx-1]...), nil
}

func (r *fakeGatewayRows) RawValues() [][]byte { return nil }

func (r *fakeGatewayRows) Conn() *pgx.Conn { return nil }

func assignGatewayScan(dest any, value any) error {
	switch d := dest.(type) {
	case *string:
		v, ok := value.(string)
		if !ok {
			return errors.New("value is not string")
		}
		*d = v
	case *json.RawMessage:
		v, ok := value.([]byte)
		if !ok {
			return errors.New("value is not json raw")
		}
		*d = append((*d)[:0], v...)
	case *int:
		switch v := value.(type) {
		case int:
			*d = v
		case int64:
			*d = int(v)
		default:
			return errors.New("value is not int")
		}
	case *int64:
		switch v := value.(type) {
		case int:
			*d = int64(v)
		case int64:
			*d = v
		default:
			return errors.New("value is not int64")
		}
	case *float64:
		switch v := value.(type) {
		case float64:
			*d = v
		case int:
			*d = float64(v)
		default:
			return errors.New("value is not float64")
		}
	case *bool:
		v, ok := value.(bool)
		if !ok {
			return errors.New("value is not bool")
		}
		*d = v
	case *time.Time:
		v, ok := value.(time.Time)
		if !ok {
			return errors.New("value is not time")
		}
		*d = v
	case **time.Time:
		if value == nil {
			*d = nil
			return nil
		}
		v, ok := value.(time.Time)
		if !ok {
			return errors.New("value is not nullable time")
		}
		*d = &v
	default:
		return errors.New("unsupported scan destination")
	}
	return nil
}
