package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRows struct {
	arities []int
	idx     int
	err     error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.idx >= len(r.arities) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if len(dest) != 1 {
		return errors.New("expected one destination")
	}
	p, ok := dest[0].(*int)
	if !ok {
		return errors.New("expected *int destination")
	}
	*p = r.arities[r.idx-1]
	return nil
}

func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

type fakeContractDB struct {
	byRoutine map[string][]int
	queryErr  error
}

func (db *fakeContractDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	if db.queryErr != nil {
		return nil, db.queryErr
	}
	key := args[0].(string) + "." + args[1].(string)
	return &fakeRows{arities: db.byRoutine[key]}, nil
}

func TestCheckContractsAllMatch(t *testing.T) {
	t.Parallel()

	db := &fakeContractDB{byRoutine: map[string][]int{
		"auth.validate_production_api_token":       {2},
		"ai_monitoring.validate_zero_trust_access": {6},
	}}
	if err := CheckContracts(context.Background(), db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckContractsToleratesOverloads(t *testing.T) {
	t.Parallel()

	db := &fakeContractDB{byRoutine: map[string][]int{
		"auth.validate_production_api_token":       {1, 2, 3},
		"ai_monitoring.validate_zero_trust_access": {6},
	}}
	if err := CheckContracts(context.Background(), db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckContractsMissingRoutine(t *testing.T) {
	t.Parallel()

	db := &fakeContractDB{byRoutine: map[string][]int{
		"auth.validate_production_api_token": {2},
	}}
	err := CheckContracts(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ai_monitoring.validate_zero_trust_access") {
		t.Fatalf("error must name the routine, got %v", err)
	}
}

func TestCheckContractsArityDrift(t *testing.T) {
	t.Parallel()

	db := &fakeContractDB{byRoutine: map[string][]int{
		"auth.validate_production_api_token":       {3},
		"ai_monitoring.validate_zero_trust_access": {6},
	}}
	err := CheckContracts(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "expected 2") {
		t.Fatalf("expected arity drift error, got %v", err)
	}
}

func TestCheckContractsQueryError(t *testing.T) {
	t.Parallel()

	db := &fakeContractDB{queryErr: errors.New("connection refused")}
	err := CheckContracts(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
}
