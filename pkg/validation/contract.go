package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// RoutineContract pins the expected shape of a database-side validation
// routine. The gateway checks these once at startup instead of discovering
// signature drift request by request.
type RoutineContract struct {
	Schema string
	Name   string
	Args   int
}

// Contracts lists the external routines the validators depend on.
var Contracts = []RoutineContract{
	{Schema: "auth", Name: "validate_production_api_token", Args: 2},
	{Schema: "ai_monitoring", Name: "validate_zero_trust_access", Args: 6},
}

type contractDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const routineAritySQL = `
	SELECT p.pronargs
	FROM pg_proc p
	JOIN pg_namespace n ON n.oid = p.pronamespace
	WHERE n.nspname = $1 AND p.proname = $2
`

// CheckContracts verifies that every routine in Contracts exists with the
// expected arity. Overloads are tolerated as long as one matches.
func CheckContracts(ctx context.Context, db contractDB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, c := range Contracts {
		if err := checkContract(ctx, db, c); err != nil {
			return err
		}
	}
	return nil
}

func checkContract(ctx context.Context, db contractDB, c RoutineContract) error {
	rows, err := db.Query(ctx, routineAritySQL, c.Schema, c.Name)
	if err != nil {
		return fmt.Errorf("contract check %s.%s: %w", c.Schema, c.Name, err)
	}
	defer rows.Close()
	found := false
	arities := []int{}
	for rows.Next() {
		var nargs int
		if err := rows.Scan(&nargs); err != nil {
			return fmt.Errorf("contract check %s.%s: %w", c.Schema, c.Name, err)
		}
		found = true
		arities = append(arities, nargs)
		if nargs == c.Args {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("contract check %s.%s: %w", c.Schema, c.Name, err)
	}
	if !found {
		return fmt.Errorf("contract check: routine %s.%s not found", c.Schema, c.Name)
	}
	return fmt.Errorf("contract check: %s.%s exists with arity %v, expected %d", c.Schema, c.Name, arities, c.Args)
}
