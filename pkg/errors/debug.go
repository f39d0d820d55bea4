package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgresError is the driver-independent part of a Postgres error.
type PostgresError struct {
	Code       string
	Constraint string
	Table      string
}

// AsPostgres finds a pgx or lib/pq error in the chain.
func AsPostgres(err error) (PostgresError, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return PostgresError{Code: pgxErr.Code, Constraint: pgxErr.ConstraintName, Table: pgxErr.TableName}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return PostgresError{Code: string(pqErr.Code), Constraint: pqErr.Constraint, Table: pqErr.Table}, true
	}
	return PostgresError{}, false
}

// LogFields flattens err for a structured log line. Postgres detail and
// message text are left out; they can echo row values such as customer
// emails.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	fields := map[string]any{
		"error":       err.Error(),
		"error_chain": chain,
	}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
		fields["retryable"] = MetadataFor(typed.Code()).Retryable
	}
	if pg, ok := AsPostgres(err); ok {
		fields["pg_code"] = pg.Code
		fields["pg_constraint"] = pg.Constraint
		fields["pg_table"] = pg.Table
	}
	return fields
}
