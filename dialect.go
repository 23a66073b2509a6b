package duckdialect

import "context"

// DuckDB is the dialect name reported by drivers backed by the DuckDB engine.
const DuckDB = "duckdb"

// ExecQuerier wraps the two basic Exec and Query methods. Both take the
// compiled query text, its argument list (args) and a destination (v) the
// result is written into. Implementations define which destination types
// they accept.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. args is expected
	// to be a []any of positional arguments. v receives the execution
	// result, or is nil when the caller does not need it.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows. v receives the row
	// iterator.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the extension point a query builder binds to. It executes
// compiled statements, opens transactions, and reports its dialect name.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection pool.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is a transaction scoped to a single connection. It executes statements
// like a Driver and ends with Commit or Rollback.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
