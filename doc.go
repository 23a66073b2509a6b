// Package duckdialect defines the dialect extension points a SQL query
// builder uses to drive DuckDB through its native Go bindings.
//
// A query builder compiles statements down to SQL text plus a positional
// argument list. The interfaces in this package are the boundary between
// that compiled form and the engine: the duckdb subpackage implements them
// on top of database/sql and github.com/marcboeker/go-duckdb, rewriting
// placeholders to the engine's named form and normalizing returned values.
//
// # Driver Interface
//
// The Driver interface is the entry point for executing statements:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Transaction Interface
//
// The Tx interface scopes execution to a single transaction:
//
//	type Tx interface {
//	    ExecQuerier
//	    Commit() error
//	    Rollback() error
//	}
//
// # ExecQuerier Interface
//
// ExecQuerier is the subset shared by Driver and Tx. Components that only
// run statements (the migration runner, the introspector) accept it.
//
// # Usage
//
// Opening a database and running a query:
//
//	import (
//	    "github.com/oorabona/duckdialect"
//	    "github.com/oorabona/duckdialect/duckdb"
//	)
//
//	drv, err := duckdb.Open(duckdb.WithPath("analytics.db"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	rows := &duckdb.Rows{}
//	err = drv.Query(ctx, "SELECT id, tags FROM events WHERE kind = ?", []any{"click"}, rows)
//
// # Sub-packages
//
//   - duckdb: the dialect driver (connections, parameters, value coercion,
//     streaming, introspection, monitoring wrappers)
//   - schema: introspected schema model, diff validation and snapshots
//   - migrate: SQL-file and Go migrations with version bookkeeping
//   - casing: snake_case to camelCase result conversion plugin
//   - duckfn: helpers that build SQL fragments for DuckDB extension functions
package duckdialect
