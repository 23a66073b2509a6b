// Package duckdb implements the duckdialect driver contract on top of the
// DuckDB embedded analytical database, accessed through database/sql and
// the github.com/marcboeker/go-duckdb bindings.
//
// The package adapts the two styles that differ between a query builder and
// the engine:
//
//   - Parameters: builders compile positional placeholders (? or $1..$N);
//     the engine is driven with named $paramN placeholders. Every statement
//     passes through a literal-aware rewriter before execution.
//
//   - Values: the engine returns wrapper values (JSON text, UUID bytes,
//     LIST/STRUCT/MAP composites, decimals). Row helpers normalize them
//     into plain Go values so a builder can hydrate results directly.
//
// # Opening
//
//	drv, err := duckdb.Open(
//	    duckdb.WithPath("warehouse.db"),
//	    duckdb.WithExtensions("json"),
//	    duckdb.WithTableMapping("people", "read_json_auto('people.json')"),
//	)
//
// Open configures the connection pool, installs requested extensions and
// materializes table mappings as views. OpenDB wraps an existing *sql.DB.
//
// # Monitoring
//
// StatsDriver and DebugDriver wrap a Driver with query statistics and
// statement logging; both still satisfy the duckdialect.Driver interface
// and can be handed to a builder unchanged.
package duckdb
