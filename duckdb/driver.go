package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oorabona/duckdialect"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue escapes a string value for safe use in SQL. The engine
// follows standard SQL escaping, so only quotes need doubling.
func escapeStringValue(s string) string {
	if !strings.ContainsRune(s, '\'') {
		return s
	}
	return strings.ReplaceAll(s, "'", "''")
}

// Driver is the duckdialect.Driver implementation for the engine.
type Driver struct {
	Conn
}

// NewDriver creates a new Driver with the given Conn.
func NewDriver(c Conn) *Driver {
	return &Driver{Conn: c}
}

// Open opens a database handle with the given options and bootstraps it:
// extensions are installed and loaded, table mappings become views and boot
// queries run, in that order. An empty path opens an in-memory database.
func Open(opts ...Option) (*Driver, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return OpenConfig(cfg)
}

// OpenConfig opens a database handle from an explicit Config. Unlike Open,
// it applies no defaults: zero pool limits mean an unbounded pool.
func OpenConfig(cfg Config) (*Driver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MappingsFile != "" {
		loaded, err := LoadMappingsFile(cfg.MappingsFile)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]string, len(loaded)+len(cfg.TableMappings))
		for k, v := range loaded {
			merged[k] = v
		}
		for k, v := range cfg.TableMappings {
			merged[k] = v
		}
		cfg.TableMappings = merged
	}
	db, err := sql.Open("duckdb", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	drv := OpenDB(db)
	if err := drv.bootstrap(context.Background(), cfg); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return drv, nil
}

// OpenDB wraps an existing database/sql.DB handle with a Driver. The handle
// is used as-is: no bootstrap runs and pool limits are left alone.
func OpenDB(db *sql.DB) *Driver {
	return NewDriver(Conn{db})
}

// DB returns the underlying *sql.DB instance.
func (d Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect implements the duckdialect.Driver method.
func (d Driver) Dialect() string {
	return duckdialect.DuckDB
}

// Ping verifies the database is reachable.
func (d Driver) Ping(ctx context.Context) error {
	return d.DB().PingContext(ctx)
}

// Tx starts and returns a transaction.
func (d *Driver) Tx(ctx context.Context) (duckdialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// Transaction option errors. The engine runs every transaction with
// snapshot isolation and has no per-transaction read-only mode, so BeginTx
// rejects options asking for anything else.
var (
	ErrTxIsolation = errors.New("duckdb: transaction isolation level is fixed to snapshot")
	ErrTxReadOnly  = errors.New("duckdb: read-only transactions are not supported, open the database read-only instead")
)

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (duckdialect.Tx, error) {
	if opts != nil {
		if opts.Isolation != sql.LevelDefault {
			return nil, ErrTxIsolation
		}
		if opts.ReadOnly {
			return nil, ErrTxReadOnly
		}
	}
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("duckdb: begin: %w", err)
	}
	return &Tx{
		Conn: Conn{tx},
		tx:   tx,
	}, nil
}

// Close closes the underlying connection.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx implements the duckdialect.Tx interface.
type Tx struct {
	Conn
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return duckdialect.ErrTxDone
		}
		return fmt.Errorf("duckdb: commit: %w", err)
	}
	return nil
}

// Rollback rolls the transaction back. Rolling back a transaction that
// already completed is a no-op: the benign failure is swallowed so deferred
// rollbacks never mask the real error. Anything else surfaces as a
// duckdialect.RollbackError.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || isBenignRollback(err) {
		return nil
	}
	return &duckdialect.RollbackError{Err: err}
}

// ctxVarsKey is the key used for attaching and reading the context variables.
type ctxVarsKey struct{}

// sessionVars holds session variables to set before every statement.
type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a new context that holds a session setting to apply
// before every statement executed with it, e.g.
//
//	ctx = duckdb.WithVar(ctx, "memory_limit", "2GB")
//
// Settings applied on a pooled connection are reset when the statement's
// rows are closed.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars, struct{ k, v string }{k: name, v: value})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// VarFromContext returns the session variable value from the context.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for _, s := range sv.vars {
		if s.k == name {
			return s.v, true
		}
	}
	return "", false
}

// WithIntVar calls WithVar with the string representation of the value.
func WithIntVar(ctx context.Context, name string, value int) context.Context {
	return WithVar(ctx, name, strconv.Itoa(value))
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements duckdialect.ExecQuerier given ExecQuerier. Statements
// pass through the placeholder rewriter before reaching the engine.
type Conn struct {
	ExecQuerier
}

// Exec implements the duckdialect.Exec method.
func (c Conn) Exec(ctx context.Context, query string, args, v any) (rerr error) {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("duckdb: invalid type %T. expect []any for args", args)
	}
	q, nargs, err := rewriteQuery(query, argv)
	if err != nil {
		return duckdialect.NewQueryError(query, argv, err)
	}
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return fmt.Errorf("duckdb: exec: set session vars: %w", err)
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	switch v := v.(type) {
	case nil:
		if _, err := ex.ExecContext(ctx, q, nargs...); err != nil {
			return duckdialect.NewQueryError(query, argv, err)
		}
	case *sql.Result:
		res, err := ex.ExecContext(ctx, q, nargs...)
		if err != nil {
			return duckdialect.NewQueryError(query, argv, err)
		}
		*v = result{res}
	default:
		return fmt.Errorf("duckdb: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the duckdialect.Query method.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("duckdb: invalid type %T. expect *duckdb.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("duckdb: invalid type %T. expect []any for args", args)
	}
	q, nargs, err := rewriteQuery(query, argv)
	if err != nil {
		return duckdialect.NewQueryError(query, argv, err)
	}
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return fmt.Errorf("duckdb: query: set session vars: %w", err)
	}
	rows, err := ex.QueryContext(ctx, q, nargs...)
	if err != nil {
		if cf != nil {
			err = errors.Join(err, cf())
		}
		return duckdialect.NewQueryError(query, argv, err)
	}
	*vr = Rows{rows}
	if cf != nil {
		vr.ColumnScanner = rowsWithCloser{rows, cf}
	}
	return nil
}

// maySetVars applies context session variables before executing a statement.
// On a bare DB handle a dedicated connection is checked out so the settings
// and their reset happen on the same session.
func (c Conn) maySetVars(ctx context.Context) (ExecQuerier, func() error, error) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	if len(sv.vars) == 0 {
		return c, nil, nil
	}
	var (
		ex    ExecQuerier  // Underlying ExecQuerier.
		cf    func() error // Close function.
		reset []string     // Reset statements.
		seen  = make(map[string]struct{}, len(sv.vars))
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		ex = e
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, cf = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", c.ExecQuerier)
	}
	for _, s := range sv.vars {
		// Validate the variable name to prevent SQL injection.
		if !isValidIdentifier(s.k) {
			if cf != nil {
				_ = cf()
			}
			return nil, nil, fmt.Errorf("invalid session variable name: %q", s.k)
		}
		if _, ok := seen[s.k]; !ok {
			reset = append(reset, fmt.Sprintf("RESET %s", s.k))
			seen[s.k] = struct{}{}
		}
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", s.k, escapeStringValue(s.v))); err != nil {
			if cf != nil {
				err = errors.Join(err, cf())
			}
			return nil, nil, err
		}
	}
	// Settings on a pooled connection must be cleaned up before the
	// connection goes back to the pool. Use a background context with a
	// timeout so cleanup completes even if the original context was
	// canceled.
	if cls := cf; cf != nil {
		cf = func() error {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, q := range reset {
				if _, err := ex.ExecContext(cleanupCtx, q); err != nil {
					return errors.Join(err, cls())
				}
			}
			return cls()
		}
	}
	return ex, cf, nil
}

var _ duckdialect.Driver = (*Driver)(nil)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// NullBool is an alias to sql.NullBool.
	NullBool = sql.NullBool
	// NullInt64 is an alias to sql.NullInt64.
	NullInt64 = sql.NullInt64
	// NullString is an alias to sql.NullString.
	NullString = sql.NullString
	// NullFloat64 is an alias to sql.NullFloat64.
	NullFloat64 = sql.NullFloat64
	// NullTime represents a time.Time that may be null.
	NullTime = sql.NullTime
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// result decorates the engine's statement result: rows affected passes
// through, generated keys are not a thing the engine reports.
type result struct {
	sql.Result
}

func (result) LastInsertId() (int64, error) {
	return 0, ErrLastInsertID
}

// NullScanner implements the sql.Scanner interface such that it
// can be used as a scan destination, similar to the types above.
type NullScanner struct {
	S     sql.Scanner
	Valid bool // Valid is true if the Scan value is not NULL.
}

// Scan implements the Scanner interface.
func (n *NullScanner) Scan(value any) error {
	n.Valid = value != nil
	if n.Valid {
		return n.S.Scan(value)
	}
	return nil
}

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// rowsWithCloser wraps the ColumnScanner interface with a custom Close hook.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the underlying ColumnScanner and calls the custom closer.
func (r rowsWithCloser) Close() error {
	err := r.ColumnScanner.Close()
	return errors.Join(err, r.closer())
}
