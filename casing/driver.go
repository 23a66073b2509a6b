package casing

import (
	"context"

	"github.com/oorabona/duckdialect"
	"github.com/oorabona/duckdialect/duckdb"
)

// Driver wraps a duckdialect.Driver so query results carry camelCase
// column names. Statements pass through untouched; write them with
// snake_case identifiers as usual, or run them through Mapper.ToColumn.
type Driver struct {
	duckdialect.Driver
	mapper *Mapper
}

// Wrap returns drv with result columns renamed through m. A nil m gets
// the default Mapper.
func Wrap(drv duckdialect.Driver, m *Mapper) *Driver {
	if m == nil {
		m = NewMapper()
	}
	return &Driver{Driver: drv, mapper: m}
}

// Mapper returns the mapper results are renamed with.
func (d *Driver) Mapper() *Mapper {
	return d.mapper
}

// Query delegates to the wrapped driver and renames the result columns.
func (d *Driver) Query(ctx context.Context, query string, args, v any) error {
	if err := d.Driver.Query(ctx, query, args, v); err != nil {
		return err
	}
	renameColumns(v, d.mapper)
	return nil
}

// Tx starts a transaction whose queries rename result columns the same
// way the driver does.
func (d *Driver) Tx(ctx context.Context) (duckdialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, mapper: d.mapper}, nil
}

// Tx is a transaction returned by Driver.Tx.
type Tx struct {
	duckdialect.Tx
	mapper *Mapper
}

// Query delegates to the wrapped transaction and renames the result
// columns.
func (t *Tx) Query(ctx context.Context, query string, args, v any) error {
	if err := t.Tx.Query(ctx, query, args, v); err != nil {
		return err
	}
	renameColumns(v, t.mapper)
	return nil
}

func renameColumns(v any, m *Mapper) {
	rows, ok := v.(*duckdb.Rows)
	if !ok || rows.ColumnScanner == nil {
		return
	}
	rows.ColumnScanner = &renamedRows{ColumnScanner: rows.ColumnScanner, mapper: m}
}

// renamedRows rewrites Columns so scanning helpers key rows by camelCase
// names. Column type metadata passes through untouched.
type renamedRows struct {
	duckdb.ColumnScanner
	mapper *Mapper
}

func (r *renamedRows) Columns() ([]string, error) {
	columns, err := r.ColumnScanner.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = r.mapper.Camelize(c)
	}
	return out, nil
}

var (
	_ duckdialect.Driver = (*Driver)(nil)
	_ duckdialect.Tx     = (*Tx)(nil)
)
