package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	duckdbgo "github.com/marcboeker/go-duckdb"
)

// BulkLoader appends rows to a table through the engine's native appender,
// bypassing statement parsing. It pins one pool connection until Close.
type BulkLoader struct {
	conn   *sql.Conn
	ap     *duckdbgo.Appender
	table  string
	closed bool
}

// BulkLoader opens a native appender on the given table. schemaName may be
// empty for the default schema. Appended rows become visible to queries
// after Flush or Close.
func (d *Driver) BulkLoader(ctx context.Context, schemaName, table string) (*BulkLoader, error) {
	conn, err := d.DB().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("duckdb: bulk loader: %w", err)
	}
	var ap *duckdbgo.Appender
	err = conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		a, err := duckdbgo.NewAppenderFromConn(dc, schemaName, table)
		if err != nil {
			return err
		}
		ap = a
		return nil
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("duckdb: bulk loader for %q: %w", table, err), conn.Close())
	}
	return &BulkLoader{conn: conn, ap: ap, table: table}, nil
}

// Append adds one row. Values follow the table's column order.
func (b *BulkLoader) Append(values ...driver.Value) error {
	if b.closed {
		return fmt.Errorf("duckdb: bulk loader for %q is closed", b.table)
	}
	if err := b.ap.AppendRow(values...); err != nil {
		return fmt.Errorf("duckdb: append to %q: %w", b.table, err)
	}
	return nil
}

// Flush pushes buffered rows to the table.
func (b *BulkLoader) Flush() error {
	if b.closed {
		return fmt.Errorf("duckdb: bulk loader for %q is closed", b.table)
	}
	if err := b.ap.Flush(); err != nil {
		return fmt.Errorf("duckdb: flush %q: %w", b.table, err)
	}
	return nil
}

// Close flushes remaining rows and releases the pinned connection.
// Closing twice is a no-op.
func (b *BulkLoader) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := errors.Join(b.ap.Close(), b.conn.Close())
	if err != nil {
		return fmt.Errorf("duckdb: close bulk loader for %q: %w", b.table, err)
	}
	return nil
}
