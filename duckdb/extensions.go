package duckdb

import (
	"context"
	"fmt"

	"github.com/oorabona/duckdialect"
)

// bootstrap prepares a freshly opened database: extensions first, then
// autoload settings, then mapped views, then boot queries.
func (d *Driver) bootstrap(ctx context.Context, cfg Config) error {
	if err := InstallExtensions(ctx, d, cfg.Extensions...); err != nil {
		return err
	}
	if cfg.AutoloadKnown {
		for _, q := range []string{
			"SET autoinstall_known_extensions = 1",
			"SET autoload_known_extensions = 1",
		} {
			if err := d.Exec(ctx, q, []any{}, nil); err != nil {
				return fmt.Errorf("duckdb: bootstrap: %w", err)
			}
		}
	}
	if err := CreateMappedViews(ctx, d, cfg.TableMappings); err != nil {
		return err
	}
	for _, q := range cfg.BootQueries {
		if err := d.Exec(ctx, q, []any{}, nil); err != nil {
			return fmt.Errorf("duckdb: boot query: %w", err)
		}
	}
	return nil
}

// InstallExtensions installs and loads the named extensions, in order.
// Already-installed extensions load without refetching.
func InstallExtensions(ctx context.Context, e duckdialect.ExecQuerier, names ...string) error {
	for _, name := range names {
		if !isValidIdentifier(name) {
			return fmt.Errorf("duckdb: invalid extension name %q", name)
		}
		for _, stmt := range []string{"INSTALL " + name, "LOAD " + name} {
			if err := e.Exec(ctx, stmt, []any{}, nil); err != nil {
				return fmt.Errorf("duckdb: extension %s: %w", name, err)
			}
		}
	}
	return nil
}

// CreateMappedViews materializes table mappings as views so external data
// is addressable by plain table names. Views are created with CREATE OR
// REPLACE, re-running a mapping is safe. Names apply in sorted order.
func CreateMappedViews(ctx context.Context, e duckdialect.ExecQuerier, mappings map[string]string) error {
	for _, name := range sortedKeys(mappings) {
		if !isValidIdentifier(name) {
			return fmt.Errorf("duckdb: invalid table mapping name %q", name)
		}
		q := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", QuoteIdent(name), mappings[name])
		if err := e.Exec(ctx, q, []any{}, nil); err != nil {
			return fmt.Errorf("duckdb: map table %q: %w", name, err)
		}
	}
	return nil
}

// Extension describes one row of duckdb_extensions().
type Extension struct {
	Name      string
	Loaded    bool
	Installed bool
}

// Extensions reports the engine's extension catalog.
func Extensions(ctx context.Context, e duckdialect.ExecQuerier) ([]Extension, error) {
	var rows Rows
	err := e.Query(ctx, "SELECT extension_name, loaded, installed FROM duckdb_extensions() ORDER BY extension_name", []any{}, &rows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Extension
	for rows.Next() {
		var ext Extension
		if err := rows.Scan(&ext.Name, &ext.Loaded, &ext.Installed); err != nil {
			return nil, fmt.Errorf("duckdb: extensions: %w", err)
		}
		out = append(out, ext)
	}
	return out, rows.Err()
}
