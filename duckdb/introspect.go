package duckdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oorabona/duckdialect"
	"github.com/oorabona/duckdialect/schema"
)

// snapshotCacheKey is where cached introspection snapshots live.
const snapshotCacheKey = "introspect/snapshot"

// Introspector reads table metadata from the engine catalog. With a cache
// configured, snapshots are reused until their TTL passes or Invalidate is
// called, and concurrent cold reads collapse into one catalog scan.
type Introspector struct {
	q     duckdialect.ExecQuerier
	cache duckdialect.Cache
	ttl   time.Duration
	group singleflight.Group
}

// IntrospectOption configures an Introspector.
type IntrospectOption func(*Introspector)

// WithCache stores encoded snapshots in c for up to ttl between catalog
// reads. A zero ttl keeps snapshots until Invalidate.
func WithCache(c duckdialect.Cache, ttl time.Duration) IntrospectOption {
	return func(i *Introspector) {
		i.cache = c
		i.ttl = ttl
	}
}

// NewIntrospector returns an Introspector reading through q, typically a
// *Driver or an open transaction.
func NewIntrospector(q duckdialect.ExecQuerier, opts ...IntrospectOption) *Introspector {
	i := &Introspector{q: q}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Snapshot reports the current schema: all user tables and views with
// their columns, primary keys, unique constraints and indexes.
func (i *Introspector) Snapshot(ctx context.Context) (*schema.Snapshot, error) {
	if i.cache != nil {
		if b, err := i.cache.Get(ctx, snapshotCacheKey); err == nil && b != nil {
			if snap, err := schema.DecodeSnapshot(b); err == nil {
				return snap, nil
			}
			// Corrupt entries are dropped and re-read.
			_ = i.cache.Delete(ctx, snapshotCacheKey)
		}
	}
	v, err, _ := i.group.Do(snapshotCacheKey, func() (any, error) {
		tables, err := i.readTables(ctx)
		if err != nil {
			return nil, err
		}
		snap := schema.NewSnapshot(tables)
		if i.cache != nil {
			if b, err := snap.Encode(); err == nil {
				_ = i.cache.Set(ctx, snapshotCacheKey, b, i.ttl)
			}
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.Snapshot), nil
}

// Tables reports all user tables and views.
func (i *Introspector) Tables(ctx context.Context) ([]*schema.Table, error) {
	snap, err := i.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tables, nil
}

// TableNames reports the qualified names of all user tables and views.
func (i *Introspector) TableNames(ctx context.Context) ([]string, error) {
	tables, err := i.Tables(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tables))
	for n, t := range tables {
		names[n] = t.QualifiedName()
	}
	return names, nil
}

// HasTable reports whether the named table or view exists. Both plain and
// schema-qualified names match.
func (i *Introspector) HasTable(ctx context.Context, name string) (bool, error) {
	snap, err := i.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	_, ok := snap.Table(name)
	return ok, nil
}

// Invalidate drops any cached snapshot, forcing the next read to scan the
// catalog. Call it after DDL.
func (i *Introspector) Invalidate(ctx context.Context) error {
	if i.cache == nil {
		return nil
	}
	return i.cache.DeletePrefix(ctx, "introspect/")
}

func (i *Introspector) readTables(ctx context.Context) ([]*schema.Table, error) {
	var (
		order  []string
		byName = make(map[string]*schema.Table)
	)
	add := func(t *schema.Table) {
		key := t.QualifiedName()
		byName[key] = t
		order = append(order, key)
	}
	qualified := func(row map[string]any) string {
		s := rowString(row, "schema_name")
		if s == "" {
			return rowString(row, "table_name")
		}
		return s + "." + rowString(row, "table_name")
	}

	tables, err := i.collect(ctx, "SELECT schema_name, table_name FROM duckdb_tables() ORDER BY schema_name, table_name")
	if err != nil {
		return nil, fmt.Errorf("duckdb: introspect tables: %w", err)
	}
	for _, row := range tables {
		add(&schema.Table{Schema: rowString(row, "schema_name"), Name: rowString(row, "table_name")})
	}

	views, err := i.collect(ctx, "SELECT schema_name, view_name AS table_name FROM duckdb_views() WHERE NOT internal ORDER BY schema_name, view_name")
	if err != nil {
		return nil, fmt.Errorf("duckdb: introspect views: %w", err)
	}
	for _, row := range views {
		add(&schema.Table{Schema: rowString(row, "schema_name"), Name: rowString(row, "table_name"), View: true})
	}

	columns, err := i.collect(ctx, "SELECT schema_name, table_name, column_name, data_type, is_nullable, column_default FROM duckdb_columns() WHERE NOT internal ORDER BY schema_name, table_name, column_index")
	if err != nil {
		return nil, fmt.Errorf("duckdb: introspect columns: %w", err)
	}
	for _, row := range columns {
		t, ok := byName[qualified(row)]
		if !ok {
			continue
		}
		col := &schema.Column{
			Name:     rowString(row, "column_name"),
			Type:     rowString(row, "data_type"),
			Nullable: rowBool(row, "is_nullable"),
		}
		if d := rowString(row, "column_default"); d != "" {
			col.DefaultExpr = d
		}
		t.Columns = append(t.Columns, col)
	}

	constraints, err := i.collect(ctx, "SELECT schema_name, table_name, constraint_type, constraint_column_names FROM duckdb_constraints() WHERE constraint_type IN ('PRIMARY KEY', 'UNIQUE')")
	if err != nil {
		return nil, fmt.Errorf("duckdb: introspect constraints: %w", err)
	}
	for _, row := range constraints {
		t, ok := byName[qualified(row)]
		if !ok {
			continue
		}
		names := stringList(row["constraint_column_names"])
		if len(names) == 0 {
			continue
		}
		switch rowString(row, "constraint_type") {
		case "PRIMARY KEY":
			t.PrimaryKey = names
		case "UNIQUE":
			if len(names) == 1 {
				if c, ok := t.Column(names[0]); ok {
					c.Unique = true
					continue
				}
			}
			t.Indexes = append(t.Indexes, &schema.Index{
				Name:    t.Name + "_" + strings.Join(names, "_") + "_key",
				Unique:  true,
				Columns: names,
			})
		}
	}

	indexes, err := i.collect(ctx, "SELECT schema_name, table_name, index_name, is_unique, expressions FROM duckdb_indexes() WHERE NOT is_primary ORDER BY schema_name, table_name, index_name")
	if err != nil {
		return nil, fmt.Errorf("duckdb: introspect indexes: %w", err)
	}
	for _, row := range indexes {
		t, ok := byName[qualified(row)]
		if !ok {
			continue
		}
		t.Indexes = append(t.Indexes, &schema.Index{
			Name:    rowString(row, "index_name"),
			Unique:  rowBool(row, "is_unique"),
			Columns: stringList(row["expressions"]),
		})
	}

	out := make([]*schema.Table, 0, len(order))
	for _, k := range order {
		out = append(out, byName[k])
	}
	return out, nil
}

func (i *Introspector) collect(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	var rows Rows
	if err := i.q.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return CollectRows(&rows)
}

func rowString(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return s
}

func rowBool(row map[string]any, key string) bool {
	b, _ := row[key].(bool)
	return b
}

// stringList extracts names from a LIST value or its textual rendering
// "[a, b]". Catalog functions report column lists either way depending on
// how the rows were scanned.
func stringList(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprintf("%v", e))
			}
		}
		return out
	case string:
		s := strings.Trim(strings.TrimSpace(v), "[]")
		if s == "" {
			return nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.Trim(strings.TrimSpace(parts[i]), `'"`)
		}
		return parts
	default:
		return nil
	}
}
