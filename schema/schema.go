// Package schema models table metadata: the shapes returned by catalog
// introspection, validated before migrations, and rendered into DDL.
// Tables reference their columns by name rather than by pointer, so a
// schema serializes cleanly into snapshots.
package schema

// Table describes a table or a view.
type Table struct {
	Schema      string
	Name        string
	View        bool
	Columns     []*Column
	PrimaryKey  []string
	Indexes     []*Index
	ForeignKeys []*ForeignKey
	Comment     string
}

// QualifiedName reports the table name prefixed with its schema, when set.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Column returns the named column and whether it exists.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Index returns the named index and whether it exists.
func (t *Table) Index(name string) (*Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// Column describes a table column. Type holds either a portable kind such
// as "int64" or an engine type name such as "BIGINT"; both render the same.
type Column struct {
	Name        string
	Type        string
	Nullable    bool
	Unique      bool
	Size        int64
	Precision   int
	Scale       int
	Enums       []string
	Default     any    // Literal default, rendered as a value.
	DefaultExpr string // Raw default expression, rendered as written.
	Comment     string
}

// Index describes a secondary index.
type Index struct {
	Name    string
	Unique  bool
	Columns []string
}

// ForeignKey describes a referential constraint.
type ForeignKey struct {
	Name       string
	Columns    []string
	RefTable   string
	RefColumns []string
}
