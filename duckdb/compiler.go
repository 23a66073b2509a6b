package duckdb

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oorabona/duckdialect/schema"
)

// typeNames maps portable column kinds to their engine spellings. Kinds not
// listed here are assumed to already be engine types and pass through
// upper-cased, so callers may write either "int64" or "BIGINT".
var typeNames = map[string]string{
	"bool":    "BOOLEAN",
	"int8":    "TINYINT",
	"int16":   "SMALLINT",
	"int32":   "INTEGER",
	"int":     "BIGINT",
	"int64":   "BIGINT",
	"uint8":   "UTINYINT",
	"uint16":  "USMALLINT",
	"uint32":  "UINTEGER",
	"uint":    "UBIGINT",
	"uint64":  "UBIGINT",
	"int128":  "HUGEINT",
	"float32": "FLOAT",
	"float64": "DOUBLE",
	"float":   "DOUBLE",
	"string":  "VARCHAR",
	"text":    "VARCHAR",
	"bytes":   "BLOB",
	"blob":    "BLOB",
	"json":    "JSON",
	"uuid":    "UUID",
	"time":    "TIMESTAMP",
	"date":    "DATE",
}

// TypeName reports the engine spelling of a portable column kind.
func TypeName(kind string) string {
	if t, ok := typeNames[strings.ToLower(kind)]; ok {
		return t
	}
	return strings.ToUpper(kind)
}

// ListOf reports the list type with the given element kind, e.g. "VARCHAR[]".
func ListOf(kind string) string {
	return TypeName(kind) + "[]"
}

// ArrayOf reports the fixed-size array type, e.g. "FLOAT[384]".
func ArrayOf(kind string, size int) string {
	return TypeName(kind) + "[" + strconv.Itoa(size) + "]"
}

// DecimalOf reports a DECIMAL type with the given precision and scale.
func DecimalOf(precision, scale int) string {
	return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
}

// Placeholder reports the positional placeholder for the i-th parameter
// (1-based) as a query builder should compile it. Statements are rewritten
// to the engine's named form on execution.
func Placeholder(i int) string {
	return "$" + strconv.Itoa(i)
}

// QuoteIdent quotes an identifier, doubling embedded quote characters.
// Dotted names are quoted per part, so "main.users" becomes "main"."users".
func QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// FormatValue renders a Go value as an engine literal, for use in DDL
// defaults and debug output. Values that cannot be rendered return an error.
func FormatValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return quoteString(v), nil
	case []byte:
		return formatBlob(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case time.Time:
		return "TIMESTAMP " + quoteString(v.UTC().Format("2006-01-02 15:04:05.999999")), nil
	case uuid.UUID:
		return quoteString(v.String()) + "::UUID", nil
	case *big.Int:
		return v.String(), nil
	case fmt.Stringer:
		return quoteString(v.String()), nil
	default:
		return "", fmt.Errorf("duckdb: cannot format %T as a literal", v)
	}
}

// quoteString renders a single-quoted string literal.
func quoteString(s string) string {
	return "'" + escapeStringValue(s) + "'"
}

func formatBlob(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b)*4 + 9)
	sb.WriteByte('\'')
	for _, c := range b {
		fmt.Fprintf(&sb, `\x%02X`, c)
	}
	sb.WriteString("'::BLOB")
	return sb.String()
}

// ColumnDefinition renders a column clause for CREATE TABLE.
func ColumnDefinition(c *schema.Column) (string, error) {
	var sb strings.Builder
	sb.WriteString(QuoteIdent(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(columnType(c))
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Unique {
		sb.WriteString(" UNIQUE")
	}
	switch {
	case c.DefaultExpr != "":
		sb.WriteString(" DEFAULT (")
		sb.WriteString(c.DefaultExpr)
		sb.WriteByte(')')
	case c.Default != nil:
		lit, err := FormatValue(c.Default)
		if err != nil {
			return "", fmt.Errorf("duckdb: column %q: %w", c.Name, err)
		}
		sb.WriteString(" DEFAULT ")
		sb.WriteString(lit)
	}
	return sb.String(), nil
}

func columnType(c *schema.Column) string {
	switch {
	case len(c.Enums) > 0:
		quoted := make([]string, len(c.Enums))
		for i, e := range c.Enums {
			quoted[i] = quoteString(e)
		}
		return "ENUM (" + strings.Join(quoted, ", ") + ")"
	case c.Precision > 0:
		return DecimalOf(c.Precision, c.Scale)
	default:
		return TypeName(c.Type)
	}
}

// CreateTable renders a CREATE TABLE statement for the given table,
// including primary key, unique and foreign key clauses.
func CreateTable(t *schema.Table, ifNotExists bool) (string, error) {
	if t.Name == "" {
		return "", fmt.Errorf("duckdb: create table: missing table name")
	}
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if ifNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(QuoteIdent(t.QualifiedName()))
	sb.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		def, err := ColumnDefinition(c)
		if err != nil {
			return "", err
		}
		sb.WriteString(def)
	}
	if pk := t.PrimaryKey; len(pk) > 0 {
		sb.WriteString(", PRIMARY KEY (")
		sb.WriteString(joinIdents(pk))
		sb.WriteByte(')')
	}
	for _, fk := range t.ForeignKeys {
		sb.WriteString(", FOREIGN KEY (")
		sb.WriteString(joinIdents(fk.Columns))
		sb.WriteString(") REFERENCES ")
		sb.WriteString(QuoteIdent(fk.RefTable))
		sb.WriteString(" (")
		sb.WriteString(joinIdents(fk.RefColumns))
		sb.WriteByte(')')
	}
	sb.WriteByte(')')
	return sb.String(), nil
}

// CreateIndex renders a CREATE INDEX statement for the given index.
func CreateIndex(table string, idx *schema.Index, ifNotExists bool) (string, error) {
	if idx.Name == "" || len(idx.Columns) == 0 {
		return "", fmt.Errorf("duckdb: create index on %q: missing name or columns", table)
	}
	var sb strings.Builder
	sb.WriteString("CREATE ")
	if idx.Unique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX ")
	if ifNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(QuoteIdent(idx.Name))
	sb.WriteString(" ON ")
	sb.WriteString(QuoteIdent(table))
	sb.WriteString(" (")
	sb.WriteString(joinIdents(idx.Columns))
	sb.WriteByte(')')
	return sb.String(), nil
}

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// sortedKeys reports the keys of m in sorted order. Configuration maps are
// applied in this order so bootstrap statements are deterministic.
func sortedKeys[M ~map[string]string](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
