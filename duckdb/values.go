package duckdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	duckdbgo "github.com/marcboeker/go-duckdb"
)

// decodeValue normalizes one scanned value given the column's database type
// name as reported by the engine. JSON text becomes decoded Go values, UUIDs
// become canonical strings, composites become plain maps and slices. Values
// of unknown types pass through with generic cleanup only.
func decodeValue(typeName string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch baseTypeName(typeName) {
	case "JSON":
		return decodeJSON(v)
	case "UUID":
		return decodeUUID(v)
	case "BLOB", "BIT":
		return v, nil
	default:
		return normalizeValue(v)
	}
}

// baseTypeName strips modifiers from a database type name, mapping
// "DECIMAL(18,3)" to "DECIMAL" and "VARCHAR[]" to "LIST".
func baseTypeName(typeName string) string {
	t := strings.ToUpper(strings.TrimSpace(typeName))
	if strings.HasSuffix(t, "]") {
		return "LIST"
	}
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

func decodeJSON(v any) (any, error) {
	var s string
	switch v := v.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		// Composite values inside JSON columns already arrive decoded.
		return normalizeValue(v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("duckdb: decode json value: %w", err)
	}
	return out, nil
}

func decodeUUID(v any) (any, error) {
	switch v := v.(type) {
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("duckdb: decode uuid value: %w", err)
		}
		return u.String(), nil
	case []byte:
		if len(v) == 16 {
			return formatUUIDBytes(v), nil
		}
		u, err := uuid.ParseBytes(v)
		if err != nil {
			return nil, fmt.Errorf("duckdb: decode uuid value: %w", err)
		}
		return u.String(), nil
	case [16]byte:
		return formatUUIDBytes(v[:]), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Array && rv.Len() == 16 && rv.Type().Elem().Kind() == reflect.Uint8 {
		var b [16]byte
		for i := range b {
			b[i] = byte(rv.Index(i).Uint())
		}
		return formatUUIDBytes(b[:]), nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return nil, fmt.Errorf("duckdb: cannot decode %T as uuid", v)
}

func formatUUIDBytes(b []byte) string {
	var u uuid.UUID
	copy(u[:], b)
	return u.String()
}

// normalizeValue applies generic cleanup to a scanned value without a type
// hint: byte slices become strings, composites become plain maps and slices,
// decimals become exact strings. Scalars pass through unchanged.
func normalizeValue(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string, bool, int8, int16, int32, int64, int,
		uint8, uint16, uint32, uint64, uint,
		float32, float64, time.Time, *big.Int:
		return v, nil
	case []byte:
		return string(v), nil
	case duckdbgo.Decimal:
		return decimalString(v.Value, int(v.Scale)), nil
	case duckdbgo.Interval:
		return v, nil
	case duckdbgo.Map:
		return normalizeMap(reflect.ValueOf(map[any]any(v)))
	case map[any]any:
		return normalizeMap(reflect.ValueOf(v))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	}
	// Named composite types from the bindings land here.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return normalizeMap(rv)
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			ne, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	default:
		return v, nil
	}
}

func normalizeMap(rv reflect.Value) (any, error) {
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		v, err := normalizeValue(iter.Value().Interface())
		if err != nil {
			return nil, err
		}
		out[mapKey(iter.Key().Interface())] = v
	}
	return out, nil
}

func mapKey(k any) string {
	switch k := k.(type) {
	case string:
		return k
	case fmt.Stringer:
		return k.String()
	default:
		return fmt.Sprintf("%v", k)
	}
}

// decimalString renders a scaled integer as an exact decimal string,
// preserving the declared scale: value 123456 at scale 3 prints "123.456".
func decimalString(value *big.Int, scale int) string {
	if value == nil {
		return "0"
	}
	s := value.String()
	if scale <= 0 {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= scale {
		s = strings.Repeat("0", scale-len(s)+1) + s
	}
	s = s[:len(s)-scale] + "." + s[len(s)-scale:]
	if neg {
		s = "-" + s
	}
	return s
}

// decodeRow normalizes one scanned row into a column-keyed map. types holds
// database type names aligned with columns and may be shorter or nil when
// the underlying scanner does not report them.
func decodeRow(columns, types []string, values []any) (map[string]any, error) {
	row := make(map[string]any, len(columns))
	for i, name := range columns {
		var t string
		if i < len(types) {
			t = types[i]
		}
		v, err := decodeValue(t, values[i])
		if err != nil {
			return nil, fmt.Errorf("duckdb: column %q: %w", name, err)
		}
		row[name] = v
	}
	return row, nil
}

// columnTypeNames reports database type names for the scanner's columns.
// Scanners without type metadata yield nil, in which case decoding falls
// back to generic normalization.
func columnTypeNames(cs ColumnScanner) []string {
	ts, err := cs.ColumnTypes()
	if err != nil {
		return nil
	}
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.DatabaseTypeName()
	}
	return names
}

// CollectRows drains rows into normalized maps, one map per row keyed by
// column name. It consumes the scanner but does not close it; callers keep
// their usual defer rows.Close().
func CollectRows(rows *Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types := columnTypeNames(rows.ColumnScanner)
	var out []map[string]any
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row, err := decodeRow(columns, types, values)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CollectOneRow returns the first row of rows as a normalized map, or
// sql.ErrNoRows when the result set is empty.
func CollectOneRow(rows *Rows) (map[string]any, error) {
	all, err := CollectRows(rows)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, sql.ErrNoRows
	}
	return all[0], nil
}
