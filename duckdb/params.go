package duckdb

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// paramPrefix names rewritten positional parameters. The first positional
// argument binds as $param1, the second as $param2, and so on.
const paramPrefix = "param"

func paramName(i int) string {
	return paramPrefix + strconv.Itoa(i)
}

func namedPlaceholder(i int) string {
	return "$" + paramName(i)
}

type placeholderStyle int

const (
	styleNone placeholderStyle = iota
	styleQuestion
	styleOrdinal
	styleNamed
)

// rewriteQuery converts builder placeholders to the engine's named form and
// pairs every argument with its parameter name. Both ? and $N styles are
// accepted, but not mixed in one statement; $name placeholders pass through
// and require sql.Named arguments. Placeholders inside string literals,
// quoted identifiers, dollar-quoted strings and comments are left alone.
func rewriteQuery(query string, args []any) (string, []any, error) {
	if !strings.ContainsAny(query, "?$") {
		if len(args) > 0 {
			return "", nil, fmt.Errorf("duckdb: statement has no placeholders, but %d arguments were given", len(args))
		}
		return query, nil, nil
	}

	var (
		sb       strings.Builder
		style    = styleNone
		ordinals = make(map[int]bool)
		names    = make(map[string]bool)
		count    int
	)
	sb.Grow(len(query) + 8)

	use := func(s placeholderStyle) error {
		if style == styleNone {
			style = s
			return nil
		}
		if style != s {
			return fmt.Errorf("duckdb: statement mixes placeholder styles")
		}
		return nil
	}

	for i := 0; i < len(query); {
		switch c := query[i]; c {
		case '\'', '"':
			j := skipQuoted(query, i, c)
			sb.WriteString(query[i:j])
			i = j
		case '-':
			if i+1 < len(query) && query[i+1] == '-' {
				j := skipLineComment(query, i)
				sb.WriteString(query[i:j])
				i = j
				break
			}
			sb.WriteByte(c)
			i++
		case '/':
			if i+1 < len(query) && query[i+1] == '*' {
				j := skipBlockComment(query, i)
				sb.WriteString(query[i:j])
				i = j
				break
			}
			sb.WriteByte(c)
			i++
		case '?':
			if err := use(styleQuestion); err != nil {
				return "", nil, err
			}
			count++
			sb.WriteString(namedPlaceholder(count))
			i++
		case '$':
			j := i + 1
			for j < len(query) && isIdentByte(query[j]) {
				j++
			}
			if j < len(query) && query[j] == '$' {
				// Dollar-quoted string, copy through to the closing tag.
				k := skipDollarQuoted(query, i, j)
				sb.WriteString(query[i:k])
				i = k
				break
			}
			name := query[i+1 : j]
			if name == "" {
				sb.WriteByte('$')
				i++
				break
			}
			if n, ok := parseOrdinal(name); ok {
				if err := use(styleOrdinal); err != nil {
					return "", nil, err
				}
				if n < 1 || n > len(args) {
					return "", nil, fmt.Errorf("duckdb: placeholder $%d out of range: statement has %d arguments", n, len(args))
				}
				ordinals[n] = true
				sb.WriteString(namedPlaceholder(n))
				i = j
				break
			}
			if err := use(styleNamed); err != nil {
				return "", nil, err
			}
			names[name] = true
			sb.WriteString(query[i:j])
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}

	out, err := bindArgs(style, count, ordinals, names, args)
	if err != nil {
		return "", nil, err
	}
	return sb.String(), out, nil
}

func bindArgs(style placeholderStyle, count int, ordinals map[int]bool, names map[string]bool, args []any) ([]any, error) {
	switch style {
	case styleNone:
		if len(args) > 0 {
			return nil, fmt.Errorf("duckdb: statement has no placeholders, but %d arguments were given", len(args))
		}
		return nil, nil
	case styleQuestion:
		if count != len(args) {
			return nil, fmt.Errorf("duckdb: statement expects %d arguments, got %d", count, len(args))
		}
		return bindPositional(args)
	case styleOrdinal:
		for n := 1; n <= len(args); n++ {
			if !ordinals[n] {
				return nil, fmt.Errorf("duckdb: argument %d ($%d) is never referenced", n, n)
			}
		}
		return bindPositional(args)
	default: // styleNamed
		out := make([]any, len(args))
		seen := make(map[string]bool, len(args))
		for i, a := range args {
			na, ok := a.(sql.NamedArg)
			if !ok {
				return nil, fmt.Errorf("duckdb: $name placeholders require sql.Named arguments, got %T", a)
			}
			if !names[na.Name] {
				return nil, fmt.Errorf("duckdb: argument %q is never referenced", na.Name)
			}
			v, err := bindArg(na.Value)
			if err != nil {
				return nil, err
			}
			seen[na.Name] = true
			out[i] = sql.Named(na.Name, v)
		}
		for name := range names {
			if !seen[name] {
				return nil, fmt.Errorf("duckdb: missing argument for placeholder $%s", name)
			}
		}
		return out, nil
	}
}

func bindPositional(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		if na, ok := a.(sql.NamedArg); ok {
			return nil, fmt.Errorf("duckdb: positional placeholders cannot take sql.Named argument %q", na.Name)
		}
		v, err := bindArg(a)
		if err != nil {
			return nil, err
		}
		out[i] = sql.Named(paramName(i+1), v)
	}
	return out, nil
}

// bindArg normalizes a Go value into a form the engine bindings accept.
// Maps, slices and plain structs without a driver.Valuer bind as JSON text,
// matching how JSON columns expect their parameters.
func bindArg(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case driver.Valuer:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	case [16]byte:
		return formatUUIDBytes(v[:]), nil
	case string, bool, []byte, time.Time, time.Duration,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return bindArg(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("duckdb: cannot bind %T parameter: %w", v, err)
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// SplitStatements splits a SQL script into statements on top-level
// semicolons. Semicolons inside string literals, quoted identifiers,
// dollar-quoted strings and comments do not split, and fragments holding
// only whitespace or comments are dropped.
func SplitStatements(script string) []string {
	var (
		out      []string
		start    int
		hasToken bool
	)
	flush := func(end int) {
		if hasToken {
			if s := strings.TrimSpace(script[start:end]); s != "" {
				out = append(out, s)
			}
		}
		hasToken = false
	}
	for i := 0; i < len(script); {
		switch c := script[i]; c {
		case '\'', '"':
			hasToken = true
			i = skipQuoted(script, i, c)
		case '-':
			if i+1 < len(script) && script[i+1] == '-' {
				i = skipLineComment(script, i)
				break
			}
			hasToken = true
			i++
		case '/':
			if i+1 < len(script) && script[i+1] == '*' {
				i = skipBlockComment(script, i)
				break
			}
			hasToken = true
			i++
		case '$':
			hasToken = true
			j := i + 1
			for j < len(script) && isIdentByte(script[j]) {
				j++
			}
			if j < len(script) && script[j] == '$' {
				i = skipDollarQuoted(script, i, j)
				break
			}
			i = j
		case ';':
			flush(i)
			i++
			start = i
		default:
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				hasToken = true
			}
			i++
		}
	}
	flush(len(script))
	return out
}

func parseOrdinal(s string) (int, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}

// skipQuoted returns the index just past a quoted region starting at i,
// honoring doubled quote escapes. Unterminated regions run to the end.
func skipQuoted(query string, i int, q byte) int {
	j := i + 1
	for j < len(query) {
		if query[j] == q {
			if j+1 < len(query) && query[j+1] == q {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(query)
}

func skipLineComment(query string, i int) int {
	if n := strings.IndexByte(query[i:], '\n'); n >= 0 {
		return i + n + 1
	}
	return len(query)
}

// skipBlockComment honors nesting, as the engine's parser does.
func skipBlockComment(query string, i int) int {
	depth := 1
	j := i + 2
	for j < len(query) && depth > 0 {
		switch {
		case strings.HasPrefix(query[j:], "/*"):
			depth++
			j += 2
		case strings.HasPrefix(query[j:], "*/"):
			depth--
			j += 2
		default:
			j++
		}
	}
	return j
}

// skipDollarQuoted returns the index just past a dollar-quoted string whose
// opening tag spans query[i:tagEnd+1], e.g. $$...$$ or $json$...$json$.
func skipDollarQuoted(query string, i, tagEnd int) int {
	tag := query[i : tagEnd+1]
	if n := strings.Index(query[tagEnd+1:], tag); n >= 0 {
		return tagEnd + 1 + n + len(tag)
	}
	return len(query)
}
