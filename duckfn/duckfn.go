// Package duckfn builds SQL fragments for the engine's extension
// functions: JSON inspection, spatial predicates, vector similarity and
// external file scans.
//
// Helpers return an Expr holding SQL text with ? placeholders and the
// values bound to them. Exprs compose: passing one as an argument to
// another helper splices its text in place of a placeholder. Execute an
// Expr through the driver by embedding its SQL and appending its Args, or
// render it as pure SQL with literal values via String for view bodies
// and table mappings.
package duckfn

import (
	"fmt"
	"strings"

	"github.com/oorabona/duckdialect/duckdb"
)

// Expr is a SQL fragment with positional ? placeholders and the arguments
// bound to them, in order.
type Expr struct {
	SQL  string
	Args []any
}

// Col quotes a column reference, with "table.column" quoted per part.
func Col(name string) Expr {
	return Expr{SQL: duckdb.QuoteIdent(name)}
}

// Raw wraps trusted SQL text and its bound arguments as an expression.
func Raw(sql string, args ...any) Expr {
	return Expr{SQL: sql, Args: args}
}

// Func builds a call to an arbitrary function fn. Expr arguments splice
// in as SQL, anything else binds as a placeholder.
func Func(fn string, args ...any) (Expr, error) {
	if !validFuncName(fn) {
		return Expr{}, fmt.Errorf("duckfn: invalid function name %q", fn)
	}
	return call(fn, args...), nil
}

func call(fn string, args ...any) Expr {
	var sb strings.Builder
	sb.WriteString(fn)
	sb.WriteByte('(')
	var bound []any
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		if e, ok := a.(Expr); ok {
			sb.WriteString(e.SQL)
			bound = append(bound, e.Args...)
			continue
		}
		sb.WriteByte('?')
		bound = append(bound, a)
	}
	sb.WriteByte(')')
	return Expr{SQL: sb.String(), Args: bound}
}

// Literal renders the expression with every bound argument formatted as a
// SQL literal. Placeholders inside quoted strings do not count, and a
// mismatch between placeholders and arguments is an error.
func (e Expr) Literal() (string, error) {
	var sb strings.Builder
	sb.Grow(len(e.SQL))
	next := 0
	for i := 0; i < len(e.SQL); {
		switch c := e.SQL[i]; c {
		case '\'', '"':
			j := skipQuoted(e.SQL, i, c)
			sb.WriteString(e.SQL[i:j])
			i = j
		case '?':
			if next >= len(e.Args) {
				return "", fmt.Errorf("duckfn: missing argument for placeholder %d", next+1)
			}
			v, err := duckdb.FormatValue(e.Args[next])
			if err != nil {
				return "", fmt.Errorf("duckfn: argument %d: %w", next+1, err)
			}
			sb.WriteString(v)
			next++
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	if next < len(e.Args) {
		return "", fmt.Errorf("duckfn: %d unused arguments", len(e.Args)-next)
	}
	return sb.String(), nil
}

// String renders like Literal but substitutes NULL for arguments that
// have no literal form. Use Literal when that distinction matters.
func (e Expr) String() string {
	s, err := e.Literal()
	if err == nil {
		return s
	}
	safe := make([]any, len(e.Args))
	for i, a := range e.Args {
		if _, err := duckdb.FormatValue(a); err != nil {
			safe[i] = nil
			continue
		}
		safe[i] = a
	}
	s, err = Expr{SQL: e.SQL, Args: safe}.Literal()
	if err != nil {
		return e.SQL
	}
	return s
}

// skipQuoted advances past a quoted run opened at i by quote q, honoring
// doubled quotes as escapes.
func skipQuoted(s string, i int, q byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

func validFuncName(fn string) bool {
	if fn == "" {
		return false
	}
	for i := 0; i < len(fn); i++ {
		c := fn[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func quoteString(s string) string {
	v, _ := duckdb.FormatValue(s)
	return v
}
