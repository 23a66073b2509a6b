package duckfn

import (
	"sort"
	"strings"
)

// CSVOptions tune a ReadCSV scan. Zero values leave the engine's
// auto-detection on.
type CSVOptions struct {
	// Header marks the first line as column names.
	Header bool
	// Delim sets the field delimiter, e.g. "\t".
	Delim string
	// Columns maps column names to types and disables sniffing.
	Columns map[string]string
	// AllVarchar reads every column as VARCHAR.
	AllVarchar bool
}

// ReadCSV builds a read_csv table function call. The result carries no
// placeholders, so its String can serve directly as a table mapping or
// view body.
func ReadCSV(path string, opts *CSVOptions) Expr {
	parts := []string{quoteString(path)}
	if opts != nil {
		if opts.Header {
			parts = append(parts, "header = true")
		}
		if opts.Delim != "" {
			parts = append(parts, "delim = "+quoteString(opts.Delim))
		}
		if opts.AllVarchar {
			parts = append(parts, "all_varchar = true")
		}
		if len(opts.Columns) > 0 {
			parts = append(parts, "columns = "+structLiteral(opts.Columns))
		}
	}
	return Expr{SQL: "read_csv(" + strings.Join(parts, ", ") + ")"}
}

// JSONOptions tune a ReadJSON scan.
type JSONOptions struct {
	// Format is "auto", "newline_delimited" or "array".
	Format string
	// Records is "auto", "true" or "false".
	Records string
	// Columns maps column names to types and disables detection.
	Columns map[string]string
	// IgnoreErrors skips lines that fail to parse.
	IgnoreErrors bool
}

// ReadJSON builds a read_json table function call.
func ReadJSON(path string, opts *JSONOptions) Expr {
	parts := []string{quoteString(path)}
	if opts != nil {
		if opts.Format != "" {
			parts = append(parts, "format = "+quoteString(opts.Format))
		}
		if opts.Records != "" {
			parts = append(parts, "records = "+quoteString(opts.Records))
		}
		if opts.IgnoreErrors {
			parts = append(parts, "ignore_errors = true")
		}
		if len(opts.Columns) > 0 {
			parts = append(parts, "columns = "+structLiteral(opts.Columns))
		}
	}
	return Expr{SQL: "read_json(" + strings.Join(parts, ", ") + ")"}
}

// ReadParquet builds a read_parquet call over one or more files or globs.
func ReadParquet(paths ...string) Expr {
	if len(paths) == 1 {
		return Expr{SQL: "read_parquet(" + quoteString(paths[0]) + ")"}
	}
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = quoteString(p)
	}
	return Expr{SQL: "read_parquet([" + strings.Join(quoted, ", ") + "])"}
}

// structLiteral renders a name-to-type map as a struct literal with keys
// in sorted order.
func structLiteral(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteString(k))
		sb.WriteString(": ")
		sb.WriteString(quoteString(m[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}
