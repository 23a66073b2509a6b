package duckdb

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrLastInsertID is returned by Result.LastInsertId. The engine does not
// report generated keys; use a RETURNING clause instead.
var ErrLastInsertID = errors.New("duckdb: LastInsertId is not supported, add a RETURNING clause")

// The engine prefixes every error message with its class. The helpers below
// classify errors without depending on binding-specific error types, so they
// also work on errors that crossed a wrapping boundary.

// IsConstraintError reports whether err is a constraint violation, such as
// a duplicate key or a failed NOT NULL or CHECK constraint.
func IsConstraintError(err error) bool {
	return hasErrorClass(err, "Constraint Error")
}

// IsCatalogError reports whether err refers to a missing or conflicting
// catalog entry, such as an unknown table or a duplicate view name.
func IsCatalogError(err error) bool {
	return hasErrorClass(err, "Catalog Error")
}

// IsParserError reports whether err is a syntax error.
func IsParserError(err error) bool {
	return hasErrorClass(err, "Parser Error")
}

// IsBinderError reports whether err is a binding failure, such as an
// unknown column or an unresolvable function.
func IsBinderError(err error) bool {
	return hasErrorClass(err, "Binder Error")
}

// IsConversionError reports whether err is a cast or conversion failure.
func IsConversionError(err error) bool {
	return hasErrorClass(err, "Conversion Error")
}

func hasErrorClass(err error, class string) bool {
	return err != nil && strings.Contains(err.Error(), class)
}

// isBenignRollback reports whether a rollback failure only states that the
// transaction is already settled. Rolling back twice, or after a commit, is
// a no-op rather than an error.
func isBenignRollback(err error) bool {
	if errors.Is(err, sql.ErrTxDone) {
		return true
	}
	return hasErrorClass(err, "no transaction is active")
}
