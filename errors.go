package duckdialect

import (
	"errors"
	"fmt"
)

// Standard sentinel errors shared by driver implementations.
var (
	// ErrDriverClosed is returned when an operation is attempted on a
	// closed driver.
	ErrDriverClosed = errors.New("duckdialect: driver is closed")

	// ErrTxDone is returned by Commit or Rollback after the transaction
	// has already been completed.
	ErrTxDone = errors.New("duckdialect: transaction has already been committed or rolled back")
)

// QueryError wraps an error raised at the statement execution boundary.
// The engine's original error is preserved as the cause and unwraps.
type QueryError struct {
	Query string // Statement text as received from the builder.
	Args  []any  // Positional arguments, before placeholder rewriting.
	Err   error  // Underlying engine or adapter error.
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("duckdialect: %s: %v", compact(e.Query, 64), e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError for the given statement.
func NewQueryError(query string, args []any, err error) *QueryError {
	return &QueryError{Query: query, Args: args, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// RollbackError wraps a rollback failure that is not benign. Rollbacks that
// fail because the transaction already completed are swallowed by drivers
// and never surface as RollbackError.
type RollbackError struct {
	Err error // Original rollback failure.
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("duckdialect: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// IsRollbackError returns true if the error is a RollbackError.
func IsRollbackError(err error) bool {
	if err == nil {
		return false
	}
	var e *RollbackError
	return errors.As(err, &e)
}

// compact truncates a statement for use in error messages, collapsing it to
// a single line.
func compact(query string, max int) string {
	b := make([]byte, 0, len(query))
	space := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\n' || c == '\t' || c == '\r' || c == ' ' {
			space = len(b) > 0
			continue
		}
		if space {
			b = append(b, ' ')
			space = false
		}
		b = append(b, c)
	}
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
