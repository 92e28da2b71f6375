package backend

import (
	"errors"
	"fmt"
)

// Errors returned by document operations.
var (
	// ErrNotFound indicates the removal or match target is absent.
	ErrNotFound = errors.New("target not found")

	// ErrOutOfBounds indicates an array index at or past the length.
	ErrOutOfBounds = errors.New("array index out of bounds")

	// ErrNotArray indicates the path does not address an array.
	ErrNotArray = errors.New("value at path is not an array")

	// ErrNotTable indicates the path traverses a non-table value.
	ErrNotTable = errors.New("value at path is not a table")

	// ErrInvalidPath indicates an empty or malformed key path.
	ErrInvalidPath = errors.New("invalid key path")
)

// ParseError reports malformed input text with its location.
type ParseError struct {
	// Path is the file the text came from, if known.
	Path string
	// Line and Column locate the failure, 1-based. Zero when unknown.
	Line   int
	Column int
	// Message describes the parse failure.
	Message string
	// Err is the underlying format library error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	case e.Path != "":
		return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
	default:
		return fmt.Sprintf("parse error: %s", e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports a merged value that cannot satisfy the target type.
type SchemaError struct {
	// Path is the dotted path of the offending field, if known.
	Path string
	// Message describes the mismatch.
	Message string
	// Err is the underlying decode error.
	Err error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("schema error at %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("schema error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error { return e.Err }
