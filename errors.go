package confstore

import (
	"errors"
	"fmt"
)

// Errors returned by store operations.
var (
	// ErrUnknownKind indicates a FileKind with no declared layer chain.
	ErrUnknownKind = errors.New("unknown file kind")

	// ErrLayerNotInChain indicates a layer outside the kind's chain.
	ErrLayerNotInChain = errors.New("layer not in file kind's chain")

	// ErrReadOnlyLayer indicates a write against the defaults layer.
	ErrReadOnlyLayer = errors.New("layer is read-only")

	// ErrStoreClosed indicates use of a store after Close.
	ErrStoreClosed = errors.New("store closed")
)

// IOError reports a read or write failure on a present file. Absent
// optional layer files never produce one.
type IOError struct {
	// Op is "read" or "write".
	Op string
	// Path is the file involved.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error { return e.Err }
