// Package backend defines the contract between the settings store and the
// concrete configuration file formats.
//
// A Backend parses one structured text format into formatting-preserving
// Documents. Edits go through the Op API so that untouched regions of a
// human-edited file survive byte for byte.
package backend

import "github.com/emberward/confstore/value"

// VersionKey is the reserved top-level integer field that records a
// document's schema version for the migration registry.
const VersionKey = "config_version"

// Document is a parsed configuration file. It retains the original text so
// that serializing an unmodified document reproduces its input exactly.
type Document interface {
	// Root returns the document contents as a table value.
	Root() value.Value

	// Version returns the document's schema version, read from the
	// reserved top-level field. ok is false when the field is absent.
	Version() (v int64, ok bool)

	// SetVersion writes the reserved version field in place.
	SetVersion(v int64) error

	// Bytes serializes the document. For a document that has not been
	// edited this is the exact text it was parsed from.
	Bytes() []byte

	// Apply performs one update operation in place. Operations are
	// all-or-nothing: on error the document is unchanged, bytes included.
	Apply(op Op) error
}

// Backend parses and serializes one configuration file format.
type Backend interface {
	// Name identifies the format (e.g. "toml").
	Name() string

	// Ext is the file extension for the format, with leading dot.
	Ext() string

	// Parse reads a document from text. Malformed input yields a
	// *ParseError carrying the failure location.
	Parse(data []byte) (Document, error)

	// NewDocument returns an empty document (an empty root table).
	NewDocument() Document

	// Decode deserializes a value into a typed Go struct. A shape that
	// cannot satisfy the target yields a *SchemaError naming the path.
	Decode(v value.Value, out any) error
}
