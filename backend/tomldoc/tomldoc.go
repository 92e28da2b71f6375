// Package tomldoc implements the TOML configuration backend.
//
// Documents retain the exact text they were parsed from. Semantic reads go
// through the go-toml decoder; edits splice only the bytes that the
// operation touches, so comments, ordering, and whitespace in untouched
// regions survive any update or migration. Every spliced result is
// re-parsed before it replaces the document, which makes each operation
// all-or-nothing.
package tomldoc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/emberward/confstore/backend"
	"github.com/emberward/confstore/value"
)

// TOML is the TOML backend.
type TOML struct{}

// New returns the TOML backend.
func New() *TOML { return &TOML{} }

// Name implements backend.Backend.
func (*TOML) Name() string { return "toml" }

// Ext implements backend.Backend.
func (*TOML) Ext() string { return ".toml" }

// Parse implements backend.Backend.
func (*TOML) Parse(data []byte) (backend.Document, error) {
	root, err := parseRoot(data)
	if err != nil {
		return nil, parseError(err)
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Document{raw: raw, root: root}, nil
}

// NewDocument implements backend.Backend.
func (*TOML) NewDocument() backend.Document {
	return &Document{raw: []byte{}, root: value.EmptyTable()}
}

// Decode implements backend.Backend. The value is re-marshaled through the
// TOML codec so struct tags, embedded types, and time handling match the
// library's usual decoding.
func (*TOML) Decode(v value.Value, out any) error {
	if !v.IsTable() {
		return &backend.SchemaError{Message: fmt.Sprintf("cannot decode %s into a struct", v.Kind())}
	}
	data, err := toml.Marshal(dropNulls(v).ToAny())
	if err != nil {
		return &backend.SchemaError{Message: err.Error(), Err: err}
	}
	if err := toml.Unmarshal(data, out); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return &backend.SchemaError{
				Path:    strings.Join(derr.Key(), "."),
				Message: derr.Error(),
				Err:     err,
			}
		}
		return &backend.SchemaError{Message: err.Error(), Err: err}
	}
	return nil
}

// Document is a parsed TOML file. Not safe for concurrent use; the settings
// store serializes access per file.
type Document struct {
	raw  []byte
	root value.Value
}

// Root implements backend.Document.
func (d *Document) Root() value.Value { return d.root.Clone() }

// Bytes implements backend.Document.
func (d *Document) Bytes() []byte {
	out := make([]byte, len(d.raw))
	copy(out, d.raw)
	return out
}

// Version implements backend.Document.
func (d *Document) Version() (int64, bool) {
	f, ok := d.root.Field(backend.VersionKey)
	if !ok {
		return 0, false
	}
	return f.AsInteger()
}

// SetVersion implements backend.Document.
func (d *Document) SetVersion(v int64) error {
	return d.Apply(backend.Set(backend.VersionKey, value.Integer(v)))
}

// Apply implements backend.Document.
func (d *Document) Apply(op backend.Op) error {
	raw, err := applyOp(d.raw, d.root, op)
	if err != nil {
		return fmt.Errorf("%s %q: %w", op.Kind, op.Path, err)
	}
	root, err := parseRoot(raw)
	if err != nil {
		// The splice produced text the TOML parser rejects; the
		// document keeps its previous bytes.
		return fmt.Errorf("%s %q: edit produced invalid document: %w", op.Kind, op.Path, err)
	}
	d.raw = raw
	d.root = root
	return nil
}

// parseRoot decodes document text into the value model.
func parseRoot(data []byte) (value.Value, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return value.Value{}, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return value.FromAny(normalizeTree(m))
}

// parseError converts a go-toml decode failure into the backend taxonomy.
func parseError(err error) error {
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		row, col := derr.Position()
		return &backend.ParseError{Line: row, Column: col, Message: derr.Error(), Err: err}
	}
	return &backend.ParseError{Message: err.Error(), Err: err}
}

// dropNulls strips null table fields before marshaling, since TOML has no
// null literal.
func dropNulls(v value.Value) value.Value {
	switch v.Kind() {
	case value.KindTable:
		out := make(map[string]value.Value, v.Len())
		for k, f := range v.Fields() {
			if f.IsNull() {
				continue
			}
			out[k] = dropNulls(f)
		}
		return value.Table(out)
	case value.KindArray:
		out := make([]value.Value, 0, v.Len())
		for _, e := range v.Elems() {
			if e.IsNull() {
				continue
			}
			out = append(out, dropNulls(e))
		}
		return value.Array(out...)
	default:
		return v
	}
}
