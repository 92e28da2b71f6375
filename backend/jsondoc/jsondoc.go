// Package jsondoc implements the JSON configuration backend on top of
// gjson/sjson. sjson rewrites only the bytes of the addressed path, which
// gives the same formatting-preservation guarantee as the TOML backend:
// untouched regions of the document keep their exact bytes.
package jsondoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/emberward/confstore/backend"
	"github.com/emberward/confstore/value"
)

// JSON is the JSON backend.
type JSON struct{}

// New returns the JSON backend.
func New() *JSON { return &JSON{} }

// Name implements backend.Backend.
func (*JSON) Name() string { return "json" }

// Ext implements backend.Backend.
func (*JSON) Ext() string { return ".json" }

// Parse implements backend.Backend. Whitespace-only input is an empty
// document, matching the "missing layer is an empty table" rule for files
// that exist but have no content yet.
func (*JSON) Parse(data []byte) (backend.Document, error) {
	raw := make([]byte, len(data))
	copy(raw, data)
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Document{raw: raw, root: value.EmptyTable()}, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, syntaxError(data)
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil, &backend.ParseError{Message: "top-level value must be an object"}
	}
	return &Document{raw: raw, root: fromResult(res)}, nil
}

// NewDocument implements backend.Backend.
func (*JSON) NewDocument() backend.Document {
	return &Document{raw: []byte{}, root: value.EmptyTable()}
}

// Decode implements backend.Backend.
func (*JSON) Decode(v value.Value, out any) error {
	if !v.IsTable() {
		return &backend.SchemaError{Message: fmt.Sprintf("cannot decode %s into a struct", v.Kind())}
	}
	data, err := json.Marshal(v.ToAny())
	if err != nil {
		return &backend.SchemaError{Message: err.Error(), Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		var terr *json.UnmarshalTypeError
		if errors.As(err, &terr) {
			return &backend.SchemaError{Path: terr.Field, Message: err.Error(), Err: err}
		}
		return &backend.SchemaError{Message: err.Error(), Err: err}
	}
	return nil
}

// Document is a parsed JSON file. Not safe for concurrent use; the settings
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
	raw, err := d.applyOp(op)
	if err != nil {
		return fmt.Errorf("%s %q: %w", op.Kind, op.Path, err)
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("%s %q: edit produced invalid document", op.Kind, op.Path)
	}
	d.raw = raw
	d.root = fromResult(gjson.ParseBytes(raw))
	return nil
}

func (d *Document) applyOp(op backend.Op) ([]byte, error) {
	parts := value.SplitPath(op.Path)
	if len(parts) == 0 {
		return nil, backend.ErrInvalidPath
	}
	base := d.raw
	if len(strings.TrimSpace(string(base))) == 0 {
		base = []byte("{}")
	}

	switch op.Kind {
	case backend.OpSet:
		if err := checkTablePath(d.root, parts); err != nil {
			return nil, err
		}
		return sjson.SetBytes(base, op.Path, op.Value.ToAny())

	case backend.OpRemoveKey:
		if _, ok := getParts(d.root, parts); !ok {
			return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, op.Path)
		}
		return sjson.DeleteBytes(base, op.Path)

	case backend.OpRemoveIndex, backend.OpRemoveMatch, backend.OpUpsert:
		return d.applyArrayOp(base, parts, op)

	default:
		return nil, fmt.Errorf("unknown op kind %d", op.Kind)
	}
}

func (d *Document) applyArrayOp(base []byte, parts []string, op backend.Op) ([]byte, error) {
	arr, ok := getParts(d.root, parts)
	if !ok {
		if op.Kind == backend.OpUpsert {
			return sjson.SetBytes(base, op.Path, value.Array(op.Element).ToAny())
		}
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, op.Path)
	}
	if !arr.IsArray() {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotArray, op.Path)
	}
	elems := arr.Elems()

	switch op.Kind {
	case backend.OpRemoveIndex:
		if op.Index < 0 || op.Index >= len(elems) {
			return nil, fmt.Errorf("%w: index %d, length %d", backend.ErrOutOfBounds, op.Index, len(elems))
		}
		return sjson.DeleteBytes(base, elemPath(op.Path, op.Index))

	case backend.OpRemoveMatch:
		i := matchIndex(elems, op.MatchKey, op.MatchValue)
		if i < 0 {
			return nil, fmt.Errorf("%w: no element with %s = %s", backend.ErrNotFound, op.MatchKey, op.MatchValue)
		}
		return sjson.DeleteBytes(base, elemPath(op.Path, i))

	default: // backend.OpUpsert
		i := matchIndex(elems, op.MatchKey, op.MatchValue)
		if i < 0 {
			return sjson.SetBytes(base, op.Path+".-1", op.Element.ToAny())
		}
		merged := value.DeepMerge(elems[i], op.Element)
		return sjson.SetBytes(base, elemPath(op.Path, i), merged.ToAny())
	}
}

func elemPath(path string, i int) string {
	return path + "." + strconv.Itoa(i)
}

func matchIndex(elems []value.Value, key string, v value.Value) int {
	for i, e := range elems {
		if !e.IsTable() {
			continue
		}
		if f, ok := e.Field(key); ok && f.Equal(v) {
			return i
		}
	}
	return -1
}

func getParts(v value.Value, parts []string) (value.Value, bool) {
	cur := v
	for _, p := range parts {
		next, ok := cur.Field(p)
		if !ok {
			return value.Value{}, false
		}
		cur = next
	}
	return cur, true
}

func checkTablePath(root value.Value, parts []string) error {
	cur := root
	for i := 0; i < len(parts)-1; i++ {
		f, ok := cur.Field(parts[i])
		if !ok {
			return nil
		}
		if !f.IsTable() {
			return fmt.Errorf("%w: %s", backend.ErrNotTable, value.JoinPath(parts[:i+1]))
		}
		cur = f
	}
	return nil
}

// fromResult converts a gjson tree into the value model. Integer-looking
// numbers stay integers; anything with a fraction or exponent is a float.
func fromResult(r gjson.Result) value.Value {
	switch {
	case r.Type == gjson.Null:
		return value.Null()
	case r.Type == gjson.True:
		return value.Bool(true)
	case r.Type == gjson.False:
		return value.Bool(false)
	case r.Type == gjson.String:
		return value.String(r.Str)
	case r.Type == gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			return value.Integer(r.Int())
		}
		return value.Float(r.Num)
	case r.IsArray():
		var elems []value.Value
		r.ForEach(func(_, e gjson.Result) bool {
			elems = append(elems, fromResult(e))
			return true
		})
		return value.Array(elems...)
	case r.IsObject():
		fields := make(map[string]value.Value)
		r.ForEach(func(k, e gjson.Result) bool {
			fields[k.String()] = fromResult(e)
			return true
		})
		return value.Table(fields)
	default:
		return value.Null()
	}
}

// syntaxError derives a line/column position from the stdlib decoder.
func syntaxError(data []byte) error {
	var x any
	err := json.Unmarshal(data, &x)
	if err == nil {
		return &backend.ParseError{Message: "invalid json"}
	}
	var serr *json.SyntaxError
	if errors.As(err, &serr) {
		line, col := 1, 1
		for i := int64(0); i < serr.Offset-1 && i < int64(len(data)); i++ {
			if data[i] == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
		return &backend.ParseError{Line: line, Column: col, Message: serr.Error(), Err: err}
	}
	return &backend.ParseError{Message: err.Error(), Err: err}
}
