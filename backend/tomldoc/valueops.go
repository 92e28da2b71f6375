package tomldoc

import (
	"github.com/emberward/confstore/backend"
	"github.com/emberward/confstore/value"
)

// Semantic counterparts of the splice operations, used when a path descends
// into an inline-table entry and the whole entry value must be re-rendered.

// getParts walks nested tables by explicit key segments.
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

// checkTablePath rejects writes whose intermediate segments traverse a
// non-table value.
func checkTablePath(root value.Value, parts []string) error {
	cur := root
	for i := 0; i < len(parts)-1; i++ {
		f, ok := cur.Field(parts[i])
		if !ok {
			return nil
		}
		if !f.IsTable() {
			return pathErr(backend.ErrNotTable, parts[:i+1])
		}
		cur = f
	}
	return nil
}

// setInValue returns base with v written at parts, creating intermediate
// tables as needed. base is not mutated.
func setInValue(base value.Value, parts []string, v value.Value) (value.Value, error) {
	if len(parts) == 0 {
		return v.Clone(), nil
	}
	if !base.IsTable() {
		return value.Value{}, pathErr(backend.ErrNotTable, parts)
	}
	out := base.Clone()
	cur := out
	for i := 0; i < len(parts)-1; i++ {
		next, ok := cur.Field(parts[i])
		if !ok {
			next = value.EmptyTable()
		} else if !next.IsTable() {
			return value.Value{}, pathErr(backend.ErrNotTable, parts[:i+1])
		}
		cur.Fields()[parts[i]] = next
		cur = next
	}
	cur.Fields()[parts[len(parts)-1]] = v.Clone()
	return out, nil
}

// removeInValue returns base without the entry at parts.
func removeInValue(base value.Value, parts []string) (value.Value, error) {
	if len(parts) == 0 || !base.IsTable() {
		return value.Value{}, pathErr(backend.ErrNotFound, parts)
	}
	out := base.Clone()
	cur := out
	for i := 0; i < len(parts)-1; i++ {
		next, ok := cur.Field(parts[i])
		if !ok || !next.IsTable() {
			return value.Value{}, pathErr(backend.ErrNotFound, parts)
		}
		cur = next
	}
	leaf := parts[len(parts)-1]
	if _, ok := cur.Field(leaf); !ok {
		return value.Value{}, pathErr(backend.ErrNotFound, parts)
	}
	delete(cur.Fields(), leaf)
	return out, nil
}

// arrayOpInValue applies an array operation to the array at parts within
// base, using a pre-computed target index.
func arrayOpInValue(base value.Value, parts []string, op backend.Op, target int) (value.Value, error) {
	arr, ok := getParts(base, parts)
	if !ok || !arr.IsArray() {
		return value.Value{}, pathErr(backend.ErrNotArray, parts)
	}
	elems := arr.Elems()

	var out []value.Value
	switch op.Kind {
	case backend.OpRemoveIndex, backend.OpRemoveMatch:
		out = make([]value.Value, 0, len(elems)-1)
		for i, e := range elems {
			if i != target {
				out = append(out, e.Clone())
			}
		}
	default: // backend.OpUpsert
		out = make([]value.Value, 0, len(elems)+1)
		for i, e := range elems {
			if i == target {
				out = append(out, value.DeepMerge(e, op.Element))
			} else {
				out = append(out, e.Clone())
			}
		}
		if target < 0 {
			out = append(out, op.Element.Clone())
		}
	}
	return setInValue(base, parts, value.Array(out...))
}

// matchIndex returns the index of the first table element whose key field
// equals v, or -1.
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
