package value

import (
	"sort"
	"strings"
)

// DeepMerge merges overlay onto base and returns the result.
// Tables merge recursively: overlay-only keys are inserted, shared keys are
// merged, base-only keys are kept. Arrays replace wholesale, as does any
// other kind pairing, including type-changing overrides. Neither input is
// mutated.
func DeepMerge(base, overlay Value) Value {
	if base.kind == KindTable && overlay.kind == KindTable {
		out := make(map[string]Value, len(base.tab)+len(overlay.tab))
		for k, bv := range base.tab {
			out[k] = bv.Clone()
		}
		for k, ov := range overlay.tab {
			if bv, ok := out[k]; ok {
				out[k] = DeepMerge(bv, ov)
			} else {
				out[k] = ov.Clone()
			}
		}
		return Table(out)
	}
	return overlay.Clone()
}

// MergeAll folds values left to right with DeepMerge. The fold is
// order-sensitive; callers pass layers in their declared precedence order,
// lowest first.
func MergeAll(vals ...Value) Value {
	out := EmptyTable()
	for _, v := range vals {
		out = DeepMerge(out, v)
	}
	return out
}

// SplitPath splits a dotted key path into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// JoinPath joins path segments into a dotted key path.
func JoinPath(parts []string) string {
	return strings.Join(parts, ".")
}

// GetPath descends through nested tables following a dotted key path.
func GetPath(v Value, path string) (Value, bool) {
	cur := v
	for _, part := range SplitPath(path) {
		next, ok := cur.Field(part)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Flatten reduces nested tables to a single-level map keyed by dotted paths.
// Arrays and scalars are leaves; an empty table flattens to nothing.
func Flatten(v Value) map[string]Value {
	out := make(map[string]Value)
	flattenInto(v, "", out)
	return out
}

func flattenInto(v Value, prefix string, out map[string]Value) {
	if v.kind != KindTable {
		if prefix != "" {
			out[prefix] = v
		}
		return
	}
	for k, f := range v.tab {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if f.kind == KindTable {
			flattenInto(f, key, out)
		} else {
			out[key] = f
		}
	}
}

// FlattenKeys returns the sorted leaf paths of a value.
func FlattenKeys(v Value) []string {
	flat := Flatten(v)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
