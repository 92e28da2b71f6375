package tomldoc

import (
	"fmt"
	"sort"

	"github.com/emberward/confstore/backend"
	"github.com/emberward/confstore/value"
)

// applyOp computes the edited document bytes for one operation. The caller
// re-parses the result before committing it, so a splice that produces
// invalid TOML never replaces the document.
func applyOp(data []byte, root value.Value, op backend.Op) ([]byte, error) {
	parts := value.SplitPath(op.Path)
	switch op.Kind {
	case backend.OpSet:
		return applySet(data, root, parts, op.Value)
	case backend.OpRemoveKey:
		return applyRemoveKey(data, root, parts)
	case backend.OpRemoveIndex, backend.OpRemoveMatch, backend.OpUpsert:
		return applyArrayOp(data, root, parts, op)
	default:
		return nil, fmt.Errorf("unknown op kind %d", op.Kind)
	}
}

func applySet(data []byte, root value.Value, parts []string, v value.Value) ([]byte, error) {
	if len(parts) == 0 {
		return nil, backend.ErrInvalidPath
	}
	if err := checkTablePath(root, parts); err != nil {
		return nil, err
	}
	idx, err := scan(data)
	if err != nil {
		return nil, err
	}

	// The common case: the key already exists as a key-value expression.
	if _, e := findEntry(idx, parts); e != nil {
		repl, err := renderInline(v)
		if err != nil {
			return nil, err
		}
		return splice(data, e.valStart, e.valEnd, repl), nil
	}

	// The path continues inside an inline-table entry. Rewrite that one
	// entry's value; the rest of the line and file are untouched.
	if sec, e, rest := findEntryPrefix(idx, parts); e != nil {
		base, _ := getParts(root, joinKeys(sec.path, e.key))
		nv, err := setInValue(base, rest, v)
		if err != nil {
			return nil, err
		}
		repl, err := renderInline(nv)
		if err != nil {
			return nil, err
		}
		return splice(data, e.valStart, e.valEnd, repl), nil
	}

	// The path names a table (or array of tables) materialized as
	// sections. Replace the whole region.
	if secs := sectionsWithPrefix(idx, parts); len(secs) > 0 {
		pos := secs[0].headStart
		for i := len(secs) - 1; i >= 0; i-- {
			data = splice(data, secs[i].headStart, secs[i].bodyEnd, "")
		}
		if v.IsTable() {
			text, err := renderSection(parts, v)
			if err != nil {
				return nil, err
			}
			return splice(data, pos, pos, text), nil
		}
		root, err = parseRoot(data)
		if err != nil {
			return nil, err
		}
		return applySet(data, root, parts, v)
	}

	// New key.
	if len(parts) == 1 {
		line, err := renderEntryLine(parts, v)
		if err != nil {
			return nil, err
		}
		return insertLine(data, idx.sections[0], line), nil
	}
	if sec, rest := deepestSection(idx, parts); sec != nil {
		line, err := renderEntryLine(rest, v)
		if err != nil {
			return nil, err
		}
		return insertLine(data, sec, line), nil
	}

	// No enclosing section exists yet; create the parent table.
	var text string
	if v.IsTable() {
		text, err = renderSection(parts, v)
	} else {
		leaf := map[string]value.Value{parts[len(parts)-1]: v}
		text, err = renderSection(parts[:len(parts)-1], value.Table(leaf))
	}
	if err != nil {
		return nil, err
	}
	return appendSection(data, text), nil
}

func applyRemoveKey(data []byte, root value.Value, parts []string) ([]byte, error) {
	if len(parts) == 0 {
		return nil, backend.ErrInvalidPath
	}
	if _, ok := getParts(root, parts); !ok {
		return nil, pathErr(backend.ErrNotFound, parts)
	}
	idx, err := scan(data)
	if err != nil {
		return nil, err
	}

	if _, e := findEntry(idx, parts); e != nil {
		return splice(data, e.lineStart, e.lineEnd, ""), nil
	}
	if sec, e, rest := findEntryPrefix(idx, parts); e != nil {
		base, _ := getParts(root, joinKeys(sec.path, e.key))
		nv, err := removeInValue(base, rest)
		if err != nil {
			return nil, err
		}
		repl, err := renderInline(nv)
		if err != nil {
			return nil, err
		}
		return splice(data, e.valStart, e.valEnd, repl), nil
	}
	if secs := sectionsWithPrefix(idx, parts); len(secs) > 0 {
		for i := len(secs) - 1; i >= 0; i-- {
			data = splice(data, secs[i].headStart, secs[i].bodyEnd, "")
		}
		return data, nil
	}
	return nil, pathErr(backend.ErrNotFound, parts)
}

func applyArrayOp(data []byte, root value.Value, parts []string, op backend.Op) ([]byte, error) {
	if len(parts) == 0 {
		return nil, backend.ErrInvalidPath
	}
	arr, ok := getParts(root, parts)
	if !ok {
		if op.Kind == backend.OpUpsert {
			// A missing array behaves as empty: the upsert creates it
			// with the element as its only entry.
			return applySet(data, root, parts, value.Array(op.Element))
		}
		return nil, pathErr(backend.ErrNotFound, parts)
	}
	if !arr.IsArray() {
		return nil, pathErr(backend.ErrNotArray, parts)
	}
	elems := arr.Elems()

	target := -1
	switch op.Kind {
	case backend.OpRemoveIndex:
		if op.Index < 0 || op.Index >= len(elems) {
			return nil, fmt.Errorf("%w: index %d, length %d", backend.ErrOutOfBounds, op.Index, len(elems))
		}
		target = op.Index
	case backend.OpRemoveMatch, backend.OpUpsert:
		target = matchIndex(elems, op.MatchKey, op.MatchValue)
		if target < 0 && op.Kind == backend.OpRemoveMatch {
			return nil, fmt.Errorf("%w: no element with %s = %s", backend.ErrNotFound, op.MatchKey, op.MatchValue)
		}
	}

	idx, err := scan(data)
	if err != nil {
		return nil, err
	}
	if group := arraySections(idx, parts); len(group) > 0 {
		return applyArraySectionOp(data, parts, group, elems, op, target)
	}

	e := func() *entry {
		_, e := findEntry(idx, parts)
		return e
	}()
	if e == nil {
		// Array nested inside an inline-table entry.
		sec, pe, rest := findEntryPrefix(idx, parts)
		if pe == nil {
			return nil, pathErr(backend.ErrNotFound, parts)
		}
		base, _ := getParts(root, joinKeys(sec.path, pe.key))
		nv, err := arrayOpInValue(base, rest, op, target)
		if err != nil {
			return nil, err
		}
		repl, err := renderInline(nv)
		if err != nil {
			return nil, err
		}
		return splice(data, pe.valStart, pe.valEnd, repl), nil
	}

	spans, err := scanElems(data, e.valStart, e.valEnd)
	if err != nil {
		return nil, err
	}
	if len(spans) != len(elems) {
		return nil, fmt.Errorf("array element mismatch at %s", value.JoinPath(parts))
	}

	switch op.Kind {
	case backend.OpRemoveIndex, backend.OpRemoveMatch:
		if len(spans) == 1 {
			return splice(data, e.valStart, e.valEnd, "[]"), nil
		}
		if target == len(spans)-1 {
			return splice(data, spans[target-1][1], spans[target][1], ""), nil
		}
		return splice(data, spans[target][0], spans[target+1][0], ""), nil

	default: // backend.OpUpsert
		if target >= 0 {
			merged := value.DeepMerge(elems[target], op.Element)
			repl, err := renderInline(merged)
			if err != nil {
				return nil, err
			}
			return splice(data, spans[target][0], spans[target][1], repl), nil
		}
		repl, err := renderInline(op.Element)
		if err != nil {
			return nil, err
		}
		if len(spans) == 0 {
			return splice(data, e.valStart, e.valEnd, "["+repl+"]"), nil
		}
		at := spans[len(spans)-1][1]
		return splice(data, at, at, ", "+repl), nil
	}
}

func applyArraySectionOp(data []byte, parts []string, group []*section, elems []value.Value, op backend.Op, target int) ([]byte, error) {
	if len(group) != len(elems) {
		return nil, fmt.Errorf("array-of-tables element mismatch at %s", value.JoinPath(parts))
	}
	switch op.Kind {
	case backend.OpRemoveIndex, backend.OpRemoveMatch:
		sec := group[target]
		return splice(data, sec.headStart, sec.bodyEnd, ""), nil

	default: // backend.OpUpsert
		if target < 0 {
			text, err := renderArraySection(parts, op.Element)
			if err != nil {
				return nil, err
			}
			at := group[len(group)-1].bodyEnd
			prefix := "\n"
			if at > 0 && data[at-1] != '\n' {
				prefix = "\n\n"
			}
			return splice(data, at, at, prefix+text), nil
		}

		fields := op.Element.Fields()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			merged := fields[k]
			if of, ok := elems[target].Field(k); ok {
				merged = value.DeepMerge(of, fields[k])
			}
			var err error
			data, err = setFieldInArraySection(data, parts, target, k, merged)
			if err != nil {
				return nil, err
			}
		}
		return data, nil
	}
}

// setFieldInArraySection rewrites one top-level field of the elemIdx-th
// element of the array of tables at parts. Existing lines for that field are
// replaced; other lines keep their bytes.
func setFieldInArraySection(data []byte, parts []string, elemIdx int, key string, v value.Value) ([]byte, error) {
	idx, err := scan(data)
	if err != nil {
		return nil, err
	}
	group := arraySections(idx, parts)
	if elemIdx >= len(group) {
		return nil, fmt.Errorf("array-of-tables element %d missing at %s", elemIdx, value.JoinPath(parts))
	}
	sec := group[elemIdx]

	text, err := renderBody(value.Table(map[string]value.Value{key: v}))
	if err != nil {
		return nil, err
	}

	insertAt := -1
	var remove [][2]int
	for _, e := range sec.entries {
		if e.key[0] == key {
			if insertAt == -1 {
				insertAt = e.lineStart
			}
			remove = append(remove, [2]int{e.lineStart, e.lineEnd})
		}
	}
	if insertAt == -1 {
		return insertLine(data, sec, text), nil
	}
	for i := len(remove) - 1; i >= 0; i-- {
		data = splice(data, remove[i][0], remove[i][1], "")
	}
	return splice(data, insertAt, insertAt, text), nil
}

// --- span lookup ---

func findEntry(idx *index, parts []string) (*section, *entry) {
	for _, sec := range idx.sections {
		if sec.array || !isKeyPrefix(sec.path, parts) {
			continue
		}
		rest := parts[len(sec.path):]
		if len(rest) == 0 {
			continue
		}
		for i := range sec.entries {
			if sameKey(sec.entries[i].key, rest) {
				return sec, &sec.entries[i]
			}
		}
	}
	return nil, nil
}

// findEntryPrefix finds the longest key-value expression whose key is a
// strict prefix of parts, and returns the remaining path segments.
func findEntryPrefix(idx *index, parts []string) (*section, *entry, []string) {
	var (
		bestSec *section
		bestE   *entry
		bestLen = -1
	)
	for _, sec := range idx.sections {
		if sec.array || !isKeyPrefix(sec.path, parts) {
			continue
		}
		rest := parts[len(sec.path):]
		for i := range sec.entries {
			e := &sec.entries[i]
			if len(e.key) < len(rest) && isKeyPrefix(e.key, rest) {
				if n := len(sec.path) + len(e.key); n > bestLen {
					bestSec, bestE, bestLen = sec, e, n
				}
			}
		}
	}
	if bestE == nil {
		return nil, nil, nil
	}
	return bestSec, bestE, parts[bestLen:]
}

// deepestSection finds the longest non-array section whose path is a strict
// prefix of parts.
func deepestSection(idx *index, parts []string) (*section, []string) {
	var best *section
	for _, sec := range idx.sections[1:] {
		if sec.array {
			continue
		}
		if len(sec.path) < len(parts) && isKeyPrefix(sec.path, parts) {
			if best == nil || len(sec.path) > len(best.path) {
				best = sec
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	return best, parts[len(best.path):]
}

// sectionsWithPrefix lists the sections, in file order, whose path starts
// with parts.
func sectionsWithPrefix(idx *index, parts []string) []*section {
	var out []*section
	for _, sec := range idx.sections[1:] {
		if isKeyPrefix(parts, sec.path) {
			out = append(out, sec)
		}
	}
	return out
}

// arraySections lists the [[parts]] element sections in file order.
func arraySections(idx *index, parts []string) []*section {
	var out []*section
	for _, sec := range idx.sections[1:] {
		if sec.array && sameKey(sec.path, parts) {
			out = append(out, sec)
		}
	}
	return out
}

// --- splicing ---

func splice(data []byte, start, end int, repl string) []byte {
	out := make([]byte, 0, len(data)-(end-start)+len(repl))
	out = append(out, data[:start]...)
	out = append(out, repl...)
	out = append(out, data[end:]...)
	return out
}

// insertLine places a rendered entry line at the natural insertion point of
// a section: after its last entry, else right after its header, else at the
// section body end.
func insertLine(data []byte, sec *section, line string) []byte {
	at := sec.bodyEnd
	if n := len(sec.entries); n > 0 {
		at = sec.entries[n-1].lineEnd
	} else if sec.headEnd > 0 {
		at = sec.headEnd
	}
	if at > 0 && data[at-1] != '\n' {
		line = "\n" + line
	}
	return splice(data, at, at, line)
}

// appendSection adds a rendered section at the end of the document,
// separated from existing content by a blank line.
func appendSection(data []byte, text string) []byte {
	prefix := ""
	if len(data) > 0 {
		if data[len(data)-1] != '\n' {
			prefix = "\n\n"
		} else {
			prefix = "\n"
		}
	}
	return splice(data, len(data), len(data), prefix+text)
}

// --- key helpers ---

func sameKey(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isKeyPrefix reports whether a is a (possibly equal) leading prefix of b.
func isKeyPrefix(a, b []string) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinKeys(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func pathErr(err error, parts []string) error {
	return fmt.Errorf("%w: %s", err, value.JoinPath(parts))
}
