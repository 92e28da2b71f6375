// Package diff classifies the differences between two effective
// configuration snapshots against a per-field mutability policy.
//
// The package only classifies. Whether to apply the mutable subset live,
// discard the reload, or flag a restart belongs to the caller.
package diff

import (
	"sort"
	"strings"

	"github.com/emberward/confstore/value"
)

// Mutability says whether a field may change while the consumer is running.
type Mutability uint8

const (
	// Immutable fields require a restart to take effect.
	Immutable Mutability = iota
	// Mutable fields may be applied live.
	Mutable
)

// String returns the mutability name.
func (m Mutability) String() string {
	if m == Mutable {
		return "mutable"
	}
	return "immutable"
}

// Policy declares per-field mutability. Lookups walk from the exact dotted
// path up through its prefixes, so declaring "server.limits" covers every
// field beneath it. Undeclared fields fall back to Default, which is
// Immutable for the zero policy: an unknown changed field should force the
// conservative choice.
type Policy struct {
	Fields  map[string]Mutability
	Default Mutability
}

// Lookup returns the mutability of a dotted field path.
func (p Policy) Lookup(path string) Mutability {
	cur := path
	for {
		if m, ok := p.Fields[cur]; ok {
			return m
		}
		i := strings.LastIndex(cur, ".")
		if i < 0 {
			return p.Default
		}
		cur = cur[:i]
	}
}

// FieldChange is one differing leaf between two snapshots.
type FieldChange struct {
	// Path is the dotted field path.
	Path string
	// Old is the previous value; Null when the field was added.
	Old value.Value
	// New is the current value; Null when the field was removed.
	New value.Value
}

// Change is the classified difference between two snapshots.
type Change struct {
	// Mutable lists differing fields that may be applied live, in path
	// order.
	Mutable []FieldChange
	// Immutable lists differing fields that require a restart, in path
	// order.
	Immutable []FieldChange
}

// Empty reports whether the snapshots were identical.
func (c Change) Empty() bool {
	return len(c.Mutable) == 0 && len(c.Immutable) == 0
}

// RestartRequired reports whether any immutable field changed.
func (c Change) RestartRequired() bool {
	return len(c.Immutable) > 0
}

// Paths returns every differing path in sorted order.
func (c Change) Paths() []string {
	out := make([]string, 0, len(c.Mutable)+len(c.Immutable))
	for _, f := range c.Mutable {
		out = append(out, f.Path)
	}
	for _, f := range c.Immutable {
		out = append(out, f.Path)
	}
	sort.Strings(out)
	return out
}

// Classify walks two snapshots leaf by leaf and sorts every differing field
// into the mutable or immutable list according to the policy. Added and
// removed fields count as differences; their missing side is Null.
func Classify(old, new value.Value, policy Policy) Change {
	oldFlat := value.Flatten(old)
	newFlat := value.Flatten(new)

	paths := make(map[string]struct{}, len(oldFlat)+len(newFlat))
	for p := range oldFlat {
		paths[p] = struct{}{}
	}
	for p := range newFlat {
		paths[p] = struct{}{}
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var change Change
	for _, p := range sorted {
		ov, oldOK := oldFlat[p]
		nv, newOK := newFlat[p]
		if oldOK && newOK && ov.Equal(nv) {
			continue
		}
		fc := FieldChange{Path: p, Old: ov, New: nv}
		if policy.Lookup(p) == Mutable {
			change.Mutable = append(change.Mutable, fc)
		} else {
			change.Immutable = append(change.Immutable, fc)
		}
	}
	return change
}
