package backend

import "github.com/emberward/confstore/value"

// OpKind identifies the type of an update operation.
type OpKind uint8

const (
	// OpSet writes a value at a dotted key path, creating intermediate
	// tables as needed.
	OpSet OpKind = iota
	// OpRemoveKey deletes the table entry at a dotted key path.
	OpRemoveKey
	// OpRemoveIndex deletes one element of the array at a path.
	OpRemoveIndex
	// OpRemoveMatch deletes the first table element of the array at a
	// path whose MatchKey field equals MatchValue.
	OpRemoveMatch
	// OpUpsert merges Element into the first array element whose
	// MatchKey field equals MatchValue, or appends Element if none match.
	OpUpsert
)

// String returns the operation name.
func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpRemoveKey:
		return "remove-key"
	case OpRemoveIndex:
		return "remove-index"
	case OpRemoveMatch:
		return "remove-match"
	case OpUpsert:
		return "upsert"
	default:
		return "unknown"
	}
}

// Op is one atomic update intent against a document.
type Op struct {
	Kind OpKind

	// Path is the dotted key path the operation targets.
	Path string

	// Value is the payload for OpSet.
	Value value.Value

	// Index is the element index for OpRemoveIndex.
	Index int

	// MatchKey and MatchValue select an array element for OpRemoveMatch
	// and OpUpsert.
	MatchKey   string
	MatchValue value.Value

	// Element is the record payload for OpUpsert.
	Element value.Value
}

// Set builds an operation that writes v at path.
func Set(path string, v value.Value) Op {
	return Op{Kind: OpSet, Path: path, Value: v}
}

// RemoveKey builds an operation that deletes the entry at path.
func RemoveKey(path string) Op {
	return Op{Kind: OpRemoveKey, Path: path}
}

// RemoveIndex builds an operation that deletes element i of the array at path.
func RemoveIndex(path string, i int) Op {
	return Op{Kind: OpRemoveIndex, Path: path, Index: i}
}

// RemoveMatch builds an operation that deletes the first element of the
// array at path whose key field equals v.
func RemoveMatch(path, key string, v value.Value) Op {
	return Op{Kind: OpRemoveMatch, Path: path, MatchKey: key, MatchValue: v}
}

// Upsert builds an operation that merges elem into the array element at path
// whose key field equals v, appending elem when no element matches.
func Upsert(path, key string, v value.Value, elem value.Value) Op {
	return Op{Kind: OpUpsert, Path: path, MatchKey: key, MatchValue: v, Element: elem}
}
